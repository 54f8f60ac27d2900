package models

// QueueEntry is one row of a public queue snapshot. Position is 1-based
// among waiting tickets; zero for called tickets.
type QueueEntry struct {
	Number      int    `json:"number"`
	DisplayName string `json:"display_name"`
	PartySize   int    `json:"party_size"`
	Status      string `json:"status"`
	Position    int    `json:"position,omitempty"`
}

type QueueSnapshot struct {
	Venue        string       `json:"venue"`
	SessionKey   string       `json:"session_key"`
	WaitingCount int          `json:"waiting_count"`
	CalledCount  int          `json:"called_count"`
	Entries      []QueueEntry `json:"entries"`
}
