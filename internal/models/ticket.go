package models

import "time"

type Ticket struct {
	TicketID    string     `json:"ticket_id"`
	Venue       string     `json:"venue"`
	Number      int        `json:"number"`
	SessionKey  string     `json:"session_key"`
	Identity    string     `json:"identity,omitempty"`
	DisplayName string     `json:"display_name"`
	Contact     string     `json:"contact"`
	PartySize   int        `json:"party_size"`
	Status      string     `json:"status"`
	LinkCode    string     `json:"link_code,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CalledAt    *time.Time `json:"called_at,omitempty"`
	DoneAt      *time.Time `json:"done_at,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusCalled    = "called"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
)
