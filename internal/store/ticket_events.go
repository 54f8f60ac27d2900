package store

import "time"

const (
	EventCreated   = "ticket.created"
	EventCalled    = "ticket.called"
	EventCancelled = "ticket.cancelled"
	EventDone      = "ticket.done"
	EventLinked    = "ticket.linked"
)

// TicketEvent is one entry in the per-venue audit trail. History is retained
// across session boundaries; tickets are never physically deleted.
type TicketEvent struct {
	EventID    string    `json:"event_id"`
	TicketID   string    `json:"ticket_id"`
	Venue      string    `json:"venue"`
	SessionKey string    `json:"session_key"`
	Number     int       `json:"number"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"created_at"`
}
