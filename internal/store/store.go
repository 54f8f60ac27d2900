package store

import (
	"context"
	"time"

	"waitlist/queue-service/internal/models"
)

type CreateTicketInput struct {
	Venue       string
	SessionKey  string
	Identity    string
	DisplayName string
	Contact     string
	PartySize   int
	LinkCode    string
	CreatedAt   time.Time
}

// TicketStore is the durable queue state. Implementations must provide two
// atomic units: number assignment on insert (no two tickets in the same
// venue/session ever share a number) and conditional status transitions
// (exactly one winner when concurrent calls race on the same ticket).
type TicketStore interface {
	// RolloverSession makes sessionKey the venue's current session and
	// force-cancels waiting tickets left over from any prior session.
	// Returns true when a boundary was actually crossed.
	RolloverSession(ctx context.Context, venue, sessionKey string, at time.Time) (bool, error)

	// CreateTicket assigns the next number and inserts a waiting ticket.
	// When the input identity already holds a waiting ticket in the same
	// venue/session the existing ticket is returned and the bool is false.
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, bool, error)

	WaitingByIdentity(ctx context.Context, venue, sessionKey, identity string) (models.Ticket, bool, error)
	TicketByNumber(ctx context.Context, venue, sessionKey string, number int) (models.Ticket, bool, error)
	CountAhead(ctx context.Context, venue, sessionKey string, number int) (int, error)
	ListQueue(ctx context.Context, venue, sessionKey string) ([]models.Ticket, error)

	CallNext(ctx context.Context, venue, sessionKey string, calledAt time.Time) (models.Ticket, bool, error)
	CallNumber(ctx context.Context, venue, sessionKey string, number int, calledAt time.Time) (models.Ticket, error)
	CancelTicket(ctx context.Context, venue, sessionKey, identity string) (models.Ticket, error)
	CompleteTicket(ctx context.Context, venue, sessionKey string, number int, doneAt time.Time) (models.Ticket, error)

	// BindIdentity attaches an identity to the ticket holding linkCode.
	// Re-binding the same identity to the same code is a no-op success.
	BindIdentity(ctx context.Context, venue, linkCode, identity string) (models.Ticket, error)

	ListTicketEvents(ctx context.Context, venue, sessionKey string) ([]TicketEvent, error)
}
