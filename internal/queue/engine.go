package queue

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"waitlist/queue-service/internal/clock"
	"waitlist/queue-service/internal/models"
	"waitlist/queue-service/internal/store"
)

// ErrInvalidInput marks rejections that never reached the store.
var ErrInvalidInput = errors.New("invalid input")

const maxPartySize = 20

// Notifier delivers a message to a customer identity. Best effort: the
// engine logs failures and never unwinds a committed ticket mutation.
type Notifier interface {
	Push(ctx context.Context, identity, text string) error
}

type RegisterInput struct {
	Venue       string
	Identity    string
	DisplayName string
	Contact     string
	PartySize   int
}

// TicketStatus pairs a ticket with the number of waiting parties ahead of it.
type TicketStatus struct {
	Ticket models.Ticket
	Ahead  int
}

type Engine struct {
	store    store.TicketStore
	notifier Notifier
	clock    clock.Clock
	loc      *time.Location
}

func NewEngine(st store.TicketStore, notifier Notifier, clk clock.Clock, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{store: st, notifier: notifier, clock: clk, loc: loc}
}

// session resolves the current session key for the venue and applies the
// boundary policy before any operation touches queue state.
func (e *Engine) session(ctx context.Context, venue string) (string, error) {
	now := e.clock.Now()
	key := sessionKey(now, e.loc)
	rolled, err := e.store.RolloverSession(ctx, venue, key, now)
	if err != nil {
		return "", err
	}
	if rolled {
		log.Printf("session rollover venue=%s session=%s", venue, key)
	}
	return key, nil
}

func (e *Engine) Register(ctx context.Context, input RegisterInput) (TicketStatus, error) {
	if input.Venue == "" {
		return TicketStatus{}, fmt.Errorf("%w: venue is required", ErrInvalidInput)
	}
	if input.DisplayName == "" {
		return TicketStatus{}, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	if input.Contact == "" {
		return TicketStatus{}, fmt.Errorf("%w: contact is required", ErrInvalidInput)
	}
	if input.PartySize < 1 || input.PartySize > maxPartySize {
		return TicketStatus{}, fmt.Errorf("%w: party size must be between 1 and %d", ErrInvalidInput, maxPartySize)
	}

	session, err := e.session(ctx, input.Venue)
	if err != nil {
		return TicketStatus{}, err
	}

	createInput := store.CreateTicketInput{
		Venue:       input.Venue,
		SessionKey:  session,
		Identity:    input.Identity,
		DisplayName: input.DisplayName,
		Contact:     input.Contact,
		PartySize:   input.PartySize,
		CreatedAt:   e.clock.Now(),
	}
	if input.Identity == "" {
		createInput.LinkCode = newLinkCode()
	}

	ticket, created, err := e.store.CreateTicket(ctx, createInput)
	if err != nil {
		return TicketStatus{}, err
	}
	ahead, err := e.store.CountAhead(ctx, input.Venue, session, ticket.Number)
	if err != nil {
		return TicketStatus{}, err
	}

	if created && ticket.Identity != "" {
		e.notify(ctx, ticket.Identity,
			fmt.Sprintf("You're in line! Ticket #%d, %d parties ahead of you.", ticket.Number, ahead))
	}
	return TicketStatus{Ticket: ticket, Ahead: ahead}, nil
}

func (e *Engine) Status(ctx context.Context, venue, identity string) (TicketStatus, error) {
	session, err := e.session(ctx, venue)
	if err != nil {
		return TicketStatus{}, err
	}
	ticket, found, err := e.store.WaitingByIdentity(ctx, venue, session, identity)
	if err != nil {
		return TicketStatus{}, err
	}
	if !found {
		return TicketStatus{}, store.ErrTicketNotFound
	}
	ahead, err := e.store.CountAhead(ctx, venue, session, ticket.Number)
	if err != nil {
		return TicketStatus{}, err
	}
	return TicketStatus{Ticket: ticket, Ahead: ahead}, nil
}

func (e *Engine) Cancel(ctx context.Context, venue, identity string) (models.Ticket, error) {
	session, err := e.session(ctx, venue)
	if err != nil {
		return models.Ticket{}, err
	}
	return e.store.CancelTicket(ctx, venue, session, identity)
}

func (e *Engine) CallNext(ctx context.Context, venue string) (models.Ticket, error) {
	session, err := e.session(ctx, venue)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket, _, err := e.store.CallNext(ctx, venue, session, e.clock.Now())
	if err != nil {
		return models.Ticket{}, err
	}
	e.notifyCalled(ctx, ticket)
	return ticket, nil
}

func (e *Engine) CallNumber(ctx context.Context, venue string, number int) (models.Ticket, error) {
	if number < 1 {
		return models.Ticket{}, fmt.Errorf("%w: number must be positive", ErrInvalidInput)
	}
	session, err := e.session(ctx, venue)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket, err := e.store.CallNumber(ctx, venue, session, number, e.clock.Now())
	if err != nil {
		return models.Ticket{}, err
	}
	e.notifyCalled(ctx, ticket)
	return ticket, nil
}

func (e *Engine) Complete(ctx context.Context, venue string, number int) (models.Ticket, error) {
	if number < 1 {
		return models.Ticket{}, fmt.Errorf("%w: number must be positive", ErrInvalidInput)
	}
	session, err := e.session(ctx, venue)
	if err != nil {
		return models.Ticket{}, err
	}
	return e.store.CompleteTicket(ctx, venue, session, number, e.clock.Now())
}

func (e *Engine) Link(ctx context.Context, venue, linkCode, identity string) (TicketStatus, error) {
	if linkCode == "" || identity == "" {
		return TicketStatus{}, fmt.Errorf("%w: link code and identity are required", ErrInvalidInput)
	}
	if _, err := e.session(ctx, venue); err != nil {
		return TicketStatus{}, err
	}
	ticket, err := e.store.BindIdentity(ctx, venue, linkCode, identity)
	if err != nil {
		return TicketStatus{}, err
	}
	ahead, err := e.store.CountAhead(ctx, venue, ticket.SessionKey, ticket.Number)
	if err != nil {
		return TicketStatus{}, err
	}
	e.notify(ctx, identity,
		fmt.Sprintf("Ticket #%d is now linked. %d parties ahead; we'll message you when it's your turn.", ticket.Number, ahead))
	return TicketStatus{Ticket: ticket, Ahead: ahead}, nil
}

func (e *Engine) Snapshot(ctx context.Context, venue string) (models.QueueSnapshot, error) {
	session, err := e.session(ctx, venue)
	if err != nil {
		return models.QueueSnapshot{}, err
	}
	tickets, err := e.store.ListQueue(ctx, venue, session)
	if err != nil {
		return models.QueueSnapshot{}, err
	}

	snapshot := models.QueueSnapshot{Venue: venue, SessionKey: session}
	position := 0
	for _, t := range tickets {
		entry := models.QueueEntry{
			Number:      t.Number,
			DisplayName: t.DisplayName,
			PartySize:   t.PartySize,
			Status:      t.Status,
		}
		switch t.Status {
		case models.StatusWaiting:
			position++
			entry.Position = position
			snapshot.WaitingCount++
		case models.StatusCalled:
			snapshot.CalledCount++
		}
		snapshot.Entries = append(snapshot.Entries, entry)
	}
	return snapshot, nil
}

func (e *Engine) Events(ctx context.Context, venue string) ([]store.TicketEvent, error) {
	session, err := e.session(ctx, venue)
	if err != nil {
		return nil, err
	}
	return e.store.ListTicketEvents(ctx, venue, session)
}

func (e *Engine) notifyCalled(ctx context.Context, ticket models.Ticket) {
	if ticket.Identity == "" {
		return
	}
	e.notify(ctx, ticket.Identity,
		fmt.Sprintf("It's your turn! Ticket #%d, please come to the counter within 7 minutes.", ticket.Number))
}

func (e *Engine) notify(ctx context.Context, identity, text string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Push(ctx, identity, text); err != nil {
		log.Printf("notify error identity=%s: %v", identity, err)
	}
}

func newLinkCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		n = big.NewInt(time.Now().UnixNano() % 1000000)
	}
	return fmt.Sprintf("%06d", n.Int64())
}
