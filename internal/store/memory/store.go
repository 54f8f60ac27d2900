// Package memory implements the ticket store on an in-process map, the way
// the service originally ran before it grew a database. It backs single
// instance deployments (no DB DSN configured) and the engine tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"waitlist/queue-service/internal/models"
	"waitlist/queue-service/internal/store"

	"github.com/google/uuid"
)

type venueState struct {
	sessionKey string
	nextNumber map[string]int
	tickets    []*models.Ticket
	events     []store.TicketEvent
}

type Store struct {
	mu     sync.Mutex
	venues map[string]*venueState
}

func NewStore() *Store {
	return &Store{venues: make(map[string]*venueState)}
}

func (s *Store) venue(name string) *venueState {
	v, ok := s.venues[name]
	if !ok {
		v = &venueState{nextNumber: make(map[string]int)}
		s.venues[name] = v
	}
	return v
}

func (s *Store) RolloverSession(ctx context.Context, venue, sessionKey string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.venue(venue)
	if v.sessionKey == sessionKey {
		return false, nil
	}
	v.sessionKey = sessionKey
	for _, t := range v.tickets {
		if t.SessionKey != sessionKey && t.Status == models.StatusWaiting {
			t.Status = models.StatusCancelled
			v.events = append(v.events, newEvent(t, store.EventCancelled, at))
		}
	}
	return true, nil
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.venue(input.Venue)
	if input.Identity != "" {
		if t := v.waitingByIdentity(input.SessionKey, input.Identity); t != nil {
			return *t, false, nil
		}
	}

	v.nextNumber[input.SessionKey]++
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	ticket := &models.Ticket{
		TicketID:    uuid.NewString(),
		Venue:       input.Venue,
		SessionKey:  input.SessionKey,
		Number:      v.nextNumber[input.SessionKey],
		Identity:    input.Identity,
		DisplayName: input.DisplayName,
		Contact:     input.Contact,
		PartySize:   input.PartySize,
		Status:      models.StatusWaiting,
		LinkCode:    input.LinkCode,
		CreatedAt:   createdAt,
	}
	v.tickets = append(v.tickets, ticket)
	v.events = append(v.events, newEvent(ticket, store.EventCreated, createdAt))
	return *ticket, true, nil
}

func (s *Store) WaitingByIdentity(ctx context.Context, venue, sessionKey, identity string) (models.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t := s.venue(venue).waitingByIdentity(sessionKey, identity); t != nil {
		return *t, true, nil
	}
	return models.Ticket{}, false, nil
}

func (s *Store) TicketByNumber(ctx context.Context, venue, sessionKey string, number int) (models.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.venue(venue).tickets {
		if t.SessionKey == sessionKey && t.Number == number {
			return *t, true, nil
		}
	}
	return models.Ticket{}, false, nil
}

func (s *Store) CountAhead(ctx context.Context, venue, sessionKey string, number int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, t := range s.venue(venue).tickets {
		if t.SessionKey == sessionKey && t.Status == models.StatusWaiting && t.Number < number {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListQueue(ctx context.Context, venue, sessionKey string) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tickets []models.Ticket
	for _, t := range s.venue(venue).tickets {
		if t.SessionKey == sessionKey && (t.Status == models.StatusWaiting || t.Status == models.StatusCalled) {
			tickets = append(tickets, *t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Number < tickets[j].Number })
	return tickets, nil
}

func (s *Store) CallNext(ctx context.Context, venue, sessionKey string, calledAt time.Time) (models.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.venue(venue)
	var next *models.Ticket
	for _, t := range v.tickets {
		if t.SessionKey != sessionKey || t.Status != models.StatusWaiting {
			continue
		}
		if next == nil || t.Number < next.Number {
			next = t
		}
	}
	if next == nil {
		return models.Ticket{}, false, store.ErrNoTicket
	}
	next.Status = models.StatusCalled
	at := calledAt
	next.CalledAt = &at
	v.events = append(v.events, newEvent(next, store.EventCalled, calledAt))
	return *next, true, nil
}

func (s *Store) CallNumber(ctx context.Context, venue, sessionKey string, number int, calledAt time.Time) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.venue(venue)
	for _, t := range v.tickets {
		if t.SessionKey == sessionKey && t.Number == number {
			if !store.ValidTransition("call", t.Status) {
				return models.Ticket{}, store.ErrTicketNotFound
			}
			t.Status = models.StatusCalled
			at := calledAt
			t.CalledAt = &at
			v.events = append(v.events, newEvent(t, store.EventCalled, calledAt))
			return *t, nil
		}
	}
	return models.Ticket{}, store.ErrTicketNotFound
}

func (s *Store) CancelTicket(ctx context.Context, venue, sessionKey, identity string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.venue(venue)
	t := v.waitingByIdentity(sessionKey, identity)
	if t == nil {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	t.Status = models.StatusCancelled
	v.events = append(v.events, newEvent(t, store.EventCancelled, time.Now().UTC()))
	return *t, nil
}

func (s *Store) CompleteTicket(ctx context.Context, venue, sessionKey string, number int, doneAt time.Time) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.venue(venue)
	for _, t := range v.tickets {
		if t.SessionKey == sessionKey && t.Number == number {
			if !store.ValidTransition("complete", t.Status) {
				return models.Ticket{}, store.ErrTicketNotFound
			}
			t.Status = models.StatusDone
			at := doneAt
			t.DoneAt = &at
			v.events = append(v.events, newEvent(t, store.EventDone, doneAt))
			return *t, nil
		}
	}
	return models.Ticket{}, store.ErrTicketNotFound
}

func (s *Store) BindIdentity(ctx context.Context, venue, linkCode, identity string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.venue(venue)
	var target *models.Ticket
	for _, t := range v.tickets {
		if t.LinkCode != "" && t.LinkCode == linkCode {
			target = t
			break
		}
	}
	if target == nil {
		return models.Ticket{}, store.ErrLinkCodeNotFound
	}
	if target.Identity == identity {
		return *target, nil
	}
	if target.Identity != "" {
		return models.Ticket{}, store.ErrLinkCodeUsed
	}
	if !store.ValidTransition("link", target.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	if v.waitingByIdentity(target.SessionKey, identity) != nil {
		return models.Ticket{}, store.ErrActiveTicket
	}
	target.Identity = identity
	v.events = append(v.events, newEvent(target, store.EventLinked, time.Now().UTC()))
	return *target, nil
}

func (s *Store) ListTicketEvents(ctx context.Context, venue, sessionKey string) ([]store.TicketEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []store.TicketEvent
	for _, e := range s.venue(venue).events {
		if e.SessionKey == sessionKey {
			events = append(events, e)
		}
	}
	return events, nil
}

func (v *venueState) waitingByIdentity(sessionKey, identity string) *models.Ticket {
	var found *models.Ticket
	for _, t := range v.tickets {
		if t.SessionKey != sessionKey || t.Identity != identity || t.Status != models.StatusWaiting {
			continue
		}
		if found == nil || t.Number < found.Number {
			found = t
		}
	}
	return found
}

func newEvent(t *models.Ticket, eventType string, at time.Time) store.TicketEvent {
	return store.TicketEvent{
		EventID:    uuid.NewString(),
		TicketID:   t.TicketID,
		Venue:      t.Venue,
		SessionKey: t.SessionKey,
		Number:     t.Number,
		Type:       eventType,
		CreatedAt:  at,
	}
}
