package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"waitlist/queue-service/internal/models"
	"waitlist/queue-service/internal/store"
)

const session = "2026-03-10"

func seedTicket(t *testing.T, s *Store, identity string) models.Ticket {
	t.Helper()
	ticket, created, err := s.CreateTicket(context.Background(), store.CreateTicketInput{
		Venue:       "main",
		SessionKey:  session,
		Identity:    identity,
		DisplayName: identity,
		Contact:     identity,
		PartySize:   1,
		CreatedAt:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	})
	if err != nil || !created {
		t.Fatalf("seed ticket %s: created=%v err=%v", identity, created, err)
	}
	return ticket
}

func TestConcurrentCreateAssignsDistinctNumbers(t *testing.T) {
	s := NewStore()
	const workers = 50

	var wg sync.WaitGroup
	numbers := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, _, err := s.CreateTicket(context.Background(), store.CreateTicketInput{
				Venue:       "main",
				SessionKey:  session,
				Identity:    fmt.Sprintf("guest-%d", i),
				DisplayName: "guest",
				Contact:     "guest",
				PartySize:   1,
			})
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			numbers <- ticket.Number
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int]bool)
	for n := range numbers {
		if seen[n] {
			t.Fatalf("duplicate number %d", n)
		}
		seen[n] = true
	}
	for n := 1; n <= workers; n++ {
		if !seen[n] {
			t.Fatalf("missing number %d, sequence has gaps", n)
		}
	}
}

func TestConcurrentCallNextSingleWinner(t *testing.T) {
	s := NewStore()
	seedTicket(t, s, "guest-1")

	const workers = 10
	var wg sync.WaitGroup
	wins := make(chan models.Ticket, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, _, err := s.CallNext(context.Background(), "main", session, time.Now().UTC())
			if err != nil {
				if !errors.Is(err, store.ErrNoTicket) {
					t.Errorf("call next: %v", err)
				}
				return
			}
			wins <- ticket
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one caller to win, got %d", count)
	}
}

func TestCreateTicketReusesWaitingTicket(t *testing.T) {
	s := NewStore()
	first := seedTicket(t, s, "guest-1")

	again, created, err := s.CreateTicket(context.Background(), store.CreateTicketInput{
		Venue:       "main",
		SessionKey:  session,
		Identity:    "guest-1",
		DisplayName: "guest",
		Contact:     "guest",
		PartySize:   1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created || again.Number != first.Number {
		t.Fatalf("expected existing ticket #%d, got created=%v #%d", first.Number, created, again.Number)
	}
}

func TestRolloverCancelsOnlyWaitingTickets(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if rolled, err := s.RolloverSession(ctx, "main", session, time.Now().UTC()); err != nil || !rolled {
		t.Fatalf("initial rollover: rolled=%v err=%v", rolled, err)
	}
	seedTicket(t, s, "guest-1")
	seedTicket(t, s, "guest-2")
	if _, _, err := s.CallNext(ctx, "main", session, time.Now().UTC()); err != nil {
		t.Fatalf("call next: %v", err)
	}

	if rolled, err := s.RolloverSession(ctx, "main", session, time.Now().UTC()); err != nil || rolled {
		t.Fatalf("same-key rollover must be a no-op, rolled=%v err=%v", rolled, err)
	}

	const nextSession = "2026-03-11"
	if rolled, err := s.RolloverSession(ctx, "main", nextSession, time.Now().UTC()); err != nil || !rolled {
		t.Fatalf("rollover: rolled=%v err=%v", rolled, err)
	}

	called, found, err := s.TicketByNumber(ctx, "main", session, 1)
	if err != nil || !found {
		t.Fatalf("lookup called ticket: found=%v err=%v", found, err)
	}
	if called.Status != models.StatusCalled {
		t.Fatalf("called ticket must survive rollover, got %s", called.Status)
	}

	waiting, found, err := s.TicketByNumber(ctx, "main", session, 2)
	if err != nil || !found {
		t.Fatalf("lookup waiting ticket: found=%v err=%v", found, err)
	}
	if waiting.Status != models.StatusCancelled {
		t.Fatalf("waiting ticket must be cancelled on rollover, got %s", waiting.Status)
	}
}

func TestBindIdentityRules(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	form, _, err := s.CreateTicket(ctx, store.CreateTicketInput{
		Venue:       "main",
		SessionKey:  session,
		DisplayName: "Walk-in",
		Contact:     "080-0000-0000",
		PartySize:   3,
		LinkCode:    "042113",
	})
	if err != nil {
		t.Fatalf("create form ticket: %v", err)
	}

	if _, err := s.BindIdentity(ctx, "main", "999999", "line-u1"); !errors.Is(err, store.ErrLinkCodeNotFound) {
		t.Fatalf("expected ErrLinkCodeNotFound, got %v", err)
	}

	bound, err := s.BindIdentity(ctx, "main", "042113", "line-u1")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if bound.Number != form.Number || bound.Identity != "line-u1" {
		t.Fatalf("unexpected bound ticket %+v", bound)
	}

	if _, err := s.BindIdentity(ctx, "main", "042113", "line-u1"); err != nil {
		t.Fatalf("repeat bind by same identity must succeed, got %v", err)
	}
	if _, err := s.BindIdentity(ctx, "main", "042113", "line-u2"); !errors.Is(err, store.ErrLinkCodeUsed) {
		t.Fatalf("expected ErrLinkCodeUsed, got %v", err)
	}

	seedTicket(t, s, "line-u3")
	second, _, err := s.CreateTicket(ctx, store.CreateTicketInput{
		Venue:       "main",
		SessionKey:  session,
		DisplayName: "Walk-in",
		Contact:     "080-1111-1111",
		PartySize:   2,
		LinkCode:    "314159",
	})
	if err != nil {
		t.Fatalf("create second form ticket: %v", err)
	}
	if _, err := s.BindIdentity(ctx, "main", second.LinkCode, "line-u3"); !errors.Is(err, store.ErrActiveTicket) {
		t.Fatalf("expected ErrActiveTicket, got %v", err)
	}
}

func TestCompleteOnlyFromCalled(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ticket := seedTicket(t, s, "guest-1")

	if _, err := s.CompleteTicket(ctx, "main", session, ticket.Number, time.Now().UTC()); !errors.Is(err, store.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound for waiting ticket, got %v", err)
	}
	if _, _, err := s.CallNext(ctx, "main", session, time.Now().UTC()); err != nil {
		t.Fatalf("call next: %v", err)
	}
	done, err := s.CompleteTicket(ctx, "main", session, ticket.Number, time.Now().UTC())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != models.StatusDone || done.DoneAt == nil {
		t.Fatalf("unexpected completed ticket %+v", done)
	}
}
