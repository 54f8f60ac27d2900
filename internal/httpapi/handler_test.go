package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"waitlist/queue-service/internal/models"
	"waitlist/queue-service/internal/queue"
	"waitlist/queue-service/internal/store"
)

type fakeService struct {
	registerFn   func(ctx context.Context, input queue.RegisterInput) (queue.TicketStatus, error)
	statusFn     func(ctx context.Context, venue, identity string) (queue.TicketStatus, error)
	cancelFn     func(ctx context.Context, venue, identity string) (models.Ticket, error)
	callNextFn   func(ctx context.Context, venue string) (models.Ticket, error)
	callNumberFn func(ctx context.Context, venue string, number int) (models.Ticket, error)
	completeFn   func(ctx context.Context, venue string, number int) (models.Ticket, error)
	linkFn       func(ctx context.Context, venue, linkCode, identity string) (queue.TicketStatus, error)
	snapshotFn   func(ctx context.Context, venue string) (models.QueueSnapshot, error)
	eventsFn     func(ctx context.Context, venue string) ([]store.TicketEvent, error)
}

func (f fakeService) Register(ctx context.Context, input queue.RegisterInput) (queue.TicketStatus, error) {
	if f.registerFn == nil {
		return queue.TicketStatus{}, nil
	}
	return f.registerFn(ctx, input)
}

func (f fakeService) Status(ctx context.Context, venue, identity string) (queue.TicketStatus, error) {
	if f.statusFn == nil {
		return queue.TicketStatus{}, nil
	}
	return f.statusFn(ctx, venue, identity)
}

func (f fakeService) Cancel(ctx context.Context, venue, identity string) (models.Ticket, error) {
	if f.cancelFn == nil {
		return models.Ticket{}, nil
	}
	return f.cancelFn(ctx, venue, identity)
}

func (f fakeService) CallNext(ctx context.Context, venue string) (models.Ticket, error) {
	if f.callNextFn == nil {
		return models.Ticket{}, nil
	}
	return f.callNextFn(ctx, venue)
}

func (f fakeService) CallNumber(ctx context.Context, venue string, number int) (models.Ticket, error) {
	if f.callNumberFn == nil {
		return models.Ticket{}, nil
	}
	return f.callNumberFn(ctx, venue, number)
}

func (f fakeService) Complete(ctx context.Context, venue string, number int) (models.Ticket, error) {
	if f.completeFn == nil {
		return models.Ticket{}, nil
	}
	return f.completeFn(ctx, venue, number)
}

func (f fakeService) Link(ctx context.Context, venue, linkCode, identity string) (queue.TicketStatus, error) {
	if f.linkFn == nil {
		return queue.TicketStatus{}, nil
	}
	return f.linkFn(ctx, venue, linkCode, identity)
}

func (f fakeService) Snapshot(ctx context.Context, venue string) (models.QueueSnapshot, error) {
	if f.snapshotFn == nil {
		return models.QueueSnapshot{}, nil
	}
	return f.snapshotFn(ctx, venue)
}

func (f fakeService) Events(ctx context.Context, venue string) ([]store.TicketEvent, error) {
	if f.eventsFn == nil {
		return nil, nil
	}
	return f.eventsFn(ctx, venue)
}

func postJSON(t *testing.T, h *Handler, path string, payload interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	return resp
}

func TestRegisterReturnsLinkCodeForFormTickets(t *testing.T) {
	svc := fakeService{
		registerFn: func(ctx context.Context, input queue.RegisterInput) (queue.TicketStatus, error) {
			if input.Venue != "main" {
				t.Errorf("expected default venue, got %q", input.Venue)
			}
			return queue.TicketStatus{
				Ticket: models.Ticket{Number: 5, LinkCode: "042113", Status: models.StatusWaiting},
				Ahead:  4,
			}, nil
		},
	}
	h := NewHandler(svc, nil, Options{DefaultVenue: "main"})

	resp := postJSON(t, h, "/api/tickets", map[string]interface{}{
		"display_name": "Walk-in",
		"contact":      "080-0000-0000",
		"party_size":   2,
	}, nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var got registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.TicketNumber != 5 || got.AheadCount != 4 || got.LinkCode != "042113" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestRegisterInvalidInput(t *testing.T) {
	svc := fakeService{
		registerFn: func(ctx context.Context, input queue.RegisterInput) (queue.TicketStatus, error) {
			return queue.TicketStatus{}, queue.ErrInvalidInput
		},
	}
	h := NewHandler(svc, nil, Options{DefaultVenue: "main"})

	resp := postJSON(t, h, "/api/tickets", map[string]interface{}{"party_size": 0}, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestStatusRequiresIdentity(t *testing.T) {
	h := NewHandler(fakeService{}, nil, Options{DefaultVenue: "main"})

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/status", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestStatusNotFound(t *testing.T) {
	svc := fakeService{
		statusFn: func(ctx context.Context, venue, identity string) (queue.TicketStatus, error) {
			return queue.TicketStatus{}, store.ErrTicketNotFound
		},
	}
	h := NewHandler(svc, nil, Options{DefaultVenue: "main"})

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/status?identity=line-u1", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestStaffActionRejectsBadToken(t *testing.T) {
	h := NewHandler(fakeService{}, nil, Options{DefaultVenue: "main", StaffToken: "s3cret"})

	resp := postJSON(t, h, "/api/tickets/actions/call-next", map[string]interface{}{}, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 without token, got %d", resp.Code)
	}

	resp = postJSON(t, h, "/api/tickets/actions/call-next", map[string]interface{}{}, map[string]string{"X-Staff-Token": "wrong"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 with wrong token, got %d", resp.Code)
	}
}

func TestStaffActionAcceptsHeaderOrBodySecret(t *testing.T) {
	svc := fakeService{
		callNextFn: func(ctx context.Context, venue string) (models.Ticket, error) {
			return models.Ticket{Number: 3, Status: models.StatusCalled}, nil
		},
	}
	h := NewHandler(svc, nil, Options{DefaultVenue: "main", StaffToken: "s3cret"})

	resp := postJSON(t, h, "/api/tickets/actions/call-next", map[string]interface{}{}, map[string]string{"X-Staff-Token": "s3cret"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 with header token, got %d", resp.Code)
	}

	resp = postJSON(t, h, "/api/tickets/actions/call-next", map[string]interface{}{"shared_secret": "s3cret"}, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 with body secret, got %d", resp.Code)
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	svc := fakeService{
		callNextFn: func(ctx context.Context, venue string) (models.Ticket, error) {
			return models.Ticket{}, store.ErrNoTicket
		},
	}
	h := NewHandler(svc, nil, Options{DefaultVenue: "main"})

	resp := postJSON(t, h, "/api/tickets/actions/call-next", map[string]interface{}{}, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestCallNumberRequiresPositiveNumber(t *testing.T) {
	h := NewHandler(fakeService{}, nil, Options{DefaultVenue: "main"})

	resp := postJSON(t, h, "/api/tickets/actions/call", map[string]interface{}{"number": 0}, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestLinkConflicts(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"unknown code", store.ErrLinkCodeNotFound, http.StatusNotFound},
		{"used code", store.ErrLinkCodeUsed, http.StatusConflict},
		{"active ticket", store.ErrActiveTicket, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := fakeService{
				linkFn: func(ctx context.Context, venue, linkCode, identity string) (queue.TicketStatus, error) {
					return queue.TicketStatus{}, tc.err
				},
			}
			h := NewHandler(svc, nil, Options{DefaultVenue: "main"})

			resp := postJSON(t, h, "/api/tickets/link", map[string]interface{}{
				"link_code": "042113",
				"identity":  "line-u1",
			}, nil)
			if resp.Code != tc.code {
				t.Fatalf("expected status %d, got %d", tc.code, resp.Code)
			}
		})
	}
}

func TestQueueSnapshot(t *testing.T) {
	svc := fakeService{
		snapshotFn: func(ctx context.Context, venue string) (models.QueueSnapshot, error) {
			return models.QueueSnapshot{Venue: venue, WaitingCount: 2}, nil
		},
	}
	h := NewHandler(svc, nil, Options{DefaultVenue: "main"})

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var snapshot models.QueueSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Venue != "main" || snapshot.WaitingCount != 2 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestEventsRequireStaffToken(t *testing.T) {
	h := NewHandler(fakeService{}, nil, Options{DefaultVenue: "main", StaffToken: "s3cret"})

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("X-Staff-Token", "s3cret")
	resp = httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}
