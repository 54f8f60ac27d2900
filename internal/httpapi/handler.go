package httpapi

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"waitlist/queue-service/internal/models"
	"waitlist/queue-service/internal/queue"
	"waitlist/queue-service/internal/store"
)

// QueueService is the engine surface the transport depends on.
type QueueService interface {
	Register(ctx context.Context, input queue.RegisterInput) (queue.TicketStatus, error)
	Status(ctx context.Context, venue, identity string) (queue.TicketStatus, error)
	Cancel(ctx context.Context, venue, identity string) (models.Ticket, error)
	CallNext(ctx context.Context, venue string) (models.Ticket, error)
	CallNumber(ctx context.Context, venue string, number int) (models.Ticket, error)
	Complete(ctx context.Context, venue string, number int) (models.Ticket, error)
	Link(ctx context.Context, venue, linkCode, identity string) (queue.TicketStatus, error)
	Snapshot(ctx context.Context, venue string) (models.QueueSnapshot, error)
	Events(ctx context.Context, venue string) ([]store.TicketEvent, error)
}

type Options struct {
	DefaultVenue  string
	StaffToken    string
	ChannelSecret string
}

type Handler struct {
	service       QueueService
	replier       Replier
	defaultVenue  string
	staffToken    string
	channelSecret string
}

func NewHandler(service QueueService, replier Replier, options Options) *Handler {
	return &Handler{
		service:       service,
		replier:       replier,
		defaultVenue:  options.DefaultVenue,
		staffToken:    options.StaffToken,
		channelSecret: options.ChannelSecret,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/tickets", h.handleRegister)
	mux.HandleFunc("/api/tickets/status", h.handleStatus)
	mux.HandleFunc("/api/tickets/cancel", h.handleCancel)
	mux.HandleFunc("/api/tickets/link", h.handleLink)
	mux.HandleFunc("/api/tickets/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tickets/actions/call", h.handleCallNumber)
	mux.HandleFunc("/api/tickets/actions/complete", h.handleComplete)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/webhook", h.handleWebhook)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type registerRequest struct {
	Venue       string `json:"venue"`
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	Contact     string `json:"contact"`
	PartySize   int    `json:"party_size"`
}

type registerResponse struct {
	TicketNumber int    `json:"ticket_number"`
	AheadCount   int    `json:"ahead_count"`
	LinkCode     string `json:"link_code,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	input := queue.RegisterInput{
		Venue:       h.venueOrDefault(req.Venue),
		Identity:    strings.TrimSpace(req.Identity),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Contact:     strings.TrimSpace(req.Contact),
		PartySize:   req.PartySize,
	}

	result, err := h.service.Register(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	resp := registerResponse{
		TicketNumber: result.Ticket.Number,
		AheadCount:   result.Ahead,
	}
	if result.Ticket.Identity == "" {
		resp.LinkCode = result.Ticket.LinkCode
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	TicketNumber int `json:"ticket_number"`
	AheadCount   int `json:"ahead_count"`
	PartySize    int `json:"party_size"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	venue := h.venueOrDefault(r.URL.Query().Get("venue"))
	identity := strings.TrimSpace(r.URL.Query().Get("identity"))
	if identity == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "identity is required")
		return
	}

	result, err := h.service.Status(r.Context(), venue, identity)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		TicketNumber: result.Ticket.Number,
		AheadCount:   result.Ahead,
		PartySize:    result.Ticket.PartySize,
	})
}

type identityRequest struct {
	Venue    string `json:"venue"`
	Identity string `json:"identity"`
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req identityRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Identity = strings.TrimSpace(req.Identity)
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "identity is required")
		return
	}

	if _, err := h.service.Cancel(r.Context(), h.venueOrDefault(req.Venue), req.Identity); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type linkRequest struct {
	Venue    string `json:"venue"`
	LinkCode string `json:"link_code"`
	Identity string `json:"identity"`
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req linkRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	result, err := h.service.Link(r.Context(), h.venueOrDefault(req.Venue), strings.TrimSpace(req.LinkCode), strings.TrimSpace(req.Identity))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		TicketNumber: result.Ticket.Number,
		AheadCount:   result.Ahead,
	})
}

type staffActionRequest struct {
	Venue        string `json:"venue"`
	Number       int    `json:"number,omitempty"`
	SharedSecret string `json:"shared_secret,omitempty"`
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStaffRequest(w, r)
	if !ok {
		return
	}

	ticket, err := h.service.CallNext(r.Context(), h.venueOrDefault(req.Venue))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCallNumber(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStaffRequest(w, r)
	if !ok {
		return
	}
	if req.Number < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "number must be a positive integer")
		return
	}

	ticket, err := h.service.CallNumber(r.Context(), h.venueOrDefault(req.Venue), req.Number)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStaffRequest(w, r)
	if !ok {
		return
	}
	if req.Number < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "number must be a positive integer")
		return
	}

	ticket, err := h.service.Complete(r.Context(), h.venueOrDefault(req.Venue), req.Number)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := h.service.Snapshot(r.Context(), h.venueOrDefault(r.URL.Query().Get("venue")))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.staffTokenOK(r.Header.Get("X-Staff-Token")) {
		writeError(w, http.StatusForbidden, "forbidden", "staff token required")
		return
	}

	events, err := h.service.Events(r.Context(), h.venueOrDefault(r.URL.Query().Get("venue")))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) decodeStaffRequest(w http.ResponseWriter, r *http.Request) (staffActionRequest, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return staffActionRequest{}, false
	}

	var req staffActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return staffActionRequest{}, false
	}

	token := r.Header.Get("X-Staff-Token")
	if token == "" {
		token = req.SharedSecret
	}
	if !h.staffTokenOK(token) {
		writeError(w, http.StatusForbidden, "forbidden", "staff token required")
		return staffActionRequest{}, false
	}
	return req, true
}

// staffTokenOK compares in constant time. An unset configured token leaves
// staff endpoints open, matching single-venue deployments without staff auth.
func (h *Handler) staffTokenOK(token string) bool {
	if h.staffToken == "" {
		return true
	}
	return hmac.Equal([]byte(h.staffToken), []byte(token))
}

func (h *Handler) venueOrDefault(venue string) string {
	venue = strings.TrimSpace(venue)
	if venue == "" {
		return h.defaultVenue
	}
	return venue
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, queue.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrNoTicket):
		return http.StatusConflict, "queue_empty", "no tickets waiting"
	case errors.Is(err, store.ErrLinkCodeNotFound):
		return http.StatusNotFound, "link_code_not_found", "link code not found"
	case errors.Is(err, store.ErrLinkCodeUsed):
		return http.StatusConflict, "link_code_used", "link code already bound to another identity"
	case errors.Is(err, store.ErrActiveTicket):
		return http.StatusConflict, "active_ticket", "identity already has a waiting ticket"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
