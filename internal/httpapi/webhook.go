package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"waitlist/queue-service/internal/command"
	"waitlist/queue-service/internal/line"
	"waitlist/queue-service/internal/models"
	"waitlist/queue-service/internal/queue"
	"waitlist/queue-service/internal/store"
)

const maxWebhookBody = 1 << 20

// Replier answers a webhook event over the messaging channel.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

const helpText = "Walk-in waiting list.\n" +
	"join: take a ticket\n" +
	"status: check your place in line\n" +
	"cancel: give up your ticket\n" +
	"link <code>: get notified for a ticket registered at the counter"

// handleWebhook authenticates and dispatches a batch of messaging events.
// A bad signature rejects the whole batch before anything is parsed.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unreadable body")
		return
	}

	if !line.VerifySignature(h.channelSecret, body, r.Header.Get("X-Line-Signature")) {
		log.Printf("webhook signature mismatch")
		writeError(w, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
		return
	}

	req, err := line.ParseWebhook(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid webhook payload")
		return
	}

	for _, event := range req.Events {
		h.handleMessagingEvent(r.Context(), event)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleMessagingEvent(ctx context.Context, event line.Event) {
	if event.Type != "message" || event.Message.Type != "text" || event.Source.UserID == "" {
		return
	}

	cmd := command.Parse(event.Message.Text)
	if cmd.Staff() && !h.staffTokenOK(cmd.Secret) {
		h.reply(ctx, event.ReplyToken, "Staff command rejected: bad token.")
		return
	}

	h.reply(ctx, event.ReplyToken, h.runCommand(ctx, cmd, event.Source.UserID))
}

func (h *Handler) runCommand(ctx context.Context, cmd command.Command, identity string) string {
	venue := h.defaultVenue

	switch cmd.Kind {
	case command.Register:
		result, err := h.service.Register(ctx, queue.RegisterInput{
			Venue:       venue,
			Identity:    identity,
			DisplayName: "LINE guest",
			Contact:     identity,
			PartySize:   1,
		})
		if err != nil {
			return commandErrorText(err)
		}
		return fmt.Sprintf("You're in line! Ticket #%d, %d parties ahead of you.", result.Ticket.Number, result.Ahead)

	case command.Status:
		result, err := h.service.Status(ctx, venue, identity)
		if err != nil {
			if errors.Is(err, store.ErrTicketNotFound) {
				return "You're not in line yet. Send \"join\" to take a ticket."
			}
			return commandErrorText(err)
		}
		return fmt.Sprintf("Ticket #%d: %d parties ahead of you.", result.Ticket.Number, result.Ahead)

	case command.Cancel:
		ticket, err := h.service.Cancel(ctx, venue, identity)
		if err != nil {
			if errors.Is(err, store.ErrTicketNotFound) {
				return "No waiting ticket to cancel."
			}
			return commandErrorText(err)
		}
		return fmt.Sprintf("Ticket #%d cancelled. Come back any time.", ticket.Number)

	case command.LinkIdentity:
		result, err := h.service.Link(ctx, venue, cmd.Code, identity)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrLinkCodeNotFound):
				return "That code didn't match any ticket. Check the number on your receipt."
			case errors.Is(err, store.ErrLinkCodeUsed):
				return "That code is already linked to another account."
			case errors.Is(err, store.ErrActiveTicket):
				return "You already have a waiting ticket."
			case errors.Is(err, store.ErrInvalidState):
				return "That ticket is no longer waiting."
			}
			return commandErrorText(err)
		}
		return fmt.Sprintf("Ticket #%d linked: %d parties ahead. We'll message you here.", result.Ticket.Number, result.Ahead)

	case command.CallNext:
		ticket, err := h.service.CallNext(ctx, venue)
		if err != nil {
			if errors.Is(err, store.ErrNoTicket) {
				return "The queue is empty."
			}
			return commandErrorText(err)
		}
		return fmt.Sprintf("Called #%d: %s (%d people).", ticket.Number, ticket.DisplayName, ticket.PartySize)

	case command.CallNumber:
		ticket, err := h.service.CallNumber(ctx, venue, cmd.Number)
		if err != nil {
			if errors.Is(err, store.ErrTicketNotFound) {
				return fmt.Sprintf("Ticket #%d is not waiting.", cmd.Number)
			}
			return commandErrorText(err)
		}
		return fmt.Sprintf("Called #%d: %s (%d people).", ticket.Number, ticket.DisplayName, ticket.PartySize)

	case command.Complete:
		ticket, err := h.service.Complete(ctx, venue, cmd.Number)
		if err != nil {
			if errors.Is(err, store.ErrTicketNotFound) {
				return fmt.Sprintf("Ticket #%d is not in a called state.", cmd.Number)
			}
			return commandErrorText(err)
		}
		return fmt.Sprintf("Ticket #%d marked done.", ticket.Number)

	case command.List:
		snapshot, err := h.service.Snapshot(ctx, venue)
		if err != nil {
			return commandErrorText(err)
		}
		return snapshotText(snapshot)
	}

	return helpText
}

func snapshotText(snapshot models.QueueSnapshot) string {
	text := fmt.Sprintf("%d waiting, %d called.", snapshot.WaitingCount, snapshot.CalledCount)
	shown := 0
	for _, entry := range snapshot.Entries {
		if entry.Status != models.StatusWaiting {
			continue
		}
		text += fmt.Sprintf("\n#%d %s (%d)", entry.Number, entry.DisplayName, entry.PartySize)
		shown++
		if shown == 5 {
			remaining := snapshot.WaitingCount - shown
			if remaining > 0 {
				text += fmt.Sprintf("\nand %d more", remaining)
			}
			break
		}
	}
	return text
}

func commandErrorText(err error) string {
	log.Printf("command error: %v", err)
	return "Something went wrong, please try again."
}

func (h *Handler) reply(ctx context.Context, replyToken, text string) {
	if h.replier == nil || replyToken == "" || text == "" {
		return
	}
	if err := h.replier.Reply(ctx, replyToken, text); err != nil {
		log.Printf("reply error: %v", err)
	}
}
