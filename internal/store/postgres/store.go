package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"waitlist/queue-service/internal/models"
	"waitlist/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketColumns = `ticket_id, venue, session_key, number, identity, display_name, contact, party_size, status, link_code, created_at, called_at, done_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) RolloverSession(ctx context.Context, venue, sessionKey string, at time.Time) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// The conditional upsert wins for exactly one request per boundary;
	// everyone else sees no row and skips the cancel sweep.
	var current string
	row := tx.QueryRow(ctx, `
		INSERT INTO venue_sessions (venue, session_key)
		VALUES ($1, $2)
		ON CONFLICT (venue) DO UPDATE SET session_key = EXCLUDED.session_key
		WHERE venue_sessions.session_key <> EXCLUDED.session_key
		RETURNING session_key
	`, venue, sessionKey)
	if err = row.Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			return false, tx.Commit(ctx)
		}
		return false, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE tickets
		SET status = $3
		WHERE venue = $1 AND session_key <> $2 AND status = $4
		RETURNING ticket_id, session_key, number
	`, venue, sessionKey, models.StatusCancelled, models.StatusWaiting)
	if err != nil {
		return false, err
	}
	type cancelled struct {
		ticketID   string
		sessionKey string
		number     int
	}
	var swept []cancelled
	for rows.Next() {
		var c cancelled
		if err = rows.Scan(&c.ticketID, &c.sessionKey, &c.number); err != nil {
			rows.Close()
			return false, err
		}
		swept = append(swept, c)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return false, err
	}

	for _, c := range swept {
		if err = insertTicketEvent(ctx, tx, venue, c.sessionKey, c.ticketID, c.number, store.EventCancelled, at); err != nil {
			return false, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if input.Identity != "" {
		existing, found, lookupErr := waitingByIdentityTx(ctx, tx, input.Venue, input.SessionKey, input.Identity)
		if lookupErr != nil {
			err = lookupErr
			return models.Ticket{}, false, err
		}
		if found {
			if err = tx.Commit(ctx); err != nil {
				return models.Ticket{}, false, err
			}
			return existing, false, nil
		}
	}

	number, err := nextTicketNumber(ctx, tx, input.Venue, input.SessionKey)
	if err != nil {
		return models.Ticket{}, false, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	ticketID := uuid.NewString()

	var ticket models.Ticket
	row := tx.QueryRow(ctx, `
		INSERT INTO tickets (
			ticket_id, venue, session_key, number, identity, display_name, contact,
			party_size, status, link_code, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING `+ticketColumns+`
	`, ticketID, input.Venue, input.SessionKey, number, input.Identity, input.DisplayName,
		input.Contact, input.PartySize, models.StatusWaiting, nullIfEmpty(input.LinkCode), createdAt)
	ticket, err = scanTicket(row)
	if err != nil {
		if isUniqueViolation(err) && input.Identity != "" {
			// Lost a race with a concurrent register for the same identity.
			// The state already changed; return the winner's ticket.
			_ = tx.Rollback(ctx)
			existing, found, lookupErr := s.WaitingByIdentity(ctx, input.Venue, input.SessionKey, input.Identity)
			if lookupErr == nil && found {
				err = nil
				return existing, false, nil
			}
		}
		return models.Ticket{}, false, err
	}

	if err = insertTicketEvent(ctx, tx, ticket.Venue, ticket.SessionKey, ticket.TicketID, ticket.Number, store.EventCreated, createdAt); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) WaitingByIdentity(ctx context.Context, venue, sessionKey, identity string) (models.Ticket, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE venue = $1 AND session_key = $2 AND identity = $3 AND status = $4
		ORDER BY number ASC
		LIMIT 1
	`, venue, sessionKey, identity, models.StatusWaiting)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) TicketByNumber(ctx context.Context, venue, sessionKey string, number int) (models.Ticket, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE venue = $1 AND session_key = $2 AND number = $3
	`, venue, sessionKey, number)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) CountAhead(ctx context.Context, venue, sessionKey string, number int) (int, error) {
	var count int
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tickets
		WHERE venue = $1 AND session_key = $2 AND status = $3 AND number < $4
	`, venue, sessionKey, models.StatusWaiting, number)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListQueue(ctx context.Context, venue, sessionKey string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE venue = $1 AND session_key = $2 AND status IN ($3, $4)
		ORDER BY number ASC
	`, venue, sessionKey, models.StatusWaiting, models.StatusCalled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) CallNext(ctx context.Context, venue, sessionKey string, calledAt time.Time) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = $4, called_at = $3
		WHERE ticket_id = (
			SELECT ticket_id
			FROM tickets
			WHERE venue = $1 AND session_key = $2 AND status = $5
			ORDER BY number ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+ticketColumns+`
	`, venue, sessionKey, calledAt, models.StatusCalled, models.StatusWaiting)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return models.Ticket{}, false, commitErr
			}
			return models.Ticket{}, false, store.ErrNoTicket
		}
		return models.Ticket{}, false, err
	}

	if err = insertTicketEvent(ctx, tx, venue, sessionKey, ticket.TicketID, ticket.Number, store.EventCalled, calledAt); err != nil {
		return models.Ticket{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) CallNumber(ctx context.Context, venue, sessionKey string, number int, calledAt time.Time) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = $5, called_at = $4
		WHERE venue = $1 AND session_key = $2 AND number = $3 AND status = $6
		RETURNING `+ticketColumns+`
	`, venue, sessionKey, number, calledAt, models.StatusCalled, models.StatusWaiting)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}

	if err = insertTicketEvent(ctx, tx, venue, sessionKey, ticket.TicketID, ticket.Number, store.EventCalled, calledAt); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CancelTicket(ctx context.Context, venue, sessionKey, identity string) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = $4
		WHERE venue = $1 AND session_key = $2 AND identity = $3 AND status = $5
		RETURNING `+ticketColumns+`
	`, venue, sessionKey, identity, models.StatusCancelled, models.StatusWaiting)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}

	if err = insertTicketEvent(ctx, tx, venue, sessionKey, ticket.TicketID, ticket.Number, store.EventCancelled, time.Now().UTC()); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CompleteTicket(ctx context.Context, venue, sessionKey string, number int, doneAt time.Time) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = $5, done_at = $4
		WHERE venue = $1 AND session_key = $2 AND number = $3 AND status = $6
		RETURNING `+ticketColumns+`
	`, venue, sessionKey, number, doneAt, models.StatusDone, models.StatusCalled)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}

	if err = insertTicketEvent(ctx, tx, venue, sessionKey, ticket.TicketID, ticket.Number, store.EventDone, doneAt); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) BindIdentity(ctx context.Context, venue, linkCode, identity string) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE venue = $1 AND link_code = $2
		FOR UPDATE
	`, venue, linkCode)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrLinkCodeNotFound
		}
		return models.Ticket{}, err
	}

	if ticket.Identity == identity {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, err
		}
		return ticket, nil
	}
	if ticket.Identity != "" {
		err = store.ErrLinkCodeUsed
		return models.Ticket{}, err
	}
	if !store.ValidTransition("link", ticket.Status) {
		err = store.ErrInvalidState
		return models.Ticket{}, err
	}

	_, found, err := waitingByIdentityTx(ctx, tx, venue, ticket.SessionKey, identity)
	if err != nil {
		return models.Ticket{}, err
	}
	if found {
		err = store.ErrActiveTicket
		return models.Ticket{}, err
	}

	row = tx.QueryRow(ctx, `
		UPDATE tickets
		SET identity = $2
		WHERE ticket_id = $1
		RETURNING `+ticketColumns+`
	`, ticket.TicketID, identity)
	ticket, err = scanTicket(row)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertTicketEvent(ctx, tx, venue, ticket.SessionKey, ticket.TicketID, ticket.Number, store.EventLinked, time.Now().UTC()); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListTicketEvents(ctx context.Context, venue, sessionKey string) ([]store.TicketEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, ticket_id, venue, session_key, number, type, created_at
		FROM ticket_events
		WHERE venue = $1 AND session_key = $2
		ORDER BY created_at ASC
	`, venue, sessionKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.TicketEvent
	for rows.Next() {
		var event store.TicketEvent
		if err := rows.Scan(&event.EventID, &event.TicketID, &event.Venue, &event.SessionKey, &event.Number, &event.Type, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func nextTicketNumber(ctx context.Context, tx pgx.Tx, venue, sessionKey string) (int, error) {
	var next int
	row := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (venue, session_key, next_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (venue, session_key)
		DO UPDATE SET next_number = ticket_sequences.next_number + 1
		RETURNING next_number
	`, venue, sessionKey)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func waitingByIdentityTx(ctx context.Context, tx pgx.Tx, venue, sessionKey, identity string) (models.Ticket, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE venue = $1 AND session_key = $2 AND identity = $3 AND status = $4
		ORDER BY number ASC
		LIMIT 1
	`, venue, sessionKey, identity, models.StatusWaiting)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func insertTicketEvent(ctx context.Context, tx pgx.Tx, venue, sessionKey, ticketID string, number int, eventType string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ticket_events (event_id, ticket_id, venue, session_key, number, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), ticketID, venue, sessionKey, number, eventType, at)
	return err
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var linkCodeNull sql.NullString
	var calledAtNull sql.NullTime
	var doneAtNull sql.NullTime
	if err := row.Scan(&ticket.TicketID, &ticket.Venue, &ticket.SessionKey, &ticket.Number,
		&ticket.Identity, &ticket.DisplayName, &ticket.Contact, &ticket.PartySize,
		&ticket.Status, &linkCodeNull, &ticket.CreatedAt, &calledAtNull, &doneAtNull); err != nil {
		return models.Ticket{}, err
	}
	if linkCodeNull.Valid {
		ticket.LinkCode = linkCodeNull.String
	}
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.DoneAt = nullTimePtr(doneAtNull)
	return ticket, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}
