package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/chatbook/libs/db"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/outbox"
)

const appointmentColumns = `id::text, user_id, start_at, duration_minutes, status, notes,
	COALESCE(rescheduled_from::text, ''), cancelled_at, created_at, updated_at`

type PostgresStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgresStore(pool *db.Pool, outboxRepo *outbox.Repository) *PostgresStore {
	return &PostgresStore{pool: pool, outbox: outboxRepo}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *PostgresStore) Overlapping(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	return queryOverlapping(ctx, s.pool, start, end)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	return appt, mapError(err)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, filter ListFilter) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY start_at ASC, created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	appts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
	if err != nil {
		return nil, err
	}
	return filterAppointments(appts, filter), nil
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) LockDate(ctx context.Context, date time.Time) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('appointments:' || $1::text))`, date.UTC().Format("2006-01-02"))
	return err
}

func (t *pgTx) Overlapping(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	return queryOverlapping(ctx, t.tx, start, end)
}

func (t *pgTx) GetForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, ErrNotFound
	}
	row := t.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	appt, err := scanAppointment(row)
	return appt, mapError(err)
}

func (t *pgTx) Insert(ctx context.Context, a model.Appointment) error {
	var rescheduledFrom *string
	if a.RescheduledFrom != "" {
		rescheduledFrom = &a.RescheduledFrom
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, user_id, start_at, end_at, duration_minutes, status, notes, rescheduled_from, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.UserID, a.StartTime, a.EndTime(), a.DurationMinutes, string(a.Status), a.Notes,
		rescheduledFrom, a.CreatedAt, a.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			updated_at = $3,
			cancelled_at = CASE WHEN $2 = 'cancelled' THEN $3 ELSE cancelled_at END
		WHERE id = $1
	`, id, string(status), at)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) Emit(ctx context.Context, evt outbox.Event) error {
	if err := t.outbox.Insert(ctx, t.tx, evt); err != nil {
		return fmt.Errorf("outbox insert: %w", err)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryOverlapping(ctx context.Context, q querier, start, end time.Time) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
			AND start_at < $2
			AND end_at > $1
		ORDER BY start_at ASC
	`, start, end)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(&a.ID, &a.UserID, &a.StartTime, &a.DurationMinutes, &status, &a.Notes,
		&a.RescheduledFrom, &a.CancelledAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	a.StartTime = a.StartTime.UTC()
	return a, nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return ErrNotFound
	case IsConflict(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsConflict matches the exclusion constraint on scheduled ranges (23P01).
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23P01"
	}
	return false
}
