package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
)

const appointmentColumns = `id::text, tenant_id, client_id::text, start_at, duration_minutes, type, notes, status,
	reminder_sent, COALESCE(source_request_id::text, ''), created_at, updated_at`

func scanAppointment(row pgx.CollectableRow) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(&a.ID, &a.TenantID, &a.ClientID, &a.StartAt, &a.DurationMinutes, &a.Type, &a.Notes, &status,
		&a.ReminderSent, &a.SourceRequestID, &a.CreatedAt, &a.UpdatedAt)
	a.Status = model.AppointmentStatus(status)
	return a, err
}

func (t *txn) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return model.Appointment{}, mapErr(err, "appointment", id)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAppointment)
	return a, mapErr(err, "appointment", id)
}

func (t *txn) ListAppointments(ctx context.Context, tenantID string, f storage.AppointmentFilter) ([]model.Appointment, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	var from, to *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
			AND ($2 = '' OR client_id::text = $2)
			AND ($3::timestamptz IS NULL OR start_at >= $3)
			AND ($4::timestamptz IS NULL OR start_at < $4)
		ORDER BY start_at ASC, id ASC
		LIMIT $5
	`, tenantID, f.ClientID, from, to, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAppointment)
}

// ListAppointmentsInRange is served by the (tenant_id, start_at) index.
func (t *txn) ListAppointmentsInRange(ctx context.Context, tenantID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND start_at >= $2 AND start_at < $3
		ORDER BY start_at ASC
	`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAppointment)
}

func (t *txn) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(tenant_id, client_id, start_at, duration_minutes, type, notes, status, reminder_sent, source_request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, '')::uuid)
		RETURNING id::text, created_at, updated_at
	`, a.TenantID, a.ClientID, a.StartAt, a.DurationMinutes, a.Type, a.Notes, string(a.Status), a.ReminderSent, a.SourceRequestID).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *txn) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_at = $2,
			duration_minutes = $3,
			type = $4,
			notes = $5,
			status = $6,
			reminder_sent = $7,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.StartAt, a.DurationMinutes, a.Type, a.Notes, string(a.Status), a.ReminderSent).Scan(&a.UpdatedAt)
	return mapErr(err, "appointment", a.ID)
}

func (t *txn) DeleteAppointment(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "appointment", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %q", apperr.ErrNotFound, id)
	}
	return nil
}
