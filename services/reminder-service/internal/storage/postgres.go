// Package storage is the Postgres side of the reminder sweeps. It reads the
// tables owned by scheduling-service and only ever writes the reminder flags
// and the outbox.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bridalos/bridalos/libs/db"
	"github.com/bridalos/bridalos/libs/outbox"
	"github.com/bridalos/bridalos/services/reminder-service/internal/model"
)

type Store struct {
	db db.Querier
}

func New(q db.Querier) *Store {
	return &Store{db: q}
}

// DueAppointments is served by the partial index on start_at where
// reminder_sent is false.
func (s *Store) DueAppointments(ctx context.Context, from, to time.Time) ([]model.DueAppointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.id::text, a.tenant_id, a.client_id::text, c.name, COALESCE(c.email, ''),
			COALESCE(c.portal_token, ''), a.start_at, a.type, a.status
		FROM appointments a
		JOIN clients c ON c.id = a.client_id
		WHERE a.start_at >= $1 AND a.start_at < $2
			AND a.reminder_sent = false
			AND a.status NOT IN ('Cancelled', 'Completed')
		ORDER BY a.start_at ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list due appointments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.DueAppointment, error) {
		var d model.DueAppointment
		err := row.Scan(&d.AppointmentID, &d.TenantID, &d.ClientID, &d.ClientName, &d.ClientEmail,
			&d.PortalToken, &d.StartAt, &d.Type, &d.Status)
		return d, err
	})
}

// ClaimAppointment is a conditional update, so of two concurrent sweeps only
// one sees a row affected. It also re-checks the start time and status that
// DueAppointments listed: a row rescheduled or cancelled since then is left
// alone and reports a lost claim.
func (s *Store) ClaimAppointment(ctx context.Context, id string, startAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET reminder_sent = true, updated_at = now()
		WHERE id = $1
			AND reminder_sent = false
			AND start_at = $2
			AND status NOT IN ('Cancelled', 'Completed')
	`, id, startAt)
	if err != nil {
		return false, fmt.Errorf("claim appointment %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseAppointment(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `UPDATE appointments SET reminder_sent = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release appointment %s: %w", id, err)
	}
	return nil
}

type reminderEvent struct {
	AppointmentID string `json:"appointment_id"`
	TenantID      string `json:"tenant_id"`
	ClientID      string `json:"client_id"`
	StartAt       string `json:"start_at"`
	SentAt        string `json:"sent_at"`
}

func (s *Store) RecordAppointmentReminder(ctx context.Context, due model.DueAppointment, sentAt time.Time) error {
	evt, err := outbox.NewEvent(due.TenantID, "appointment", due.AppointmentID, outbox.ReminderSent, reminderEvent{
		AppointmentID: due.AppointmentID,
		TenantID:      due.TenantID,
		ClientID:      due.ClientID,
		StartAt:       due.StartAt.UTC().Format(time.RFC3339),
		SentAt:        sentAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, s.db, evt)
}

type paymentReminderEvent struct {
	PaymentID   string `json:"payment_id"`
	TenantID    string `json:"tenant_id"`
	ClientID    string `json:"client_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	DueDate     string `json:"due_date"`
	SentAt      string `json:"sent_at"`
}

func (s *Store) RecordPaymentReminder(ctx context.Context, due model.DuePayment, sentAt time.Time) error {
	evt, err := outbox.NewEvent(due.TenantID, "payment", due.PaymentID, outbox.PaymentReminderSent, paymentReminderEvent{
		PaymentID:   due.PaymentID,
		TenantID:    due.TenantID,
		ClientID:    due.ClientID,
		AmountCents: due.AmountCents,
		Currency:    due.Currency,
		DueDate:     due.DueDate.UTC().Format(time.DateOnly),
		SentAt:      sentAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, s.db, evt)
}

func (s *Store) DuePayments(ctx context.Context, dueDate time.Time) ([]model.DuePayment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id::text, p.tenant_id, p.client_id::text, c.name, COALESCE(c.email, ''),
			COALESCE(c.portal_token, ''), p.amount_cents, p.currency, p.due_date, COALESCE(p.payment_link, '')
		FROM payments p
		JOIN clients c ON c.id = p.client_id
		WHERE p.due_date = $1::date
			AND p.status = 'Pending'
			AND p.reminder_sent_at IS NULL
		ORDER BY p.id
	`, dueDate.UTC().Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("list due payments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.DuePayment, error) {
		var p model.DuePayment
		err := row.Scan(&p.PaymentID, &p.TenantID, &p.ClientID, &p.ClientName, &p.ClientEmail,
			&p.PortalToken, &p.AmountCents, &p.Currency, &p.DueDate, &p.PaymentLink)
		return p, err
	})
}

func (s *Store) ClaimPayment(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payments SET reminder_sent_at = $2
		WHERE id = $1 AND reminder_sent_at IS NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("claim payment %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleasePayment(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `UPDATE payments SET reminder_sent_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release payment %s: %w", id, err)
	}
	return nil
}
