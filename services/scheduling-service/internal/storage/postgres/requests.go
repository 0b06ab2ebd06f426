package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bridalos/bridalos/libs/outbox"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
)

const requestColumns = `id::text, tenant_id, client_id::text, requested_date, requested_time, type, status,
	COALESCE(appointment_id::text, ''), COALESCE(decided_by, ''), decided_at, created_at`

func scanRequest(row pgx.CollectableRow) (model.AppointmentRequest, error) {
	var r model.AppointmentRequest
	var status string
	err := row.Scan(&r.ID, &r.TenantID, &r.ClientID, &r.RequestedDate, &r.RequestedTime, &r.Type, &status,
		&r.AppointmentID, &r.DecidedBy, &r.DecidedAt, &r.CreatedAt)
	r.Status = model.RequestStatus(status)
	return r, err
}

// GetRequest locks the row so concurrent approve/reject calls on one request
// queue behind each other.
func (t *txn) GetRequest(ctx context.Context, id string) (model.AppointmentRequest, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+requestColumns+` FROM appointment_requests WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return model.AppointmentRequest{}, mapErr(err, "request", id)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRequest)
	return r, mapErr(err, "request", id)
}

func (t *txn) ListRequests(ctx context.Context, tenantID string, f storage.RequestFilter) ([]model.AppointmentRequest, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+requestColumns+`
		FROM appointment_requests
		WHERE tenant_id = $1
			AND ($2 = '' OR client_id::text = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY created_at ASC, id ASC
	`, tenantID, f.ClientID, string(f.Status))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRequest)
}

func (t *txn) InsertRequest(ctx context.Context, r *model.AppointmentRequest) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointment_requests (tenant_id, client_id, requested_date, requested_time, type, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, created_at
	`, r.TenantID, r.ClientID, r.RequestedDate, r.RequestedTime, r.Type, string(r.Status)).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (t *txn) UpdateRequest(ctx context.Context, r *model.AppointmentRequest) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointment_requests
		SET status = $2,
			appointment_id = NULLIF($3, '')::uuid,
			decided_by = NULLIF($4, ''),
			decided_at = $5
		WHERE id = $1
	`, r.ID, string(r.Status), r.AppointmentID, r.DecidedBy, r.DecidedAt)
	if err != nil {
		return mapErr(err, "request", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return mapErr(pgx.ErrNoRows, "request", r.ID)
	}
	return nil
}

func (t *txn) AddEvent(ctx context.Context, evt outbox.Event) error {
	return outbox.Insert(ctx, t.tx, evt)
}
