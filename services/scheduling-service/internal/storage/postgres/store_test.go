package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func appointmentRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "client_id", "start_at", "duration_minutes", "type", "notes", "status",
		"reminder_sent", "source_request_id", "created_at", "updated_at",
	})
}

func TestInTenantTxLocksTenantThenInserts(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("tenant:org-1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("org-1", "client-1", start, 90, "Fitting", "", "Scheduled", false, "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("appt-1", created, created))
	mock.ExpectCommit()

	s := New(mock)
	appt := &model.Appointment{
		TenantID: "org-1", ClientID: "client-1", StartAt: start, DurationMinutes: 90,
		Type: "Fitting", Status: model.StatusScheduled,
	}
	err := s.InTenantTx(context.Background(), "org-1", func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertAppointment(ctx, appt)
	})
	if err != nil {
		t.Fatalf("InTenantTx: %v", err)
	}
	if appt.ID != "appt-1" || !appt.CreatedAt.Equal(created) {
		t.Fatalf("expected returned id and timestamps, got %+v", appt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetAppointmentMapsNoRowsToNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments WHERE id").WithArgs("missing").WillReturnRows(appointmentRows())
	mock.ExpectRollback()

	err := New(mock).InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.GetAppointment(ctx, "missing")
		return err
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListAppointmentsInRangeScans(t *testing.T) {
	mock := newMock(t)
	from := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 1, 15, 45, 0, 0, time.UTC)
	start := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("start_at >= \\$2 AND start_at < \\$3").WithArgs("org-1", from, to).WillReturnRows(appointmentRows().
		AddRow("appt-1", "org-1", "client-1", start, 90, "Consultation", "", "Scheduled", false, "", start, start))
	mock.ExpectCommit()

	var got []model.Appointment
	err := New(mock).InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		got, err = tx.ListAppointmentsInRange(ctx, "org-1", from, to)
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if len(got) != 1 || got[0].Status != model.StatusScheduled || !got[0].End().Equal(start.Add(90*time.Minute)) {
		t.Fatalf("unexpected appointments %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateRequestWithoutRowIsNotFound(t *testing.T) {
	mock := newMock(t)
	decided := time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointment_requests").
		WithArgs("req-9", "Rejected", "", "staff-1", &decided).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := New(mock).InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.UpdateRequest(ctx, &model.AppointmentRequest{ID: "req-9", Status: model.RequestRejected, DecidedBy: "staff-1", DecidedAt: &decided})
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPortalTokenLookupDoesNotLeakToken(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("WHERE portal_token = \\$1 AND active").WithArgs("secret-token").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := New(mock).InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.GetClientByPortalToken(ctx, "secret-token")
		return err
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := err.Error(); got != "not found: portal token" {
		t.Fatalf("unexpected message %q", got)
	}
}
