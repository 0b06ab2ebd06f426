package appointments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/libs/outbox"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/availability"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/metrics"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage/memory"
)

var testNow = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New(clock.Fixed(testNow))
	store.AddClient(model.Client{ID: "c1", TenantID: "org-1", Name: "Ava", Email: "ava@example.com", PortalToken: "tok-1", Active: true})
	store.AddClient(model.Client{ID: "c2", TenantID: "org-1", Name: "Mia", Active: true})
	store.AddClient(model.Client{ID: "x1", TenantID: "org-2", Name: "Zoe", Active: true})
	return NewService(store, clock.Fixed(testNow), metrics.New(prometheus.NewRegistry()), 0), store
}

func book(t *testing.T, s *Service, clientID, start string) model.Appointment {
	t.Helper()
	appt, err := s.Book(context.Background(), "org-1", NewAppointment{ClientID: clientID, StartTime: start, Type: "Fitting"})
	if err != nil {
		t.Fatalf("Book(%s): %v", start, err)
	}
	return appt
}

func TestBookAppliesDefaultsAndEmitsEvent(t *testing.T) {
	s, store := newTestService(t)
	appt := book(t, s, "c1", "2024-06-01T14:00:00Z")

	if appt.ID == "" || appt.Status != model.StatusScheduled || appt.DurationMinutes != model.DefaultDurationMinutes {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if appt.ReminderSent {
		t.Fatal("new appointments start without a reminder")
	}
	events := store.Events()
	if len(events) != 1 || events[0].EventType != outbox.AppointmentBooked || events[0].AggregateID != appt.ID {
		t.Fatalf("expected one booked event, got %+v", events)
	}
}

func TestBookConflictDetected(t *testing.T) {
	s, store := newTestService(t)
	book(t, s, "c1", "2024-06-01T14:00:00Z")

	_, err := s.Book(context.Background(), "org-1", NewAppointment{ClientID: "c2", StartTime: "2024-06-01T14:45:00Z", Type: "Consultation", DurationMinutes: 60})
	var conflict *availability.ConflictError
	if !errors.As(err, &conflict) || len(conflict.Conflicts) != 1 {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(store.Events()) != 1 {
		t.Fatal("a rejected booking must not write an event")
	}

	if _, err := s.Book(context.Background(), "org-1", NewAppointment{ClientID: "c2", StartTime: "2024-06-01T15:30:00Z", Type: "Consultation", DurationMinutes: 60}); err != nil {
		t.Fatalf("booking at the exclusive end should succeed: %v", err)
	}
}

func TestBookValidation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   NewAppointment
		want error
	}{
		{"bad time", NewAppointment{ClientID: "c1", StartTime: "next tuesday", Type: "Fitting"}, apperr.ErrInvalidArgument},
		{"negative duration", NewAppointment{ClientID: "c1", StartTime: "2024-06-01T10:00:00Z", Type: "Fitting", DurationMinutes: -5}, apperr.ErrInvalidArgument},
		{"missing type", NewAppointment{ClientID: "c1", StartTime: "2024-06-01T10:00:00Z"}, apperr.ErrInvalidArgument},
		{"unknown client", NewAppointment{ClientID: "nope", StartTime: "2024-06-01T10:00:00Z", Type: "Fitting"}, apperr.ErrNotFound},
		{"foreign client", NewAppointment{ClientID: "x1", StartTime: "2024-06-01T10:00:00Z", Type: "Fitting"}, apperr.ErrForbidden},
	}
	for _, tc := range cases {
		if _, err := s.Book(ctx, "org-1", tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if _, err := s.Book(ctx, "", NewAppointment{}); !errors.Is(err, apperr.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated without tenant, got %v", err)
	}
}

func TestConcurrentBookingsForSameSlot(t *testing.T) {
	s, _ := newTestService(t)
	const attempts = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Book(context.Background(), "org-1", NewAppointment{ClientID: "c1", StartTime: "2024-06-01T14:00:00Z", Type: "Fitting"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || conflicts != attempts-1 {
		t.Fatalf("expected exactly one booking, got ok=%d conflicts=%d", ok, conflicts)
	}
}

func TestRescheduleExcludesItselfAndResetsReminder(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	appt := book(t, s, "c1", "2024-06-01T14:00:00Z")

	_ = store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		a, _ := tx.GetAppointment(ctx, appt.ID)
		a.ReminderSent = true
		return tx.UpdateAppointment(ctx, &a)
	})

	moved, err := s.Reschedule(ctx, "org-1", appt.ID, "2024-06-01T14:30:00Z", 0)
	if err != nil {
		t.Fatalf("shifting into its own old slot must not self-conflict: %v", err)
	}
	if moved.ReminderSent {
		t.Fatal("reschedule must clear the reminder flag")
	}
	if moved.DurationMinutes != model.DefaultDurationMinutes {
		t.Fatalf("duration should carry over, got %d", moved.DurationMinutes)
	}

	other := book(t, s, "c2", "2024-06-01T17:00:00Z")
	if _, err := s.Reschedule(ctx, "org-1", other.ID, "2024-06-01T15:00:00Z", 60); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict moving onto another booking, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	appt := book(t, s, "c1", "2024-06-01T14:00:00Z")

	if _, err := s.Get(ctx, "org-2", appt.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("Get: expected forbidden, got %v", err)
	}
	if _, err := s.UpdateStatus(ctx, "org-2", appt.ID, "Cancelled"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("UpdateStatus: expected forbidden, got %v", err)
	}
	if _, err := s.Reschedule(ctx, "org-2", appt.ID, "2024-06-02T10:00:00Z", 0); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("Reschedule: expected forbidden, got %v", err)
	}
	if err := s.Delete(ctx, "org-2", appt.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("Delete: expected forbidden, got %v", err)
	}
	list, err := s.List(ctx, "org-2", storage.AppointmentFilter{})
	if err != nil || len(list) != 0 {
		t.Fatalf("org-2 must not see org-1 appointments, got %d (%v)", len(list), err)
	}
}

func TestCancelledSlotCanBeRebookedButNotRestored(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	first := book(t, s, "c1", "2024-06-01T14:00:00Z")

	if _, err := s.UpdateStatus(ctx, "org-1", first.ID, "Cancelled"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	book(t, s, "c2", "2024-06-01T14:00:00Z")

	if _, err := s.UpdateStatus(ctx, "org-1", first.ID, "Scheduled"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("restoring into a rebooked slot must conflict, got %v", err)
	}
	if _, err := s.UpdateStatus(ctx, "org-1", first.ID, "Postponed"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for unknown status, got %v", err)
	}
}

func TestDeleteRemovesOnlyThatAppointment(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	a := book(t, s, "c1", "2024-06-01T10:00:00Z")
	b := book(t, s, "c1", "2024-06-01T14:00:00Z")

	if err := s.Delete(ctx, "org-1", a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "org-1", a.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("deleted appointment should be gone, got %v", err)
	}
	if _, err := s.Get(ctx, "org-1", b.ID); err != nil {
		t.Fatalf("other appointment must survive: %v", err)
	}
}

func TestSlotsSkipBookedTimes(t *testing.T) {
	s, _ := newTestService(t)
	book(t, s, "c1", "2024-06-01T10:00:00Z")

	slots, err := s.Slots(context.Background(), "org-1", SlotQuery{Date: "2024-06-01", DurationMinutes: 90, StepMinutes: 90, WorkdayStart: "10:00", WorkdayEnd: "14:30"})
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(slots) != 2 || slots[0].Start.Hour() != 11 || slots[0].Start.Minute() != 30 {
		t.Fatalf("unexpected slots %+v", slots)
	}

	if _, err := s.Slots(context.Background(), "org-1", SlotQuery{Date: "June 1st"}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for bad date, got %v", err)
	}
}
