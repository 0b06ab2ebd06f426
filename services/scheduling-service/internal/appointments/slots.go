package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/availability"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
)

// SlotQuery asks for free slots on one UTC day between WorkdayStart and
// WorkdayEnd ("HH:MM").
type SlotQuery struct {
	Date            string
	DurationMinutes int
	StepMinutes     int
	WorkdayStart    string
	WorkdayEnd      string
}

func (s *Service) Slots(ctx context.Context, tenantID string, q SlotQuery) ([]availability.Interval, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	day, err := time.Parse(time.DateOnly, q.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", apperr.ErrInvalidArgument)
	}
	duration := s.durationOrDefault(q.DurationMinutes)
	if duration <= 0 || duration > model.MaxDurationMinutes {
		return nil, fmt.Errorf("%w: invalid duration_minutes", apperr.ErrInvalidArgument)
	}
	step := q.StepMinutes
	if step == 0 {
		step = 30
	}
	if step < 5 {
		return nil, fmt.Errorf("%w: slot_step_minutes must be at least 5", apperr.ErrInvalidArgument)
	}
	open, err := clockOffset(day, q.WorkdayStart, "10:00")
	if err != nil {
		return nil, err
	}
	closeAt, err := clockOffset(day, q.WorkdayEnd, "18:00")
	if err != nil {
		return nil, err
	}

	var busy []availability.Interval
	err = s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		appts, err := tx.ListAppointmentsInRange(ctx, tenantID, open.Add(-model.MaxDurationMinutes*time.Minute), closeAt)
		if err != nil {
			return err
		}
		busy = availability.Busy(appts)
		return nil
	})
	if err != nil {
		return nil, err
	}

	length := time.Duration(duration) * time.Minute
	starts := availability.AvailableSlots(open, closeAt, length, time.Duration(step)*time.Minute, busy, s.clock.Now())
	out := make([]availability.Interval, 0, len(starts))
	for _, st := range starts {
		out = append(out, availability.Interval{Start: st, End: st.Add(length)})
	}
	return out, nil
}

func clockOffset(day time.Time, hhmm, fallback string) (time.Time, error) {
	if hhmm == "" {
		hhmm = fallback
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: workday bounds must be HH:MM", apperr.ErrInvalidArgument)
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}
