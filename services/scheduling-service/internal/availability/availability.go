package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps treats both intervals as half-open: [s1,e1) and [s2,e2) overlap
// iff s1 < e2 && s2 < e1. Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func IntervalOf(a model.Appointment) Interval {
	return Interval{Start: a.StartAt, End: a.End()}
}

type Result struct {
	Available bool
	Conflicts []model.Appointment
}

// Check tests candidate against existing. Cancelled appointments and the one
// with id excludeID never conflict.
func Check(candidate Interval, existing []model.Appointment, excludeID string) Result {
	var conflicts []model.Appointment
	for _, a := range existing {
		if a.Status == model.StatusCancelled {
			continue
		}
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if candidate.Overlaps(IntervalOf(a)) {
			conflicts = append(conflicts, a)
		}
	}
	return Result{Available: len(conflicts) == 0, Conflicts: conflicts}
}

// Source returns a tenant's appointments starting in [from, to).
type Source interface {
	ListAppointmentsInRange(ctx context.Context, tenantID string, from, to time.Time) ([]model.Appointment, error)
}

type Checker struct {
	src Source
}

func NewChecker(src Source) *Checker {
	return &Checker{src: src}
}

func (c *Checker) CheckAvailability(ctx context.Context, tenantID string, start time.Time, durationMinutes int, excludeID string) (Result, error) {
	if durationMinutes <= 0 || durationMinutes > model.MaxDurationMinutes {
		return Result{}, fmt.Errorf("%w: duration must be between 1 and %d minutes", apperr.ErrInvalidArgument, model.MaxDurationMinutes)
	}
	candidate := Interval{Start: start, End: start.Add(time.Duration(durationMinutes) * time.Minute)}

	// Anything that can overlap starts before candidate.End and no earlier
	// than the longest possible appointment before candidate.Start.
	from := candidate.Start.Add(-model.MaxDurationMinutes * time.Minute)
	existing, err := c.src.ListAppointmentsInRange(ctx, tenantID, from, candidate.End)
	if err != nil {
		return Result{}, err
	}
	return Check(candidate, existing, excludeID), nil
}

// Require is CheckAvailability that fails with a *ConflictError when the
// slot is taken.
func (c *Checker) Require(ctx context.Context, tenantID string, start time.Time, durationMinutes int, excludeID string) error {
	res, err := c.CheckAvailability(ctx, tenantID, start, durationMinutes, excludeID)
	if err != nil {
		return err
	}
	if !res.Available {
		return &ConflictError{Conflicts: res.Conflicts}
	}
	return nil
}

type ConflictError struct {
	Conflicts []model.Appointment
}

func (e *ConflictError) Error() string {
	slots := make([]string, 0, len(e.Conflicts))
	for _, a := range e.Conflicts {
		slots = append(slots, a.StartAt.UTC().Format(time.RFC3339)+"-"+a.End().UTC().Format("15:04"))
	}
	return "conflict detected: overlaps " + strings.Join(slots, ", ")
}

func (e *ConflictError) Unwrap() error { return apperr.ErrConflict }
