// Package clock is the single seam through which scheduling code reads the
// current time and does interval arithmetic, so sweeps and conflict checks
// can run against an injected clock in tests.
package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bridalos/bridalos/libs/apperr"
)

type Clock interface {
	Now() time.Time
}

type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// Fixed always reports the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f).UTC() }

// Manual is a settable clock for tests that need time to move.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func AddHours(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * time.Hour)
}

func IsBefore(a, b time.Time) bool { return a.Before(b) }

func IsAfter(a, b time.Time) bool { return a.After(b) }

// InRange reports whether t lies in the half-open range [from, to).
func InRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

// Window returns the half-open range [now+lead, now+lead+width).
func Window(now time.Time, lead, width time.Duration) (time.Time, time.Time) {
	from := now.Add(lead)
	return from, from.Add(width)
}

const dateLayout = "2006-01-02"

// ParseInstant parses an RFC 3339 timestamp or a bare YYYY-MM-DD date.
// Dates are read as midnight UTC.
func ParseInstant(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", apperr.ErrInvalidArgument)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: malformed date %q", apperr.ErrInvalidArgument, raw)
}

// FormatInstant renders t the way appointment dates are stored and exchanged.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatDate renders the UTC calendar date of t.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// NextHour returns the first top-of-the-hour instant strictly after t.
func NextHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour).Add(time.Hour)
}

// NextDailyAt returns the next instant strictly after t at hour:minute UTC.
func NextDailyAt(t time.Time, hour, minute int) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
