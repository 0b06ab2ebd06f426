// Package reminders implements the appointment reminder sweep: every run
// finds appointments starting in [slot+Lead, slot+Lead+Width) that have not
// been reminded and sends each exactly one reminder. slot is the run time
// truncated to Width, so a run that starts late still scans the band of the
// hour it belongs to and consecutive bands stay back to back.
//
// The reminder_sent flag is the only idempotency guard. A run claims an
// appointment by flipping the flag before sending, so concurrent or
// repeated sweeps never double-send. A failed send releases the claim.
package reminders

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/services/reminder-service/internal/metrics"
	"github.com/bridalos/bridalos/services/reminder-service/internal/model"
	"github.com/bridalos/bridalos/services/reminder-service/internal/notify"
)

const kind = "appointment"

// Store is the persistence the sweep needs.
type Store interface {
	// DueAppointments returns unreminded appointments starting in [from, to)
	// that are neither Cancelled nor Completed.
	DueAppointments(ctx context.Context, from, to time.Time) ([]model.DueAppointment, error)
	// ClaimAppointment sets reminder_sent if it was still false and the row
	// still starts at startAt and is neither Cancelled nor Completed. It
	// reports whether this caller won.
	ClaimAppointment(ctx context.Context, id string, startAt time.Time) (bool, error)
	ReleaseAppointment(ctx context.Context, id string) error
	// RecordAppointmentReminder emits the reminder.sent event.
	RecordAppointmentReminder(ctx context.Context, due model.DueAppointment, sentAt time.Time) error
}

type Config struct {
	Lead  time.Duration
	Width time.Duration
	// RetryGrace pulls the lower bound back so a send that failed on the
	// previous run gets one more attempt. Zero keeps the strict band.
	RetryGrace time.Duration
	// PortalBaseURL prefixes the client's portal token in the email.
	PortalBaseURL string
}

type Dispatcher struct {
	store   Store
	gateway notify.Gateway
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     Config
}

func NewDispatcher(store Store, gateway notify.Gateway, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Dispatcher {
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.Width <= 0 {
		cfg.Width = time.Hour
	}
	if cfg.RetryGrace < 0 {
		cfg.RetryGrace = 0
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, gateway: gateway, clock: clk, logger: logger, metrics: m, cfg: cfg}
}

// Window is the band the next Sweep will scan.
func (d *Dispatcher) Window() (from, to time.Time) {
	slot := d.clock.Now().UTC().Truncate(d.cfg.Width)
	from, to = clock.Window(slot, d.cfg.Lead, d.cfg.Width)
	return from.Add(-d.cfg.RetryGrace), to
}

// Sweep runs once. Only a failure to list the window is returned; per
// appointment failures are logged and counted in the Summary.
func (d *Dispatcher) Sweep(ctx context.Context) (model.Summary, error) {
	started := d.clock.Now()
	from, to := d.Window()

	due, err := d.store.DueAppointments(ctx, from, to)
	if err != nil {
		return model.Summary{}, err
	}
	sum := model.Summary{Found: len(due)}
	for _, appt := range due {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("appointment sweep interrupted", "err", err)
			break
		}
		switch d.remind(ctx, appt) {
		case outcomeSent:
			sum.Sent++
			d.metrics.Sent(kind)
		case outcomeFailed:
			sum.Failed++
			d.metrics.Failed(kind)
		case outcomeSkipped:
			sum.Skipped++
			d.metrics.Skipped(kind)
		}
	}
	d.metrics.ObserveSweep(kind, started, d.clock.Now())
	d.logger.Info("appointment reminder sweep finished", append([]any{"window_from", from, "window_to", to}, sum.LogAttrs()...)...)
	return sum, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (d *Dispatcher) remind(ctx context.Context, appt model.DueAppointment) outcome {
	log := d.logger.With("appointment_id", appt.AppointmentID, "tenant_id", appt.TenantID)
	if strings.TrimSpace(appt.ClientEmail) == "" {
		log.Info("client has no email; reminder skipped", "client_id", appt.ClientID)
		return outcomeSkipped
	}

	won, err := d.store.ClaimAppointment(ctx, appt.AppointmentID, appt.StartAt)
	if err != nil {
		log.Error("claim reminder failed", "err", err)
		return outcomeFailed
	}
	if !won {
		log.Debug("reminder already claimed or appointment changed since listing")
		return outcomeSkipped
	}

	err = d.gateway.Send(ctx, appt.ClientEmail, notify.AppointmentReminder, map[string]any{
		"client_name": appt.ClientName,
		"type":        appt.Type,
		"start_at":    appt.StartAt,
		"portal_url":  PortalURL(d.cfg.PortalBaseURL, appt.PortalToken),
	})
	if err != nil {
		log.Error("send reminder failed", "err", err)
		// Use a fresh context so a cancelled sweep still gives the claim back.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := d.store.ReleaseAppointment(releaseCtx, appt.AppointmentID); rerr != nil {
			log.Error("release reminder claim failed", "err", rerr)
		}
		return outcomeFailed
	}

	if err := d.store.RecordAppointmentReminder(ctx, appt, d.clock.Now()); err != nil {
		log.Warn("record reminder event failed", "err", err)
	}
	log.Info("reminder sent")
	return outcomeSent
}

// PortalURL is base/p/token, or empty when either part is missing.
func PortalURL(base, token string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" || token == "" {
		return ""
	}
	return base + "/p/" + token
}
