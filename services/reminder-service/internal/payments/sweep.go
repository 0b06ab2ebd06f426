// Package payments sends the daily payment nudge: Pending payments due a
// fixed number of days ahead get one reminder, guarded by reminder_sent_at.
package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/services/reminder-service/internal/metrics"
	"github.com/bridalos/bridalos/services/reminder-service/internal/model"
	"github.com/bridalos/bridalos/services/reminder-service/internal/notify"
	"github.com/bridalos/bridalos/services/reminder-service/internal/reminders"
)

const kind = "payment"

type Store interface {
	// DuePayments returns Pending payments due on the given UTC date with no
	// reminder_sent_at.
	DuePayments(ctx context.Context, dueDate time.Time) ([]model.DuePayment, error)
	ClaimPayment(ctx context.Context, id string, at time.Time) (bool, error)
	ReleasePayment(ctx context.Context, id string) error
	// RecordPaymentReminder appends the payment.reminder_sent outbox event.
	RecordPaymentReminder(ctx context.Context, due model.DuePayment, sentAt time.Time) error
}

type Config struct {
	DaysAhead     int
	PortalBaseURL string
}

type Sweeper struct {
	store   Store
	gateway notify.Gateway
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     Config
}

func NewSweeper(store Store, gateway notify.Gateway, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Sweeper {
	if cfg.DaysAhead <= 0 {
		cfg.DaysAhead = 3
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, gateway: gateway, clock: clk, logger: logger, metrics: m, cfg: cfg}
}

// TargetDate is the UTC calendar day DaysAhead days from now.
func (s *Sweeper) TargetDate() time.Time {
	now := s.clock.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, s.cfg.DaysAhead)
}

func (s *Sweeper) Sweep(ctx context.Context) (model.Summary, error) {
	started := s.clock.Now()
	target := s.TargetDate()
	due, err := s.store.DuePayments(ctx, target)
	if err != nil {
		return model.Summary{}, err
	}

	sum := model.Summary{Found: len(due)}
	for _, p := range due {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("payment sweep interrupted", "err", err)
			break
		}
		log := s.logger.With("payment_id", p.PaymentID, "tenant_id", p.TenantID)
		if strings.TrimSpace(p.ClientEmail) == "" {
			log.Info("client has no email; payment reminder skipped", "client_id", p.ClientID)
			sum.Skipped++
			s.metrics.Skipped(kind)
			continue
		}
		won, err := s.store.ClaimPayment(ctx, p.PaymentID, s.clock.Now())
		if err != nil {
			log.Error("claim payment reminder failed", "err", err)
			sum.Failed++
			s.metrics.Failed(kind)
			continue
		}
		if !won {
			sum.Skipped++
			s.metrics.Skipped(kind)
			continue
		}
		err = s.gateway.Send(ctx, p.ClientEmail, notify.PaymentReminder, map[string]any{
			"client_name":  p.ClientName,
			"amount":       FormatAmount(p.AmountCents, p.Currency),
			"due_date":     p.DueDate,
			"payment_link": p.PaymentLink,
			"portal_url":   reminders.PortalURL(s.cfg.PortalBaseURL, p.PortalToken),
		})
		if err != nil {
			log.Error("send payment reminder failed", "err", err)
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if rerr := s.store.ReleasePayment(releaseCtx, p.PaymentID); rerr != nil {
				log.Error("release payment claim failed", "err", rerr)
			}
			cancel()
			sum.Failed++
			s.metrics.Failed(kind)
			continue
		}
		if err := s.store.RecordPaymentReminder(ctx, p, s.clock.Now()); err != nil {
			log.Warn("record payment reminder event failed", "err", err)
		}
		log.Info("payment reminder sent", "amount_cents", p.AmountCents)
		sum.Sent++
		s.metrics.Sent(kind)
	}
	s.metrics.ObserveSweep(kind, started, s.clock.Now())
	s.logger.Info("payment reminder sweep finished", append([]any{"due_date", clock.FormatDate(target)}, sum.LogAttrs()...)...)
	return sum, nil
}

// FormatAmount renders cents as "$1,250.00". Other currencies get their ISO
// code as a prefix.
func FormatAmount(cents int64, currency string) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}
	prefix := "$"
	if c := strings.ToUpper(strings.TrimSpace(currency)); c != "" && c != "USD" {
		prefix = c + " "
	}
	out := fmt.Sprintf("%s%s.%02d", prefix, grouped.String(), cents%100)
	if neg {
		out = "-" + out
	}
	return out
}
