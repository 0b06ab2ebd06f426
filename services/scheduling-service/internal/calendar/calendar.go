// Package calendar renders a tenant's appointments as an iCalendar feed that
// staff subscribe to from their calendar app.
package calendar

import (
	"context"
	"errors"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
)

const productID = "-//BridalOS//Scheduling//EN"

// lookback keeps old history out of the feed.
const lookback = 180 * 24 * time.Hour

type Feed struct {
	store storage.Store
	clock clock.Clock
}

func NewFeed(store storage.Store, clk clock.Clock) *Feed {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Feed{store: store, clock: clk}
}

// Render returns the tenant's feed: one VEVENT per appointment, each lasting
// the appointment's own duration.
func (f *Feed) Render(ctx context.Context, tenantID string) (string, error) {
	now := f.clock.Now()
	var (
		appts   []model.Appointment
		clients = map[string]model.Client{}
	)
	err := f.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		appts, err = tx.ListAppointments(ctx, tenantID, storage.AppointmentFilter{From: now.Add(-lookback), Limit: 5000})
		if err != nil {
			return err
		}
		for _, a := range appts {
			if _, ok := clients[a.ClientID]; ok {
				continue
			}
			c, err := tx.GetClient(ctx, a.ClientID)
			if err != nil && !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			clients[a.ClientID] = c
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return Build(appts, clients, now), nil
}

// Build is the pure projection behind Render.
func Build(appts []model.Appointment, clients map[string]model.Client, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("Boutique appointments")

	for _, a := range appts {
		name := clients[a.ClientID].Name
		if name == "" {
			name = "Unknown client"
		}
		ev := cal.AddEvent(a.ID + "@bridalos")
		ev.SetDtStampTime(stamp)
		ev.SetCreatedTime(a.CreatedAt)
		ev.SetModifiedAt(a.UpdatedAt)
		ev.SetStartAt(a.StartAt.UTC())
		ev.SetEndAt(a.End().UTC())
		ev.SetSummary(a.Type + " - " + name)
		if a.Notes != "" {
			ev.SetDescription(a.Notes)
		}
		if a.Status == model.StatusCancelled {
			ev.SetStatus(ics.ObjectStatusCancelled)
		} else {
			ev.SetStatus(ics.ObjectStatusConfirmed)
		}
	}
	return cal.Serialize()
}
