package calendar

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage/memory"
)

func TestBuildUsesAppointmentDuration(t *testing.T) {
	start := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	appts := []model.Appointment{
		{ID: "a1", ClientID: "c1", StartAt: start, Type: "Fitting", Notes: "Requested time: Afternoon", Status: model.StatusScheduled},
		{ID: "a2", ClientID: "gone", StartAt: start.Add(24 * time.Hour), DurationMinutes: 30, Type: "Pickup", Status: model.StatusCancelled},
	}
	out := Build(appts, map[string]model.Client{"c1": {Name: "Ava"}}, start)

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"UID:a1@bridalos",
		"DTSTART:20240601T140000Z",
		"DTEND:20240601T153000Z",
		"SUMMARY:Fitting - Ava",
		"DESCRIPTION:Requested time: Afternoon",
		"DTEND:20240602T143000Z",
		"SUMMARY:Pickup - Unknown client",
		"STATUS:CANCELLED",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("feed missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "BEGIN:VEVENT"); n != 2 {
		t.Fatalf("expected 2 events, got %d", n)
	}
}

func TestRenderOnlyIncludesTenant(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	store := memory.New(clock.Fixed(now))
	store.AddClient(model.Client{ID: "c1", TenantID: "org-1", Name: "Ava", Active: true})
	_ = store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_ = tx.InsertAppointment(ctx, &model.Appointment{ID: "mine", TenantID: "org-1", ClientID: "c1", StartAt: now.Add(time.Hour), Type: "Consultation", Status: model.StatusScheduled})
		return tx.InsertAppointment(ctx, &model.Appointment{ID: "theirs", TenantID: "org-2", ClientID: "c1", StartAt: now.Add(time.Hour), Type: "Consultation", Status: model.StatusScheduled})
	})

	out, err := NewFeed(store, clock.Fixed(now)).Render(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "UID:mine@bridalos") || strings.Contains(out, "theirs") {
		t.Fatalf("unexpected feed:\n%s", out)
	}
}
