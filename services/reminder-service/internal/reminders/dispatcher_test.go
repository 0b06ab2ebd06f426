package reminders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/services/reminder-service/internal/model"
	"github.com/bridalos/bridalos/services/reminder-service/internal/notify"
)

var runAt = time.Date(2024, 5, 31, 13, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu       sync.Mutex
	appts    map[string]model.DueAppointment
	reminded map[string]bool
	recorded []string
	listErr  error
	// afterList runs once the due list is returned, before any claim.
	afterList func()
}

func newFakeStore(appts ...model.DueAppointment) *fakeStore {
	s := &fakeStore{appts: map[string]model.DueAppointment{}, reminded: map[string]bool{}}
	for _, a := range appts {
		if a.Status == "" {
			a.Status = "Scheduled"
		}
		s.appts[a.AppointmentID] = a
	}
	return s
}

func (s *fakeStore) DueAppointments(_ context.Context, from, to time.Time) ([]model.DueAppointment, error) {
	out, err := s.list(from, to)
	if err == nil && s.afterList != nil {
		s.afterList()
	}
	return out, err
}

func (s *fakeStore) list(from, to time.Time) ([]model.DueAppointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.DueAppointment
	for _, a := range s.appts {
		if s.reminded[a.AppointmentID] || a.Status == "Cancelled" || a.Status == "Completed" {
			continue
		}
		if clock.InRange(a.StartAt, from, to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (s *fakeStore) ClaimAppointment(_ context.Context, id string, startAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || s.reminded[id] || !a.StartAt.Equal(startAt) || a.Status == "Cancelled" || a.Status == "Completed" {
		return false, nil
	}
	s.reminded[id] = true
	return true, nil
}

// reschedule mirrors scheduling-service: a new start clears the flag.
func (s *fakeStore) reschedule(id string, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.appts[id]
	a.StartAt = start
	s.appts[id] = a
	s.reminded[id] = false
}

func (s *fakeStore) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.appts[id]
	a.Status = status
	s.appts[id] = a
}

func (s *fakeStore) ReleaseAppointment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminded[id] = false
	return nil
}

func (s *fakeStore) RecordAppointmentReminder(_ context.Context, due model.DueAppointment, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, due.AppointmentID)
	return nil
}

type sent struct {
	to   string
	kind notify.TemplateKind
	data map[string]any
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sent
	fail map[string]bool
}

func (g *fakeGateway) Send(_ context.Context, to string, kind notify.TemplateKind, data map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail[to] {
		return errors.New("smtp: 451 try again later")
	}
	g.sent = append(g.sent, sent{to: to, kind: kind, data: data})
	return nil
}

func due(id string, in time.Duration) model.DueAppointment {
	return model.DueAppointment{
		AppointmentID: id,
		TenantID:      "org-1",
		ClientID:      "c-" + id,
		ClientName:    "Bride " + id,
		ClientEmail:   id + "@example.com",
		PortalToken:   "tok-" + id,
		StartAt:       runAt.Add(in),
		Type:          "Fitting",
	}
}

func newDispatcher(store Store, gw notify.Gateway, clk clock.Clock, cfg Config) *Dispatcher {
	return NewDispatcher(store, gw, clk, nil, nil, cfg)
}

func TestSweepRemindsOnceInsideWindow(t *testing.T) {
	store := newFakeStore(due("a1", 24*time.Hour+30*time.Minute))
	gw := &fakeGateway{}
	d := newDispatcher(store, gw, clock.Fixed(runAt), Config{PortalBaseURL: "https://book.example.com/"})

	sum, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.Sent != 1 || len(gw.sent) != 1 {
		t.Fatalf("expected one reminder, got %+v / %d sends", sum, len(gw.sent))
	}
	got := gw.sent[0]
	if got.to != "a1@example.com" || got.kind != notify.AppointmentReminder {
		t.Fatalf("unexpected send %+v", got)
	}
	if got.data["portal_url"] != "https://book.example.com/p/tok-a1" || got.data["type"] != "Fitting" {
		t.Fatalf("unexpected template data %+v", got.data)
	}
	if !store.reminded["a1"] || len(store.recorded) != 1 {
		t.Fatal("appointment should be flagged and the event recorded")
	}

	sum, err = d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if sum.Found != 0 || sum.Sent != 0 || len(gw.sent) != 1 {
		t.Fatalf("re-run must not send again: %+v, %d sends", sum, len(gw.sent))
	}
}

func TestSweepOnlyTouchesTheBand(t *testing.T) {
	store := newFakeStore(
		due("early", 23*time.Hour),
		due("late", 26*time.Hour),
		due("lower-edge", 24*time.Hour),
		due("upper-edge", 25*time.Hour),
	)
	gw := &fakeGateway{}
	sum, err := newDispatcher(store, gw, clock.Fixed(runAt), Config{}).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.Sent != 1 || len(gw.sent) != 1 || gw.sent[0].to != "lower-edge@example.com" {
		t.Fatalf("only the [24h,25h) band qualifies, got %+v", gw.sent)
	}
	if store.reminded["early"] || store.reminded["late"] || store.reminded["upper-edge"] {
		t.Fatal("appointments outside the band must stay unflagged")
	}
}

func TestSweepSkipsCancelledCompletedAndNoEmail(t *testing.T) {
	cancelled := due("cancelled", 24*time.Hour+10*time.Minute)
	cancelled.Status = "Cancelled"
	completed := due("completed", 24*time.Hour+10*time.Minute)
	completed.Status = "Completed"
	noShow := due("noshow", 24*time.Hour+20*time.Minute)
	noShow.Status = "No-Show"
	noEmail := due("noemail", 24*time.Hour+40*time.Minute)
	noEmail.ClientEmail = ""

	store := newFakeStore(cancelled, completed, noShow, noEmail)
	gw := &fakeGateway{}
	sum, err := newDispatcher(store, gw, clock.Fixed(runAt), Config{}).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.Found != 2 || sum.Sent != 1 || sum.Skipped != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if store.reminded["noemail"] {
		t.Fatal("a skipped appointment must not be flagged")
	}
}

func TestSweepFailureReleasesClaimAndContinues(t *testing.T) {
	store := newFakeStore(due("a1", 24*time.Hour+5*time.Minute), due("a2", 24*time.Hour+10*time.Minute))
	gw := &fakeGateway{fail: map[string]bool{"a1@example.com": true}}
	clk := clock.NewManual(runAt)
	d := newDispatcher(store, gw, clk, Config{})

	sum, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.Failed != 1 || sum.Sent != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if store.reminded["a1"] || !store.reminded["a2"] {
		t.Fatalf("failed send must release its claim: %+v", store.reminded)
	}

	// Relay recovers before the next run but a1 has left the strict band.
	gw.fail = nil
	clk.Advance(time.Hour)
	if sum, _ := d.Sweep(context.Background()); sum.Sent != 0 {
		t.Fatalf("strict band must not retry, got %+v", sum)
	}
}

func TestRetryGraceGivesFailedSendAnotherRun(t *testing.T) {
	store := newFakeStore(due("a1", 24*time.Hour+5*time.Minute))
	gw := &fakeGateway{fail: map[string]bool{"a1@example.com": true}}
	clk := clock.NewManual(runAt)
	d := newDispatcher(store, gw, clk, Config{RetryGrace: time.Hour})

	if sum, _ := d.Sweep(context.Background()); sum.Failed != 1 {
		t.Fatalf("expected a failure, got %+v", sum)
	}
	gw.fail = nil
	clk.Advance(time.Hour)
	sum, err := d.Sweep(context.Background())
	if err != nil || sum.Sent != 1 {
		t.Fatalf("expected the retry to send, got %+v %v", sum, err)
	}
}

func TestConcurrentSweepsSendOnce(t *testing.T) {
	var appts []model.DueAppointment
	for i := 0; i < 20; i++ {
		appts = append(appts, due(string(rune('a'+i)), 24*time.Hour+time.Duration(i)*time.Minute))
	}
	store := newFakeStore(appts...)
	gw := &fakeGateway{}
	d := newDispatcher(store, gw, clock.Fixed(runAt), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Sweep(context.Background()); err != nil {
				t.Errorf("Sweep: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(gw.sent) != len(appts) {
		t.Fatalf("expected %d sends, got %d", len(appts), len(gw.sent))
	}
	seen := map[string]bool{}
	for _, s := range gw.sent {
		if seen[s.to] {
			t.Fatalf("duplicate reminder to %s", s.to)
		}
		seen[s.to] = true
	}
}

func TestSweepDoesNotRemindRescheduledAfterListing(t *testing.T) {
	store := newFakeStore(due("a1", 24*time.Hour+10*time.Minute))
	moved := runAt.Add(7*24*time.Hour + time.Hour)
	store.afterList = func() {
		store.afterList = nil
		store.reschedule("a1", moved)
	}
	gw := &fakeGateway{}
	clk := clock.NewManual(runAt)
	d := newDispatcher(store, gw, clk, Config{})

	sum, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.Sent != 0 || sum.Skipped != 1 || len(gw.sent) != 0 {
		t.Fatalf("stale start must not be mailed: %+v, %d sends", sum, len(gw.sent))
	}
	if store.reminded["a1"] {
		t.Fatal("the rescheduled appointment must stay unflagged")
	}

	// The new slot gets its own reminder a day ahead.
	clk.Set(moved.Add(-24 * time.Hour))
	sum, err = d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep at new time: %v", err)
	}
	if sum.Sent != 1 || len(gw.sent) != 1 || !gw.sent[0].data["start_at"].(time.Time).Equal(moved) {
		t.Fatalf("expected one reminder for the new start, got %+v %+v", sum, gw.sent)
	}
}

func TestSweepDoesNotRemindCancelledAfterListing(t *testing.T) {
	store := newFakeStore(due("a1", 24*time.Hour+10*time.Minute))
	store.afterList = func() {
		store.afterList = nil
		store.setStatus("a1", "Cancelled")
	}
	gw := &fakeGateway{}

	sum, err := newDispatcher(store, gw, clock.Fixed(runAt), Config{}).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.Sent != 0 || len(gw.sent) != 0 {
		t.Fatalf("cancelled appointment must not be reminded: %+v", sum)
	}
}

func TestLateSweepsKeepBandsContiguous(t *testing.T) {
	store := newFakeStore(
		due("first", 24*time.Hour+10*time.Minute),
		due("second", 25*time.Hour+5*time.Minute),
	)
	gw := &fakeGateway{}
	clk := clock.NewManual(runAt.Add(40 * time.Minute))
	d := newDispatcher(store, gw, clk, Config{})

	if from, _ := d.Window(); !from.Equal(runAt.Add(24 * time.Hour)) {
		t.Fatalf("late run must scan its hour's band, got from=%s", from)
	}
	if sum, err := d.Sweep(context.Background()); err != nil || sum.Sent != 1 {
		t.Fatalf("first late run: %+v %v", sum, err)
	}
	clk.Set(runAt.Add(time.Hour + 50*time.Minute))
	if sum, err := d.Sweep(context.Background()); err != nil || sum.Sent != 1 {
		t.Fatalf("second late run: %+v %v", sum, err)
	}
	if len(gw.sent) != 2 {
		t.Fatalf("both appointments must be reminded, got %d sends", len(gw.sent))
	}
}

func TestSweepReturnsListError(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("connection refused")
	if _, err := newDispatcher(store, &fakeGateway{}, clock.Fixed(runAt), Config{}).Sweep(context.Background()); err == nil {
		t.Fatal("expected the list error")
	}
}

func TestPortalURL(t *testing.T) {
	if got := PortalURL("https://x.test/", "abc"); got != "https://x.test/p/abc" {
		t.Fatalf("got %q", got)
	}
	if PortalURL("", "abc") != "" || PortalURL("https://x.test", "") != "" {
		t.Fatal("missing parts must yield an empty url")
	}
}
