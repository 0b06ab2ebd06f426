// Package memory is an in-process Store for tests and STORE=memory dev runs.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/libs/outbox"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
)

type state struct {
	clients  map[string]model.Client
	appts    map[string]model.Appointment
	requests map[string]model.AppointmentRequest
	events   []outbox.Event
}

func (s *state) clone() *state {
	return &state{
		clients:  maps.Clone(s.clients),
		appts:    maps.Clone(s.appts),
		requests: maps.Clone(s.requests),
		events:   slices.Clone(s.events),
	}
}

// Store keeps everything in maps. Transactions run one at a time against a
// copy of the data that replaces the live copy only on commit, which is
// stricter than the per-tenant serialization the interface promises.
type Store struct {
	mu    sync.Mutex
	data  *state
	clock clock.Clock
}

var _ storage.Store = (*Store)(nil)

func New(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real{}
	}
	return &Store{
		clock: c,
		data: &state{
			clients:  map[string]model.Client{},
			appts:    map[string]model.Appointment{},
			requests: map[string]model.AppointmentRequest{},
		},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	if err := fn(ctx, &tx{st: work, clock: s.clock}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) InTenantTx(ctx context.Context, _ string, fn func(context.Context, storage.Tx) error) error {
	return s.InTx(ctx, fn)
}

// AddClient seeds a client, assigning an id when empty.
func (s *Store) AddClient(c model.Client) model.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.data.clients[c.ID] = c
	return c
}

// Events returns every committed outbox event in insertion order.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.events)
}

type tx struct {
	st    *state
	clock clock.Clock
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", apperr.ErrNotFound, kind, id)
}

func (t *tx) GetClient(_ context.Context, id string) (model.Client, error) {
	c, ok := t.st.clients[id]
	if !ok {
		return model.Client{}, notFound("client", id)
	}
	return c, nil
}

func (t *tx) GetClientByPortalToken(_ context.Context, token string) (model.Client, error) {
	if token != "" {
		for _, c := range t.st.clients {
			if c.PortalToken == token && c.Active {
				return c, nil
			}
		}
	}
	return model.Client{}, fmt.Errorf("%w: portal token", apperr.ErrNotFound)
}

func (t *tx) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.st.appts[id]
	if !ok {
		return model.Appointment{}, notFound("appointment", id)
	}
	return a, nil
}

func (t *tx) ListAppointments(_ context.Context, tenantID string, f storage.AppointmentFilter) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range t.st.appts {
		if a.TenantID != tenantID {
			continue
		}
		if f.ClientID != "" && a.ClientID != f.ClientID {
			continue
		}
		if !f.From.IsZero() && a.StartAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.StartAt.Before(f.To) {
			continue
		}
		out = append(out, a)
	}
	sortByStart(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *tx) ListAppointmentsInRange(ctx context.Context, tenantID string, from, to time.Time) ([]model.Appointment, error) {
	return t.ListAppointments(ctx, tenantID, storage.AppointmentFilter{From: from, To: to})
}

func (t *tx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := t.clock.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	t.st.appts[a.ID] = *a
	return nil
}

func (t *tx) UpdateAppointment(_ context.Context, a *model.Appointment) error {
	if _, ok := t.st.appts[a.ID]; !ok {
		return notFound("appointment", a.ID)
	}
	a.UpdatedAt = t.clock.Now()
	t.st.appts[a.ID] = *a
	return nil
}

func (t *tx) DeleteAppointment(_ context.Context, id string) error {
	if _, ok := t.st.appts[id]; !ok {
		return notFound("appointment", id)
	}
	delete(t.st.appts, id)
	return nil
}

func (t *tx) GetRequest(_ context.Context, id string) (model.AppointmentRequest, error) {
	r, ok := t.st.requests[id]
	if !ok {
		return model.AppointmentRequest{}, notFound("request", id)
	}
	return r, nil
}

func (t *tx) ListRequests(_ context.Context, tenantID string, f storage.RequestFilter) ([]model.AppointmentRequest, error) {
	var out []model.AppointmentRequest
	for _, r := range t.st.requests {
		if r.TenantID != tenantID {
			continue
		}
		if f.ClientID != "" && r.ClientID != f.ClientID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.AppointmentRequest) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (t *tx) InsertRequest(_ context.Context, r *model.AppointmentRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = t.clock.Now()
	t.st.requests[r.ID] = *r
	return nil
}

func (t *tx) UpdateRequest(_ context.Context, r *model.AppointmentRequest) error {
	if _, ok := t.st.requests[r.ID]; !ok {
		return notFound("request", r.ID)
	}
	t.st.requests[r.ID] = *r
	return nil
}

func (t *tx) AddEvent(_ context.Context, evt outbox.Event) error {
	t.st.events = append(t.st.events, evt)
	return nil
}

func sortByStart(appts []model.Appointment) {
	slices.SortFunc(appts, func(a, b model.Appointment) int {
		return cmp.Or(a.StartAt.Compare(b.StartAt), cmp.Compare(a.ID, b.ID))
	})
}
