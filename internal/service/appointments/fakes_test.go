package appointments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"appointly/internal/calendar"
	"appointly/internal/domain"
	"appointly/internal/store"
)

// memRepo is an in-memory store that enforces the confirmed-slot uniqueness rule.
type memRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.Appointment

	insertErr     error
	updateSlotErr error
	inserts       int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[uuid.UUID]domain.Appointment{}}
}

func (m *memRepo) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return domain.Appointment{}, m.insertErr
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if existing, ok := m.rows[appt.ID]; ok {
		return existing, nil
	}
	for _, r := range m.rows {
		if r.Active() && r.SameSlot(appt) {
			return domain.Appointment{}, store.ErrConflict
		}
	}
	if appt.Status == "" {
		appt.Status = domain.StatusConfirmed
	}
	m.rows[appt.ID] = appt
	return appt, nil
}

func (m *memRepo) FindOne(ctx context.Context, f store.Filter) (domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if f.Date != "" && r.Date != f.Date {
			continue
		}
		if f.Time != "" && r.Time != f.Time {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.ExcludeID != uuid.Nil && r.ID == f.ExcludeID {
			continue
		}
		return r, nil
	}
	return domain.Appointment{}, store.ErrNotFound
}

func (m *memRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return r, nil
}

func (m *memRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	m.rows[id] = r
	return nil
}

func (m *memRepo) UpdateSlot(ctx context.Context, id uuid.UUID, date, clock string, start, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateSlotErr != nil {
		return m.updateSlotErr
	}
	r, ok := m.rows[id]
	if !ok || !r.Active() {
		return store.ErrNotFound
	}
	r.Date, r.Time, r.StartTime, r.EndTime = date, clock, start, end
	m.rows[id] = r
	return nil
}

func (m *memRepo) ListConfirmed(ctx context.Context) ([]domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Appointment
	for _, r := range m.rows {
		if r.Active() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type fakeRepo struct {
	insertFn        func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	findOneFn       func(ctx context.Context, f store.Filter) (domain.Appointment, error)
	findByIDFn      func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	updateStatusFn  func(ctx context.Context, id uuid.UUID, status domain.Status) error
	updateSlotFn    func(ctx context.Context, id uuid.UUID, date, clock string, start, end time.Time) error
	listConfirmedFn func(ctx context.Context) ([]domain.Appointment, error)
}

func (f *fakeRepo) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if f.insertFn == nil {
		panic("Insert not configured")
	}
	return f.insertFn(ctx, appt)
}

func (f *fakeRepo) FindOne(ctx context.Context, filter store.Filter) (domain.Appointment, error) {
	if f.findOneFn == nil {
		panic("FindOne not configured")
	}
	return f.findOneFn(ctx, filter)
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.findByIDFn == nil {
		panic("FindByID not configured")
	}
	return f.findByIDFn(ctx, id)
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	if f.updateStatusFn == nil {
		panic("UpdateStatus not configured")
	}
	return f.updateStatusFn(ctx, id, status)
}

func (f *fakeRepo) UpdateSlot(ctx context.Context, id uuid.UUID, date, clock string, start, end time.Time) error {
	if f.updateSlotFn == nil {
		panic("UpdateSlot not configured")
	}
	return f.updateSlotFn(ctx, id, date, clock, start, end)
}

func (f *fakeRepo) ListConfirmed(ctx context.Context) ([]domain.Appointment, error) {
	if f.listConfirmedFn == nil {
		panic("ListConfirmed not configured")
	}
	return f.listConfirmedFn(ctx)
}

type fakeCalendar struct {
	mu sync.Mutex

	createFn func(ctx context.Context, in calendar.EventInput) (calendar.Event, error)
	patchFn  func(ctx context.Context, eventID string, start, end time.Time) error
	deleteFn func(ctx context.Context, eventID string) error
	listFn   func(ctx context.Context, start, end time.Time) ([]calendar.Interval, error)

	created []calendar.EventInput
	patched []string
	deleted []string
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, in calendar.EventInput) (calendar.Event, error) {
	if f.createFn == nil {
		panic("CreateEvent not configured")
	}
	f.mu.Lock()
	f.created = append(f.created, in)
	f.mu.Unlock()
	return f.createFn(ctx, in)
}

func (f *fakeCalendar) PatchEvent(ctx context.Context, eventID string, start, end time.Time) error {
	if f.patchFn == nil {
		panic("PatchEvent not configured")
	}
	f.mu.Lock()
	f.patched = append(f.patched, eventID)
	f.mu.Unlock()
	return f.patchFn(ctx, eventID, start, end)
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	if f.deleteFn == nil {
		panic("DeleteEvent not configured")
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, eventID)
	f.mu.Unlock()
	return f.deleteFn(ctx, eventID)
}

func (f *fakeCalendar) ListEvents(ctx context.Context, start, end time.Time) ([]calendar.Interval, error) {
	if f.listFn == nil {
		panic("ListEvents not configured")
	}
	return f.listFn(ctx, start, end)
}

// okCalendar returns a calendar whose calls all succeed and hand out sequential event ids.
func okCalendar() *fakeCalendar {
	n := 0
	f := &fakeCalendar{}
	f.createFn = func(ctx context.Context, in calendar.EventInput) (calendar.Event, error) {
		n++
		id := fmt.Sprintf("evt-%d", n)
		return calendar.Event{ID: id, HTMLLink: "https://calendar.example/" + id}, nil
	}
	f.patchFn = func(ctx context.Context, eventID string, start, end time.Time) error { return nil }
	f.deleteFn = func(ctx context.Context, eventID string) error { return nil }
	return f
}

type sentMessage struct {
	to, subject, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

func (f *fakeNotifier) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to, subject: subject, body: body})
	return f.err
}

type fakeObserver struct {
	mu          sync.Mutex
	operations  []string
	sideEffects []string
}

func (f *fakeObserver) ObserveOperation(operation, result string, seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operations = append(f.operations, operation+":"+result)
}

func (f *fakeObserver) ObserveSideEffectFailure(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sideEffects = append(f.sideEffects, step)
}
