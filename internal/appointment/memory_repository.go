package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a Repository kept in process memory. It backs the
// service in tests and single-process tooling.
type MemoryRepository struct {
	mu           sync.RWMutex
	templates    map[string][]SlotTemplate
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
	nextEventID  int64

	scopesMu sync.Mutex
	scopes   map[string]*sync.Mutex

	now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		templates:    make(map[string][]SlotTemplate),
		appointments: make(map[uuid.UUID]*Appointment),
		scopes:       make(map[string]*sync.Mutex),
		now:          time.Now,
	}
}

func (r *MemoryRepository) ReplaceTemplates(_ context.Context, doctorID string, templates []SlotTemplate) ([]SlotTemplate, error) {
	prepared, err := prepareTemplates(doctorID, templates, r.now())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.templates[doctorID] = prepared
	return cloneTemplates(prepared), nil
}

func (r *MemoryRepository) ListTemplates(_ context.Context, doctorID string, filter TemplateFilter) ([]SlotTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []SlotTemplate
	for _, t := range r.templates[doctorID] {
		if filter.OnlyAvailable && !t.IsAvailable {
			continue
		}
		if filter.DayOfWeek != nil && t.DayOfWeek != *filter.DayOfWeek {
			continue
		}
		out = append(out, t)
	}
	sortTemplates(out)
	return out, nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	created, err := prepareAppointment(a, r.now())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.appointments[created.ID] = created
	c := *created
	return &c, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	c := *a
	return &c, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, q AppointmentQuery) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if matchesQuery(a, q) {
			out = append(out, *a)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].AppointmentDate.Before(out[j].AppointmentDate)
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, expectedVersion int64, to AppointmentStatus, notes *string) (*Appointment, error) {
	return r.compareAndSwap(id, expectedVersion, func(a *Appointment) {
		a.Status = to
		if notes != nil {
			a.Notes = *notes
		}
	})
}

func (r *MemoryRepository) UpdateAppointmentDetails(_ context.Context, id uuid.UUID, expectedVersion int64, patch AppointmentPatch) (*Appointment, error) {
	return r.compareAndSwap(id, expectedVersion, func(a *Appointment) {
		if patch.Reason != nil {
			a.Reason = *patch.Reason
		}
		if patch.Notes != nil {
			a.Notes = *patch.Notes
		}
	})
}

func (r *MemoryRepository) compareAndSwap(id uuid.UUID, expectedVersion int64, mutate func(a *Appointment)) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Version != expectedVersion {
		return nil, ErrStaleAppointment
	}

	mutate(a)
	a.Version++
	a.UpdatedAt = r.now()

	c := *a
	return &c, nil
}

// WithinDayScope serializes scopes per (doctor, date). Writes are applied
// immediately, so fn must perform its checks before its single write.
func (r *MemoryRepository) WithinDayScope(ctx context.Context, doctorID string, date time.Time, fn func(ctx context.Context) error) error {
	scope := r.scope(dayScopeKey(doctorID, DateOf(date)))
	scope.Lock()
	defer scope.Unlock()

	return fn(ctx)
}

func (r *MemoryRepository) scope(key string) *sync.Mutex {
	r.scopesMu.Lock()
	defer r.scopesMu.Unlock()

	m, ok := r.scopes[key]
	if !ok {
		m = &sync.Mutex{}
		r.scopes[key] = m
	}
	return m
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func matchesQuery(a *Appointment, q AppointmentQuery) bool {
	if q.ParticipantID != "" && a.PatientID != q.ParticipantID && a.DoctorID != q.ParticipantID {
		return false
	}
	if q.PatientID != "" && a.PatientID != q.PatientID {
		return false
	}
	if q.DoctorID != "" && a.DoctorID != q.DoctorID {
		return false
	}
	if q.From != nil && a.AppointmentDate.Before(DateOf(*q.From)) {
		return false
	}
	if q.To != nil && a.AppointmentDate.After(DateOf(*q.To)) {
		return false
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, s := range q.Statuses {
			if a.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortTemplates(ts []SlotTemplate) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].DayOfWeek != ts[j].DayOfWeek {
			return ts[i].DayOfWeek < ts[j].DayOfWeek
		}
		return ts[i].StartTime < ts[j].StartTime
	})
}

func cloneTemplates(ts []SlotTemplate) []SlotTemplate {
	out := make([]SlotTemplate, len(ts))
	copy(out, ts)
	return out
}
