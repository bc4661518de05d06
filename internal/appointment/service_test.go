package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-availability-scheduling/internal/metrics"
	redisclient "github.com/hackgods/doctor-availability-scheduling/internal/redis"
)

const (
	monday = "2030-01-07"
	sunday = "2030-01-13"
)

var (
	doctor   = Caller{ID: "doc-1", Role: RoleDoctor}
	patientA = Caller{ID: "pat-a", Role: RolePatient}
	patientB = Caller{ID: "pat-b", Role: RolePatient}
	stranger = Caller{ID: "pat-z", Role: RolePatient}
)

// passthroughLocker leaves all serialization to the repository day scope.
type passthroughLocker struct{}

func (passthroughLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func newTestService(t *testing.T, locker redisclient.Locker) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	if locker == nil {
		locker = redisclient.NewLocalLocker(5 * time.Second)
	}
	return NewService(repo, locker, zap.NewNop(), metrics.NewCollector()), repo
}

func mondayTemplate(start, end string) []SlotTemplate {
	return []SlotTemplate{{DayOfWeek: 0, StartTime: start, EndTime: end, IsAvailable: true}}
}

func book(svc *Service, caller Caller, start, end string) (*Appointment, error) {
	return svc.BookAppointment(context.Background(), caller, BookingRequest{
		DoctorID:  doctor.ID,
		Date:      monday,
		StartTime: start,
		EndTime:   end,
	})
}

func TestSetAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("doctor replaces the whole set", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		_, err := svc.SetAvailability(ctx, doctor, doctor.ID, []SlotTemplate{
			{DayOfWeek: 0, StartTime: "09:00", EndTime: "12:00", IsAvailable: true},
			{DayOfWeek: 2, StartTime: "13:00", EndTime: "17:00", IsAvailable: true},
		})
		require.NoError(t, err)

		stored, err := svc.SetAvailability(ctx, doctor, doctor.ID, []SlotTemplate{
			{DayOfWeek: 4, StartTime: "08:00", EndTime: "10:00", IsAvailable: false},
		})
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, doctor.ID, stored[0].DoctorID)
		assert.NotEqual(t, uuid.Nil, stored[0].ID)

		weekly, err := svc.GetAvailability(ctx, doctor.ID, "")
		require.NoError(t, err)
		require.Len(t, weekly, 1)
		assert.Equal(t, 4, weekly[0].DayOfWeek)
		assert.False(t, weekly[0].IsAvailable)
		assert.Nil(t, weekly[0].Date)
	})

	t.Run("validation", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		_, err := svc.SetAvailability(ctx, doctor, doctor.ID, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("12:00", "09:00"))
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = svc.SetAvailability(ctx, doctor, doctor.ID, []SlotTemplate{
			{DoctorID: "doc-2", DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00", IsAvailable: true},
		})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = svc.SetAvailability(ctx, doctor, doctor.ID, []SlotTemplate{
			{DayOfWeek: 7, StartTime: "09:00", EndTime: "10:00", IsAvailable: true},
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Fields, 1)
	})

	t.Run("authorization", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		_, err := svc.SetAvailability(ctx, Caller{}, doctor.ID, mondayTemplate("09:00", "10:00"))
		assert.ErrorIs(t, err, ErrUnauthenticated)

		_, err = svc.SetAvailability(ctx, patientA, doctor.ID, mondayTemplate("09:00", "10:00"))
		assert.ErrorIs(t, err, ErrPermissionDenied)

		otherDoctor := Caller{ID: "doc-2", Role: RoleDoctor}
		_, err = svc.SetAvailability(ctx, otherDoctor, doctor.ID, mondayTemplate("09:00", "10:00"))
		assert.ErrorIs(t, err, ErrPermissionDenied)

		admin := Caller{ID: "admin-1", Role: RoleAdmin}
		_, err = svc.SetAvailability(ctx, admin, doctor.ID, mondayTemplate("09:00", "10:00"))
		assert.NoError(t, err)
	})
}

func TestResolverCorrectness(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, nil)

	_, err := svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("09:00", "12:00"))
	require.NoError(t, err)

	date, _ := ParseDate(monday)
	_, err = repo.CreateAppointment(ctx, &Appointment{
		PatientID:       "pat-x",
		DoctorID:        doctor.ID,
		AppointmentDate: date,
		StartTime:       "10:00",
		EndTime:         "10:30",
		Status:          StatusConfirmed,
	})
	require.NoError(t, err)

	slots, err := svc.GetAvailability(ctx, doctor.ID, monday)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.Equal(t, "10:00", slots[0].EndTime)
	assert.Equal(t, "10:30", slots[1].StartTime)
	assert.Equal(t, "12:00", slots[1].EndTime)
	for _, s := range slots {
		assert.True(t, s.IsAvailable)
		require.NotNil(t, s.Date)
		assert.Equal(t, monday, s.Date.Format(DateLayout))
	}

	_, err = book(svc, patientA, "10:00", "10:30")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Equal(t, KindFailedPrecondition, KindOf(err))

	appt, err := book(svc, patientA, "09:00", "09:30")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
}

func TestGetAvailability(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	_, err := svc.SetAvailability(ctx, doctor, doctor.ID, []SlotTemplate{
		{DayOfWeek: 0, StartTime: "14:00", EndTime: "16:00", IsAvailable: true},
		{DayOfWeek: 0, StartTime: "09:00", EndTime: "12:00", IsAvailable: true},
		{DayOfWeek: 0, StartTime: "18:00", EndTime: "19:00", IsAvailable: false},
		{DayOfWeek: 6, StartTime: "10:00", EndTime: "11:00", IsAvailable: true},
	})
	require.NoError(t, err)

	t.Run("only enabled templates of the matching weekday", func(t *testing.T) {
		slots, err := svc.GetAvailability(ctx, doctor.ID, monday)
		require.NoError(t, err)
		require.Len(t, slots, 2)
		assert.Equal(t, "09:00", slots[0].StartTime)
		assert.Equal(t, "14:00", slots[1].StartTime)
	})

	t.Run("sunday maps to day 6", func(t *testing.T) {
		slots, err := svc.GetAvailability(ctx, doctor.ID, sunday)
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, 6, slots[0].DayOfWeek)
	})

	t.Run("idempotent read", func(t *testing.T) {
		first, err := svc.GetAvailability(ctx, doctor.ID, monday)
		require.NoError(t, err)
		second, err := svc.GetAvailability(ctx, doctor.ID, monday)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("doctor without templates", func(t *testing.T) {
		slots, err := svc.GetAvailability(ctx, "doc-unknown", monday)
		require.NoError(t, err)
		assert.Empty(t, slots)
		assert.NotNil(t, slots)
	})

	t.Run("bad input", func(t *testing.T) {
		_, err := svc.GetAvailability(ctx, doctor.ID, "next monday")
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = svc.GetAvailability(ctx, "", monday)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestBookAppointment(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects missing caller and fields", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		_, err := book(svc, Caller{}, "09:00", "09:30")
		assert.ErrorIs(t, err, ErrUnauthenticated)

		_, err = svc.BookAppointment(ctx, patientA, BookingRequest{DoctorID: doctor.ID, Date: monday, StartTime: "09:00"})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = svc.BookAppointment(ctx, patientA, BookingRequest{Date: monday, StartTime: "09:00", EndTime: "09:30"})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = book(svc, patientA, "09:30", "09:00")
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = svc.BookAppointment(ctx, doctor, BookingRequest{DoctorID: doctor.ID, Date: monday, StartTime: "09:00", EndTime: "09:30"})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("request must fall inside a published window", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		_, err := svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("09:00", "12:00"))
		require.NoError(t, err)

		_, err = book(svc, patientA, "08:30", "09:30")
		assert.ErrorIs(t, err, ErrSlotUnavailable)

		_, err = book(svc, patientA, "11:30", "12:30")
		assert.ErrorIs(t, err, ErrSlotUnavailable)

		_, err = svc.BookAppointment(ctx, patientA, BookingRequest{DoctorID: doctor.ID, Date: "2030-01-08", StartTime: "09:00", EndTime: "09:30"})
		assert.ErrorIs(t, err, ErrSlotUnavailable, "no template on tuesday")

		appt, err := book(svc, patientA, "09:00", "12:00")
		require.NoError(t, err)
		assert.Equal(t, patientA.ID, appt.PatientID)
		assert.Equal(t, doctor.ID, appt.DoctorID)
		assert.Equal(t, monday, appt.AppointmentDate.Format(DateLayout))
		assert.Equal(t, int64(1), appt.Version)
	})

	t.Run("adjacent bookings both fit", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		_, err := svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("09:00", "10:00"))
		require.NoError(t, err)

		_, err = book(svc, patientA, "09:00", "09:30")
		require.NoError(t, err)
		_, err = book(svc, patientB, "09:30", "10:00")
		require.NoError(t, err)
		_, err = book(svc, stranger, "09:15", "09:45")
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	})

	t.Run("busy lock is a retryable internal failure", func(t *testing.T) {
		svc, _ := newTestService(t, busyLocker{})
		_, err := svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("09:00", "10:00"))
		require.NoError(t, err)

		_, err = book(svc, patientA, "09:00", "09:30")
		assert.ErrorIs(t, err, redisclient.ErrLockNotAcquired)
		assert.Equal(t, KindInternal, KindOf(err))
	})

	t.Run("records a creation event", func(t *testing.T) {
		svc, repo := newTestService(t, nil)
		_, err := svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("09:00", "10:00"))
		require.NoError(t, err)

		appt, err := book(svc, patientA, "09:00", "09:30")
		require.NoError(t, err)

		events := repo.Events()
		require.Len(t, events, 2)
		assert.Equal(t, EventAvailabilityReplaced, events[0].EventType)
		assert.Equal(t, EventAppointmentCreated, events[1].EventType)
		require.NotNil(t, events[1].AppointmentID)
		assert.Equal(t, appt.ID, *events[1].AppointmentID)
	})
}

func TestConcurrentBookingsClaimSlotOnce(t *testing.T) {
	lockers := map[string]redisclient.Locker{
		"local lock":       redisclient.NewLocalLocker(5 * time.Second),
		"repository scope": passthroughLocker{},
	}

	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, repo := newTestService(t, locker)
			_, err := svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("09:00", "12:00"))
			require.NoError(t, err)

			// identical and overlapping requests
			ranges := [][2]string{{"10:00", "10:30"}, {"10:00", "10:30"}, {"10:15", "10:45"}, {"09:50", "10:20"}}

			const n = 32
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
				failures  []error
			)
			start := make(chan struct{})

			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					r := ranges[i%len(ranges)]
					caller := Caller{ID: uuid.NewString(), Role: RolePatient}
					_, err := book(svc, caller, r[0], r[1])

					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						succeeded++
					} else {
						failures = append(failures, err)
					}
				}(i)
			}
			close(start)
			wg.Wait()

			assert.Equal(t, 1, succeeded)
			for _, err := range failures {
				assert.ErrorIs(t, err, ErrSlotUnavailable)
			}

			held, err := repo.ListAppointments(ctx, AppointmentQuery{
				DoctorID: doctor.ID,
				Statuses: []AppointmentStatus{StatusPending, StatusConfirmed},
			})
			require.NoError(t, err)
			assertNoOverlap(t, held)
		})
	}
}

func assertNoOverlap(t *testing.T, appts []Appointment) {
	t.Helper()
	for i := range appts {
		for j := i + 1; j < len(appts); j++ {
			a, b := appts[i], appts[j]
			if a.DoctorID != b.DoctorID || !a.AppointmentDate.Equal(b.AppointmentDate) {
				continue
			}
			ia := interval{a.StartTime, a.EndTime}
			ib := interval{b.StartTime, b.EndTime}
			assert.False(t, ia.overlaps(ib), "appointments %s and %s overlap", a.ID, b.ID)
		}
	}
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Service, *MemoryRepository, *Appointment) {
		svc, repo := newTestService(t, nil)
		_, err := svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("09:00", "17:00"))
		require.NoError(t, err)
		appt, err := book(svc, patientA, "09:00", "09:30")
		require.NoError(t, err)
		return svc, repo, appt
	}

	t.Run("doctor confirms then completes", func(t *testing.T) {
		svc, _, appt := setup(t)

		confirmed, err := svc.ConfirmAppointment(ctx, doctor, appt.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, confirmed.Status)
		assert.Equal(t, appt.Version+1, confirmed.Version)
		assert.False(t, confirmed.UpdatedAt.Before(appt.UpdatedAt))

		notes := "follow up in two weeks"
		completed, err := svc.CompleteAppointment(ctx, doctor, appt.ID, &notes)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, completed.Status)
		assert.Equal(t, notes, completed.Notes)
	})

	t.Run("pending cannot be completed", func(t *testing.T) {
		svc, repo, appt := setup(t)

		_, err := svc.CompleteAppointment(ctx, doctor, appt.ID, nil)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
		assert.Equal(t, KindFailedPrecondition, KindOf(err))

		stored, err := repo.GetAppointmentByID(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, stored.Status)
	})

	t.Run("terminal states are closed", func(t *testing.T) {
		svc, repo, appt := setup(t)

		_, err := svc.ConfirmAppointment(ctx, doctor, appt.ID, nil)
		require.NoError(t, err)
		_, err = svc.CompleteAppointment(ctx, doctor, appt.ID, nil)
		require.NoError(t, err)

		_, err = svc.ConfirmAppointment(ctx, doctor, appt.ID, nil)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
		_, err = svc.CancelAppointment(ctx, patientA, appt.ID, nil)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)

		stored, err := repo.GetAppointmentByID(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, stored.Status)

		other, err := book(svc, patientB, "10:00", "10:30")
		require.NoError(t, err)
		_, err = svc.CancelAppointment(ctx, patientB, other.ID, nil)
		require.NoError(t, err)
		_, err = svc.ConfirmAppointment(ctx, doctor, other.ID, nil)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)

		stored, err = repo.GetAppointmentByID(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, stored.Status)
	})

	t.Run("unknown appointment", func(t *testing.T) {
		svc, _, _ := setup(t)

		_, err := svc.ConfirmAppointment(ctx, doctor, uuid.New(), nil)
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))

		_, err = svc.CancelAppointment(ctx, patientA, uuid.New(), nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("authorization boundary", func(t *testing.T) {
		svc, repo, appt := setup(t)

		_, err := svc.CancelAppointment(ctx, stranger, appt.ID, nil)
		assert.ErrorIs(t, err, ErrPermissionDenied)

		_, err = svc.ConfirmAppointment(ctx, patientA, appt.ID, nil)
		assert.ErrorIs(t, err, ErrPermissionDenied)

		_, err = svc.CompleteAppointment(ctx, patientA, appt.ID, nil)
		assert.ErrorIs(t, err, ErrPermissionDenied)

		_, err = svc.ConfirmAppointment(ctx, Caller{}, appt.ID, nil)
		assert.ErrorIs(t, err, ErrUnauthenticated)

		stored, err := repo.GetAppointmentByID(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, stored.Status)

		_, err = svc.CancelAppointment(ctx, doctor, appt.ID, nil)
		assert.NoError(t, err, "the doctor may cancel too")
	})

	t.Run("cancellation frees the slot", func(t *testing.T) {
		svc, _, _ := setup(t)

		appt, err := book(svc, patientB, "10:00", "10:30")
		require.NoError(t, err)
		_, err = book(svc, stranger, "10:00", "10:30")
		require.ErrorIs(t, err, ErrSlotUnavailable)

		_, err = svc.CancelAppointment(ctx, patientB, appt.ID, nil)
		require.NoError(t, err)

		rebooked, err := book(svc, stranger, "10:00", "10:30")
		require.NoError(t, err)
		assert.NotEqual(t, appt.ID, rebooked.ID)
	})
}

// staleRepository lets another writer win between the load and the update.
type staleRepository struct {
	*MemoryRepository
	once sync.Once
}

func (r *staleRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, to AppointmentStatus, notes *string) (*Appointment, error) {
	r.once.Do(func() {
		_, _ = r.MemoryRepository.UpdateAppointmentStatus(ctx, id, expectedVersion, StatusCancelled, nil)
	})
	return r.MemoryRepository.UpdateAppointmentStatus(ctx, id, expectedVersion, to, notes)
}

func TestTransitionLosesRace(t *testing.T) {
	ctx := context.Background()
	repo := &staleRepository{MemoryRepository: NewMemoryRepository()}
	svc := NewService(repo, redisclient.NewLocalLocker(time.Second), zap.NewNop(), nil)

	_, err := svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("09:00", "10:00"))
	require.NoError(t, err)
	appt, err := book(svc, patientA, "09:00", "09:30")
	require.NoError(t, err)

	_, err = svc.ConfirmAppointment(ctx, doctor, appt.ID, nil)
	assert.ErrorIs(t, err, ErrStaleAppointment)
	assert.Equal(t, KindConflict, KindOf(err))

	stored, err := repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status, "the winning write is kept")
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, nil)

	_, err := svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("09:00", "10:00"))
	require.NoError(t, err)
	appt, err := book(svc, patientA, "09:00", "09:30")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.CancelAppointment(ctx, patientA, appt.ID, nil)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.ConfirmAppointment(ctx, doctor, appt.ID, nil)
	}()
	wg.Wait()

	stored, err := repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)

	switch {
	case errs[0] == nil && errs[1] == nil:
		// confirm committed first, then cancel applied on top of it
		assert.Equal(t, StatusCancelled, stored.Status)
		assert.Equal(t, int64(3), stored.Version)
	case errs[0] == nil:
		assert.Equal(t, StatusCancelled, stored.Status)
		assert.True(t, errors.Is(errs[1], ErrStaleAppointment) || errors.Is(errs[1], ErrInvalidStatusTransition))
	case errs[1] == nil:
		assert.Equal(t, StatusConfirmed, stored.Status)
		assert.ErrorIs(t, errs[0], ErrStaleAppointment)
	default:
		t.Fatalf("both transitions failed: %v, %v", errs[0], errs[1])
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	_, err := svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("09:00", "17:00"))
	require.NoError(t, err)

	a, err := book(svc, patientA, "09:00", "09:30")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, a.Status)

	_, err = book(svc, patientB, "09:00", "09:30")
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	a, err = svc.ConfirmAppointment(ctx, doctor, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, a.Status)

	a, err = svc.CancelAppointment(ctx, patientA, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, a.Status)

	b, err := book(svc, patientB, "09:00", "09:30")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, patientB.ID, b.PatientID)
}

func TestGetAndUpdateAppointment(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	_, err := svc.SetAvailability(ctx, doctor, doctor.ID, mondayTemplate("09:00", "10:00"))
	require.NoError(t, err)
	appt, err := book(svc, patientA, "09:00", "09:30")
	require.NoError(t, err)

	got, err := svc.GetAppointment(ctx, doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)

	_, err = svc.GetAppointment(ctx, stranger, appt.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	reason := "persistent cough"
	updated, err := svc.UpdateAppointmentDetails(ctx, patientA, appt.ID, AppointmentPatch{Reason: &reason})
	require.NoError(t, err)
	assert.Equal(t, reason, updated.Reason)
	assert.Equal(t, StatusPending, updated.Status)
	assert.Equal(t, "09:00", updated.StartTime)

	_, err = svc.UpdateAppointmentDetails(ctx, patientA, appt.ID, AppointmentPatch{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.UpdateAppointmentDetails(ctx, stranger, appt.ID, AppointmentPatch{Reason: &reason})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.CancelAppointment(ctx, patientA, appt.ID, nil)
	require.NoError(t, err)

	_, err = svc.UpdateAppointmentDetails(ctx, patientA, appt.ID, AppointmentPatch{Reason: &reason})
	assert.ErrorIs(t, err, ErrAppointmentClosed)
}

func TestListAppointments(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	_, err := svc.SetAvailability(ctx, doctor, doctor.ID, []SlotTemplate{
		{DayOfWeek: 0, StartTime: "09:00", EndTime: "12:00", IsAvailable: true},
		{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00", IsAvailable: true},
	})
	require.NoError(t, err)

	a1, err := book(svc, patientA, "09:00", "09:30")
	require.NoError(t, err)
	_, err = book(svc, patientB, "10:00", "10:30")
	require.NoError(t, err)
	_, err = svc.BookAppointment(ctx, patientA, BookingRequest{DoctorID: doctor.ID, Date: "2030-01-08", StartTime: "11:00", EndTime: "11:30"})
	require.NoError(t, err)
	_, err = svc.CancelAppointment(ctx, patientA, a1.ID, nil)
	require.NoError(t, err)

	mine, err := svc.ListAppointments(ctx, patientA, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, a := range mine {
		assert.Equal(t, patientA.ID, a.PatientID)
	}

	doctors, err := svc.ListAppointments(ctx, doctor, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, doctors, 3)

	open, err := svc.ListAppointments(ctx, patientA, ListFilter{Statuses: []AppointmentStatus{StatusPending}})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "11:00", open[0].StartTime)

	monOnly, err := svc.ListAppointments(ctx, doctor, ListFilter{From: monday, To: monday})
	require.NoError(t, err)
	assert.Len(t, monOnly, 2)

	paged, err := svc.ListAppointments(ctx, doctor, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "10:00", paged[0].StartTime)

	none, err := svc.ListAppointments(ctx, stranger, ListFilter{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = svc.ListAppointments(ctx, patientA, ListFilter{Statuses: []AppointmentStatus{"LOST"}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.ListAppointments(ctx, patientA, ListFilter{From: "2030-01-08", To: monday})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.ListAppointments(ctx, Caller{}, ListFilter{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
