package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the service.
type Repository interface {
	// Availability templates. ReplaceTemplates overwrites the doctor's whole set.
	ReplaceTemplates(ctx context.Context, doctorID string, templates []SlotTemplate) ([]SlotTemplate, error)
	ListTemplates(ctx context.Context, doctorID string, filter TemplateFilter) ([]SlotTemplate, error)

	// Appointments
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, q AppointmentQuery) ([]Appointment, error)

	// Compare-and-swap updates: they apply only while the stored version equals
	// expectedVersion and fail with ErrStaleAppointment otherwise.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, to AppointmentStatus, notes *string) (*Appointment, error)
	UpdateAppointmentDetails(ctx context.Context, id uuid.UUID, expectedVersion int64, patch AppointmentPatch) (*Appointment, error)

	// WithinDayScope runs fn exclusively for (doctorID, date): no other scope
	// for the same key runs concurrently, and the reads and writes fn performs
	// through the passed context commit as one unit.
	WithinDayScope(ctx context.Context, doctorID string, date time.Time, fn func(ctx context.Context) error) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// prepareTemplates validates a replacement set and stamps ids. Templates with
// an empty DoctorID are attributed to doctorID.
func prepareTemplates(doctorID string, templates []SlotTemplate, now time.Time) ([]SlotTemplate, error) {
	verr := &ValidationError{}
	if doctorID == "" {
		verr.add("doctor_id is required")
	}
	if len(templates) == 0 {
		verr.add("at least one availability slot is required")
	}

	out := make([]SlotTemplate, 0, len(templates))
	for i, t := range templates {
		if t.DoctorID == "" {
			t.DoctorID = doctorID
		}
		if t.DoctorID != doctorID {
			verr.add("slots[%d]: doctor_id %q does not match %q", i, t.DoctorID, doctorID)
		}
		if t.DayOfWeek < 0 || t.DayOfWeek > 6 {
			verr.add("slots[%d]: day_of_week %d must be between 0 (Monday) and 6 (Sunday)", i, t.DayOfWeek)
		}
		if err := checkRange(t.StartTime, t.EndTime); err != nil {
			verr.add("slots[%d]: %v", i, err)
		}

		t.ID = uuid.New()
		t.CreatedAt = now
		out = append(out, t)
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// prepareAppointment validates a new appointment and fills the defaults a
// store assigns on create.
func prepareAppointment(a *Appointment, now time.Time) (*Appointment, error) {
	if a == nil {
		return nil, invalidArgument("appointment is required")
	}

	verr := &ValidationError{}
	if a.PatientID == "" {
		verr.add("patient_id is required")
	}
	if a.DoctorID == "" {
		verr.add("doctor_id is required")
	}
	if a.AppointmentDate.IsZero() {
		verr.add("appointment_date is required")
	}
	if a.StartTime == "" {
		verr.add("start_time is required")
	}
	if a.EndTime == "" {
		verr.add("end_time is required")
	}
	if a.StartTime != "" && a.EndTime != "" {
		if err := checkRange(a.StartTime, a.EndTime); err != nil {
			verr.add("%v", err)
		}
	}
	if a.Status != "" && !a.Status.IsValid() {
		verr.add("status %q is not a valid appointment status", a.Status)
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	c := *a
	c.ID = uuid.New()
	c.AppointmentDate = DateOf(a.AppointmentDate)
	if c.Status == "" {
		c.Status = StatusPending
	}
	c.Version = 1
	c.CreatedAt = now
	c.UpdatedAt = now
	return &c, nil
}

func dayScopeKey(doctorID string, date time.Time) string {
	return fmt.Sprintf("%s:%s", doctorID, date.Format(DateLayout))
}
