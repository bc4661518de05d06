package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-availability-scheduling/internal/metrics"
	redisclient "github.com/hackgods/doctor-availability-scheduling/internal/redis"
)

const (
	EventAvailabilityReplaced = "AVAILABILITY_REPLACED"
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentUpdated   = "APPOINTMENT_UPDATED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var transitionEvents = map[AppointmentStatus]string{
	StatusConfirmed: EventAppointmentConfirmed,
	StatusCancelled: EventAppointmentCancelled,
	StatusCompleted: EventAppointmentCompleted,
}

type Service struct {
	repo     Repository
	resolver *Resolver
	locker   redisclient.Locker
	log      *zap.Logger
	metrics  *metrics.Collector
}

func NewService(repo Repository, locker redisclient.Locker, log *zap.Logger, m *metrics.Collector) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		resolver: NewResolver(repo),
		locker:   locker,
		log:      log,
		metrics:  m,
	}
}

// SetAvailability replaces the doctor's weekly templates. The caller must be
// that doctor or an admin.
func (s *Service) SetAvailability(ctx context.Context, caller Caller, doctorID string, templates []SlotTemplate) ([]SlotTemplate, error) {
	if !caller.Authenticated() {
		return nil, ErrNoCaller
	}
	switch {
	case caller.Role == RoleAdmin:
	case caller.Role == RoleDoctor && caller.ID == doctorID:
	default:
		return nil, permissionDenied("only doctor %s may set this availability", doctorID)
	}

	stored, err := s.repo.ReplaceTemplates(ctx, doctorID, templates)
	if err != nil {
		if KindOf(err) == KindInternal {
			s.log.Error("replace templates failed", zap.String("doctor_id", doctorID), zap.Error(err))
		}
		return nil, fmt.Errorf("replace templates: %w", err)
	}

	s.logEvent(ctx, nil, doctorID, EventAvailabilityReplaced, map[string]any{
		"set_by": caller.ID,
		"slots":  len(stored),
	})

	return stored, nil
}

// GetAvailability returns the free windows of doctorID on date, or the raw
// weekly template when date is empty.
func (s *Service) GetAvailability(ctx context.Context, doctorID, date string) ([]ResolvedSlot, error) {
	if doctorID == "" {
		return nil, invalidArgument("doctor_id is required")
	}

	var day *time.Time
	if date != "" {
		d, err := ParseDate(date)
		if err != nil {
			return nil, err
		}
		day = &d
	}

	slots, err := s.resolver.Resolve(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	if day != nil {
		s.metrics.ObserveResolvedSlots(len(slots))
	}
	return slots, nil
}

// BookAppointment creates a PENDING appointment for the caller as patient.
// The availability check and the insert run under a Redis lock and a
// repository day scope for (doctor, date), so two overlapping requests cannot
// both pass the check.
func (s *Service) BookAppointment(ctx context.Context, caller Caller, req BookingRequest) (*Appointment, error) {
	if !caller.Authenticated() {
		s.metrics.ObserveBooking("rejected")
		return nil, ErrNoCaller
	}

	date, err := validateBooking(caller, req)
	if err != nil {
		s.metrics.ObserveBooking("rejected")
		return nil, err
	}

	var created *Appointment
	lockKey := bookingLockKey(req.DoctorID, date)
	waitStart := time.Now()

	err = s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		s.metrics.ObserveLockWait(time.Since(waitStart))

		return s.repo.WithinDayScope(lockCtx, req.DoctorID, date, func(txCtx context.Context) error {
			slots, err := s.resolver.Resolve(txCtx, req.DoctorID, &date)
			if err != nil {
				return err
			}
			if !fits(slots, req.StartTime, req.EndTime) {
				return ErrSlotUnavailable
			}

			appt, err := s.repo.CreateAppointment(txCtx, &Appointment{
				PatientID:       caller.ID,
				DoctorID:        req.DoctorID,
				AppointmentDate: date,
				StartTime:       req.StartTime,
				EndTime:         req.EndTime,
				Status:          StatusPending,
				Reason:          req.Reason,
			})
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}
			created = appt
			return nil
		})
	})

	if err != nil {
		switch {
		case errors.Is(err, ErrSlotUnavailable):
			s.metrics.ObserveBooking("unavailable")
			s.log.Info("booking rejected, slot unavailable",
				zap.String("doctor_id", req.DoctorID),
				zap.String("date", req.Date),
				zap.String("start_time", req.StartTime),
				zap.String("end_time", req.EndTime),
			)
			return nil, err
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			s.metrics.ObserveBooking("error")
			s.log.Warn("booking lock busy", zap.String("lock_key", lockKey))
			return nil, fmt.Errorf("slot is currently being booked, retry shortly: %w", err)
		case KindOf(err) != KindInternal:
			s.metrics.ObserveBooking("rejected")
			return nil, err
		default:
			s.metrics.ObserveBooking("error")
			s.log.Error("booking failed", zap.String("lock_key", lockKey), zap.Error(err))
			return nil, fmt.Errorf("book appointment: %w", err)
		}
	}

	s.metrics.ObserveBooking("booked")
	s.logEvent(ctx, &created.ID, created.DoctorID, EventAppointmentCreated, map[string]any{
		"patient_id": created.PatientID,
		"date":       req.Date,
		"start_time": created.StartTime,
		"end_time":   created.EndTime,
	})

	return created, nil
}

func (s *Service) CancelAppointment(ctx context.Context, caller Caller, id uuid.UUID, notes *string) (*Appointment, error) {
	return s.transition(ctx, caller, id, StatusCancelled, notes)
}

func (s *Service) ConfirmAppointment(ctx context.Context, caller Caller, id uuid.UUID, notes *string) (*Appointment, error) {
	return s.transition(ctx, caller, id, StatusConfirmed, notes)
}

func (s *Service) CompleteAppointment(ctx context.Context, caller Caller, id uuid.UUID, notes *string) (*Appointment, error) {
	return s.transition(ctx, caller, id, StatusCompleted, notes)
}

// transition loads the appointment, checks the caller and the state machine,
// and commits with a version compare-and-swap. A concurrent change between
// the load and the update surfaces as ErrStaleAppointment.
func (s *Service) transition(ctx context.Context, caller Caller, id uuid.UUID, to AppointmentStatus, notes *string) (*Appointment, error) {
	if !caller.Authenticated() {
		return nil, ErrNoCaller
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := authorizeTransition(caller, appt, to); err != nil {
		s.metrics.ObserveTransition(string(to), "denied")
		return nil, err
	}
	if err := checkTransition(appt, to); err != nil {
		s.metrics.ObserveTransition(string(to), "invalid")
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Version, to, notes)
	if err != nil {
		if errors.Is(err, ErrStaleAppointment) {
			s.metrics.ObserveTransition(string(to), "conflict")
			s.log.Info("status update lost race",
				zap.String("appointment_id", id.String()),
				zap.String("to", string(to)),
			)
			return nil, err
		}
		s.metrics.ObserveTransition(string(to), "error")
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.metrics.ObserveTransition(string(to), "ok")
	s.logEvent(ctx, &updated.ID, updated.DoctorID, transitionEvents[to], map[string]any{
		"from": appt.Status,
		"to":   updated.Status,
		"by":   caller.ID,
	})

	return updated, nil
}

// GetAppointment returns an appointment to one of its participants.
func (s *Service) GetAppointment(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	if !caller.Authenticated() {
		return nil, ErrNoCaller
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !appt.IsParticipant(caller.ID) && caller.Role != RoleAdmin {
		return nil, permissionDenied("caller is not a participant of this appointment")
	}
	return appt, nil
}

// UpdateAppointmentDetails edits the free-text fields of an open appointment.
func (s *Service) UpdateAppointmentDetails(ctx context.Context, caller Caller, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	if !caller.Authenticated() {
		return nil, ErrNoCaller
	}
	if patch.IsEmpty() {
		return nil, invalidArgument("nothing to update")
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !appt.IsParticipant(caller.ID) {
		return nil, permissionDenied("only the patient or the doctor of this appointment may edit it")
	}
	if appt.Status.IsTerminal() {
		return nil, ErrAppointmentClosed
	}

	updated, err := s.repo.UpdateAppointmentDetails(ctx, appt.ID, appt.Version, patch)
	if err != nil {
		if errors.Is(err, ErrStaleAppointment) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment details: %w", err)
	}

	s.logEvent(ctx, &updated.ID, updated.DoctorID, EventAppointmentUpdated, map[string]any{
		"by":             caller.ID,
		"reason_changed": patch.Reason != nil,
		"notes_changed":  patch.Notes != nil,
	})

	return updated, nil
}

// ListAppointments returns the caller's own appointments, as patient or as
// doctor.
func (s *Service) ListAppointments(ctx context.Context, caller Caller, filter ListFilter) ([]Appointment, error) {
	if !caller.Authenticated() {
		return nil, ErrNoCaller
	}

	q := AppointmentQuery{ParticipantID: caller.ID}
	q.Limit, q.Offset = PageBounds(filter.Limit, filter.Offset)

	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, invalidArgument("unknown status %q", st)
		}
		q.Statuses = append(q.Statuses, st)
	}
	if filter.From != "" {
		from, err := ParseDate(filter.From)
		if err != nil {
			return nil, err
		}
		q.From = &from
	}
	if filter.To != "" {
		to, err := ParseDate(filter.To)
		if err != nil {
			return nil, err
		}
		q.To = &to
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, invalidArgument("to %s is before from %s", filter.To, filter.From)
	}

	appointments, err := s.repo.ListAppointments(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if appointments == nil {
		appointments = []Appointment{}
	}
	return appointments, nil
}

// PageBounds applies the list defaults: limit 20 when unset, at most 100, and
// no negative offset.
func PageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func validateBooking(caller Caller, req BookingRequest) (time.Time, error) {
	var missing []string
	if req.DoctorID == "" {
		missing = append(missing, "doctor_id")
	}
	if req.Date == "" {
		missing = append(missing, "date")
	}
	if req.StartTime == "" {
		missing = append(missing, "start_time")
	}
	if req.EndTime == "" {
		missing = append(missing, "end_time")
	}
	if len(missing) > 0 {
		return time.Time{}, invalidArgument("missing required fields: %s", strings.Join(missing, ", "))
	}

	date, err := ParseDate(req.Date)
	if err != nil {
		return time.Time{}, err
	}
	if err := checkRange(req.StartTime, req.EndTime); err != nil {
		return time.Time{}, invalidArgument("%v", err)
	}
	if req.DoctorID == caller.ID {
		return time.Time{}, invalidArgument("cannot book an appointment with yourself")
	}
	return date, nil
}

func bookingLockKey(doctorID string, date time.Time) string {
	return "lock:booking:" + dayScopeKey(doctorID, date)
}

func (s *Service) logEvent(ctx context.Context, appointmentID *uuid.UUID, doctorID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("doctor_id", doctorID),
			zap.Error(err),
		)
	}
}
