package appointment

import (
	"time"

	"github.com/google/uuid"
)

// State transitions:
//
//	PENDING → CONFIRMED → COMPLETED
//	PENDING → CANCELLED
//	CONFIRMED → CANCELLED
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusCompleted AppointmentStatus = "COMPLETED"
)

var allStatuses = []AppointmentStatus{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}

func (s AppointmentStatus) IsValid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// HoldsSlot reports whether an appointment in this status occupies its time range.
func (s AppointmentStatus) HoldsSlot() bool {
	return s == StatusPending || s == StatusConfirmed
}

// slotHoldingStatuses lists the statuses for which HoldsSlot is true.
func slotHoldingStatuses() []AppointmentStatus {
	out := make([]AppointmentStatus, 0, len(allStatuses))
	for _, s := range allStatuses {
		if s.HoldsSlot() {
			out = append(out, s)
		}
	}
	return out
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Caller is the authenticated identity invoking an operation. An empty ID
// means the request is unauthenticated.
type Caller struct {
	ID   string
	Role Role
}

func (c Caller) Authenticated() bool {
	return c.ID != ""
}

// SlotTemplate is one recurring weekly availability window of a doctor.
// DayOfWeek uses Monday=0 ... Sunday=6.
type SlotTemplate struct {
	ID          uuid.UUID
	DoctorID    string
	DayOfWeek   int
	StartTime   string
	EndTime     string
	IsAvailable bool
	CreatedAt   time.Time
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       string
	DoctorID        string
	AppointmentDate time.Time // calendar date, midnight UTC
	StartTime       string
	EndTime         string
	Status          AppointmentStatus
	Reason          string
	Notes           string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a *Appointment) IsParticipant(callerID string) bool {
	return callerID != "" && (callerID == a.PatientID || callerID == a.DoctorID)
}

// ResolvedSlot is a free window of a template slot. Date is nil when the raw
// weekly template was requested.
type ResolvedSlot struct {
	TemplateID  uuid.UUID
	DoctorID    string
	DayOfWeek   int
	Date        *time.Time
	StartTime   string
	EndTime     string
	IsAvailable bool
}

// AppointmentPatch lists the fields a participant may edit after booking.
// Identity, schedule and status are not part of it.
type AppointmentPatch struct {
	Reason *string
	Notes  *string
}

func (p AppointmentPatch) IsEmpty() bool {
	return p.Reason == nil && p.Notes == nil
}

type BookingRequest struct {
	DoctorID  string
	Date      string // YYYY-MM-DD
	StartTime string // HH:MM
	EndTime   string // HH:MM
	Reason    string
}

type ListFilter struct {
	Statuses []AppointmentStatus
	From     string // YYYY-MM-DD, inclusive
	To       string // YYYY-MM-DD, inclusive
	Limit    int
	Offset   int
}

// AppointmentQuery is the storage-level query. ParticipantID matches either
// side of the appointment.
type AppointmentQuery struct {
	ParticipantID string
	PatientID     string
	DoctorID      string
	From          *time.Time
	To            *time.Time
	Statuses      []AppointmentStatus
	Limit         int
	Offset        int
}

type TemplateFilter struct {
	DayOfWeek     *int
	OnlyAvailable bool
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	DoctorID      string
	Payload       []byte
	CreatedAt     time.Time
}
