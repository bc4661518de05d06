package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability-scheduling/internal/appointment"
)

type SlotRequest struct {
	DayOfWeek   *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime   string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime     string `json:"end_time" validate:"required,datetime=15:04"`
	IsAvailable *bool  `json:"is_available"`
}

type SetAvailabilityRequest struct {
	Slots []SlotRequest `json:"slots" validate:"required,min=1,dive"`
}

type CreateAppointmentRequest struct {
	DoctorID  string `json:"doctor_id" validate:"required,max=128"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
	Reason    string `json:"reason" validate:"max=1000"`
}

type TransitionRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=2000"`
}

type UpdateAppointmentRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=1000"`
	Notes  *string `json:"notes" validate:"omitempty,max=2000"`
}

type TemplateResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    string    `json:"doctor_id"`
	DayOfWeek   int       `json:"day_of_week"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

type SlotResponse struct {
	TemplateID  uuid.UUID `json:"template_id"`
	DoctorID    string    `json:"doctor_id"`
	DayOfWeek   int       `json:"day_of_week"`
	Date        string    `json:"date,omitempty"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
}

type AvailabilityResponse struct {
	DoctorID string         `json:"doctor_id"`
	Date     string         `json:"date,omitempty"`
	Slots    []SlotResponse `json:"slots"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      a.AppointmentDate.Format(appointment.DateLayout),
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    string(a.Status),
		Reason:    a.Reason,
		Notes:     a.Notes,
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toTemplateResponses(ts []appointment.SlotTemplate) []TemplateResponse {
	out := make([]TemplateResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, TemplateResponse{
			ID:          t.ID,
			DoctorID:    t.DoctorID,
			DayOfWeek:   t.DayOfWeek,
			StartTime:   t.StartTime,
			EndTime:     t.EndTime,
			IsAvailable: t.IsAvailable,
			CreatedAt:   t.CreatedAt,
		})
	}
	return out
}

func toSlotResponses(slots []appointment.ResolvedSlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		resp := SlotResponse{
			TemplateID:  s.TemplateID,
			DoctorID:    s.DoctorID,
			DayOfWeek:   s.DayOfWeek,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			IsAvailable: s.IsAvailable,
		}
		if s.Date != nil {
			resp.Date = s.Date.Format(appointment.DateLayout)
		}
		out = append(out, resp)
	}
	return out
}
