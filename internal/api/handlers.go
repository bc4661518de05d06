package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-availability-scheduling/internal/appointment"
)

type handlers struct {
	svc *appointment.Service
	log *zap.Logger
}

func (h *handlers) setAvailability(w http.ResponseWriter, r *http.Request) {
	var req SetAvailabilityRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	doctorID := chi.URLParam(r, "doctorID")
	templates := make([]appointment.SlotTemplate, 0, len(req.Slots))
	for _, s := range req.Slots {
		available := true
		if s.IsAvailable != nil {
			available = *s.IsAvailable
		}
		templates = append(templates, appointment.SlotTemplate{
			DoctorID:    doctorID,
			DayOfWeek:   *s.DayOfWeek,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			IsAvailable: available,
		})
	}

	stored, err := h.svc.SetAvailability(r.Context(), callerFrom(r.Context()), doctorID, templates)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toTemplateResponses(stored))
}

func (h *handlers) getAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	date := r.URL.Query().Get("date")

	slots, err := h.svc.GetAvailability(r.Context(), doctorID, date)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		DoctorID: doctorID,
		Date:     date,
		Slots:    toSlotResponses(slots),
	})
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	appt, err := h.svc.BookAppointment(r.Context(), callerFrom(r.Context()), appointment.BookingRequest{
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := appointment.ListFilter{
		From: q.Get("from"),
		To:   q.Get("to"),
	}
	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, appointment.AppointmentStatus(strings.ToUpper(s)))
			}
		}
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, string(appointment.KindInvalidArgument), "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, string(appointment.KindInvalidArgument), "offset must be an integer")
		return
	}

	appts, err := h.svc.ListAppointments(r.Context(), callerFrom(r.Context()), filter)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	resp := AppointmentListResponse{
		Appointments: make([]AppointmentResponse, 0, len(appts)),
	}
	resp.Limit, resp.Offset = appointment.PageBounds(filter.Limit, filter.Offset)
	for i := range appts {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), callerFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	var req UpdateAppointmentRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	appt, err := h.svc.UpdateAppointmentDetails(r.Context(), callerFrom(r.Context()), id, appointment.AppointmentPatch{
		Reason: req.Reason,
		Notes:  req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type transitionFunc func(ctx context.Context, caller appointment.Caller, id uuid.UUID, notes *string) (*appointment.Appointment, error)

// transition serves cancel, confirm and complete, which share a body shape.
func (h *handlers) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req TransitionRequest
		if err := decodeAndValidate(r, &req, true); err != nil {
			writeServiceError(w, r, h.log, err)
			return
		}

		appt, err := fn(r.Context(), callerFrom(r.Context()), id, req.Notes)
		if err != nil {
			writeServiceError(w, r, h.log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(appointment.KindInvalidArgument), "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
