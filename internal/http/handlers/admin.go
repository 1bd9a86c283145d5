package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smileclinic/booking-bot/internal/booking"
	"github.com/smileclinic/booking-bot/internal/clinic"
	"github.com/smileclinic/booking-bot/pkg/logging"
)

const dateLayout = "2006-01-02"

// AdminHandler exposes the booking engine to clinic staff tooling.
type AdminHandler struct {
	svc    *booking.Service
	hours  *clinic.Hours
	logger *logging.Logger
}

// NewAdminHandler creates the staff-facing API handler.
func NewAdminHandler(svc *booking.Service, hours *clinic.Hours, logger *logging.Logger) *AdminHandler {
	if svc == nil {
		panic("handlers: booking service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{svc: svc, hours: hours, logger: logger}
}

type appointmentJSON struct {
	ID            int64  `json:"id"`
	ClientName    string `json:"client_name,omitempty"`
	ClientPhone   string `json:"client_phone"`
	PatientName   string `json:"patient_name,omitempty"`
	DoctorID      int64  `json:"doctor_id"`
	DoctorName    string `json:"doctor_name"`
	ServiceName   string `json:"service_name"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	DurationMin   int    `json:"duration_minutes"`
	Price         int    `json:"price"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	CancelReason  string `json:"cancellation_reason,omitempty"`
	FollowUpDate  string `json:"follow_up_date,omitempty"`
	ActualPrice   *int   `json:"actual_price,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

func toAppointmentJSON(d *booking.AppointmentDetail) appointmentJSON {
	out := appointmentJSON{
		ID:            d.ID,
		ClientName:    d.ClientName,
		ClientPhone:   d.ClientPhone,
		PatientName:   d.PatientName,
		DoctorID:      d.DoctorID,
		DoctorName:    d.DoctorName,
		ServiceName:   d.ServiceName,
		Date:          d.Date.Format(dateLayout),
		Time:          d.Start.String(),
		DurationMin:   d.DurationMinutes,
		Price:         d.Price,
		Status:        string(d.Status),
		Notes:         d.Notes,
		CancelReason:  d.CancellationReason,
		ActualPrice:   d.ActualPrice,
		PaymentStatus: d.PaymentStatus,
	}
	if d.FollowUpDate != nil {
		out.FollowUpDate = d.FollowUpDate.Format(dateLayout)
	}
	return out
}

// GetAvailability lists free slots.
// Route: GET /api/availability?date=2026-03-10&doctor_id=1
func (h *AdminHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	var doctorID int64
	if raw := r.URL.Query().Get("doctor_id"); raw != "" {
		doctorID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "doctor_id must be an integer", http.StatusBadRequest)
			return
		}
	}

	av, err := h.svc.Availability(r.Context(), date, doctorID)
	if err != nil {
		h.respondError(w, err, "list availability")
		return
	}

	type doctorSlotsJSON struct {
		DoctorID       int64    `json:"doctor_id"`
		DoctorName     string   `json:"doctor_name"`
		Specialization string   `json:"specialization,omitempty"`
		Slots          []string `json:"slots"`
	}
	out := make([]doctorSlotsJSON, 0, len(av))
	for _, d := range av {
		slots := make([]string, 0, len(d.Slots))
		for _, s := range d.Slots {
			slots = append(slots, s.String())
		}
		out = append(out, doctorSlotsJSON{
			DoctorID:       d.DoctorID,
			DoctorName:     d.DoctorName,
			Specialization: d.Specialization,
			Slots:          slots,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"date": date.Format(dateLayout), "doctors": out})
}

// GetUpcoming lists scheduled appointments for a client, a doctor, or the
// whole clinic.
// Route: GET /api/appointments/upcoming?phone=...|doctor_id=...
func (h *AdminHandler) GetUpcoming(w http.ResponseWriter, r *http.Request) {
	var (
		details []booking.AppointmentDetail
		err     error
	)
	switch {
	case r.URL.Query().Get("phone") != "":
		details, err = h.svc.UpcomingForClient(r.Context(), r.URL.Query().Get("phone"))
	case r.URL.Query().Get("doctor_id") != "":
		var doctorID int64
		doctorID, err = strconv.ParseInt(r.URL.Query().Get("doctor_id"), 10, 64)
		if err != nil {
			http.Error(w, "doctor_id must be an integer", http.StatusBadRequest)
			return
		}
		details, err = h.svc.UpcomingForDoctor(r.Context(), doctorID)
	default:
		details, err = h.svc.UpcomingForClinic(r.Context())
	}
	if err != nil {
		h.respondError(w, err, "list upcoming")
		return
	}

	out := make([]appointmentJSON, 0, len(details))
	for i := range details {
		out = append(out, toAppointmentJSON(&details[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

type createAppointmentRequest struct {
	ClientPhone     string `json:"client_phone"`
	ClientName      string `json:"client_name"`
	Role            string `json:"role"`
	PatientName     string `json:"patient_name"`
	DoctorID        int64  `json:"doctor_id"`
	ServiceID       int64  `json:"service_id"`
	SecondServiceID int64  `json:"second_service_id"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Notes           string `json:"notes"`
}

// CreateAppointment books one appointment, or two back to back when
// second_service_id is given.
// Route: POST /api/appointments
func (h *AdminHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	date, start, role, err := parseSlot(req.Date, req.Time, req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ClientPhone == "" {
		http.Error(w, "client_phone is required", http.StatusBadRequest)
		return
	}

	if req.SecondServiceID != 0 {
		res, err := h.svc.CreateCombo(r.Context(), booking.ComboParams{
			ClientPhone:     req.ClientPhone,
			ClientName:      req.ClientName,
			Role:            role,
			PatientName:     req.PatientName,
			DoctorID:        req.DoctorID,
			FirstServiceID:  req.ServiceID,
			SecondServiceID: req.SecondServiceID,
			Date:            date,
			Start:           start,
			Notes:           req.Notes,
		})
		if err != nil {
			h.respondError(w, err, "create combo")
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{
			"first":  toAppointmentJSON(&res.First),
			"second": toAppointmentJSON(&res.Second),
		})
		return
	}

	detail, err := h.svc.Create(r.Context(), booking.CreateParams{
		ClientPhone: req.ClientPhone,
		ClientName:  req.ClientName,
		Role:        role,
		PatientName: req.PatientName,
		DoctorID:    req.DoctorID,
		ServiceID:   req.ServiceID,
		Date:        date,
		Start:       start,
		Notes:       req.Notes,
	})
	if err != nil {
		h.respondError(w, err, "create appointment")
		return
	}
	respondJSON(w, http.StatusCreated, toAppointmentJSON(detail))
}

type cancelRequest struct {
	Role        string `json:"role"`
	ClientPhone string `json:"client_phone"`
	Reason      string `json:"reason"`
}

// CancelAppointment cancels one appointment.
// Route: POST /api/appointments/{id}/cancel
func (h *AdminHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	role, err := parseRole(req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	detail, err := h.svc.Cancel(r.Context(), booking.CancelParams{
		ID:          id,
		Role:        role,
		ClientPhone: req.ClientPhone,
		Reason:      req.Reason,
	})
	if err != nil {
		h.respondError(w, err, "cancel appointment")
		return
	}
	respondJSON(w, http.StatusOK, toAppointmentJSON(detail))
}

type rescheduleRequest struct {
	Role        string `json:"role"`
	ClientPhone string `json:"client_phone"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

// RescheduleAppointment moves one appointment to a new slot.
// Route: POST /api/appointments/{id}/reschedule
func (h *AdminHandler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	date, start, role, err := parseSlot(req.Date, req.Time, req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.svc.Reschedule(r.Context(), booking.RescheduleParams{
		ID:          id,
		Role:        role,
		ClientPhone: req.ClientPhone,
		NewDate:     date,
		NewStart:    start,
	})
	if err != nil {
		h.respondError(w, err, "reschedule appointment")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"appointment": toAppointmentJSON(&res.Detail),
		"moved_from": map[string]string{
			"date": res.OldDate.Format(dateLayout),
			"time": res.OldStart.String(),
		},
	})
}

// CompleteAppointment marks an appointment completed.
// Route: POST /api/appointments/{id}/complete
func (h *AdminHandler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Complete)
}

// MarkNoShow marks an appointment as a no-show.
// Route: POST /api/appointments/{id}/no-show
func (h *AdminHandler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.MarkNoShow)
}

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) error) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := op(r.Context(), id); err != nil {
		h.respondError(w, err, "transition appointment")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type paymentRequest struct {
	Amount int    `json:"amount"`
	Status string `json:"status"`
}

// RecordPayment stores the amount paid for an appointment.
// Route: POST /api/appointments/{id}/payment
func (h *AdminHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if err := h.svc.RecordPayment(r.Context(), id, req.Amount, req.Status); err != nil {
		h.respondError(w, err, "record payment")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type followUpRequest struct {
	Date  string `json:"date"`
	Notes string `json:"notes"`
}

// ScheduleFollowUp attaches a follow-up date.
// Route: POST /api/appointments/{id}/follow-up
func (h *AdminHandler) ScheduleFollowUp(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req followUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if err := h.svc.ScheduleFollowUp(r.Context(), id, date, req.Notes); err != nil {
		h.respondError(w, err, "schedule follow-up")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type absenceRequest struct {
	DoctorID  int64  `json:"doctor_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

// DeclareAbsence records a doctor absence and cancels the affected
// appointments.
// Route: POST /api/absences
func (h *AdminHandler) DeclareAbsence(w http.ResponseWriter, r *http.Request) {
	var req absenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		http.Error(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		http.Error(w, "end_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	res, err := h.svc.SetDoctorAbsence(r.Context(), booking.AbsenceParams{
		DoctorID: req.DoctorID,
		Start:    start,
		End:      end,
		Reason:   req.Reason,
	})
	if err != nil {
		h.respondError(w, err, "declare absence")
		return
	}

	affected := make([]appointmentJSON, 0, len(res.Affected))
	for i := range res.Affected {
		affected = append(affected, toAppointmentJSON(&res.Affected[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"absence_id": res.AbsenceID,
		"cancelled":  res.Cancelled,
		"affected":   affected,
	})
}

type blockRequest struct {
	Reason string `json:"reason"`
}

// BlockClient puts a client on the block list.
// Route: POST /api/clients/{phone}/block
func (h *AdminHandler) BlockClient(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if err := h.svc.BlockClient(r.Context(), phone, req.Reason); err != nil {
		h.respondError(w, err, "block client")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "blocked"})
}

// UnblockClient lifts a block.
// Route: POST /api/clients/{phone}/unblock
func (h *AdminHandler) UnblockClient(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if err := h.svc.UnblockClient(r.Context(), phone); err != nil {
		h.respondError(w, err, "unblock client")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
}

type hoursRequest struct {
	Hours string `json:"hours"`
}

// SetHoursOverride changes one weekday's opening hours.
// Route: PUT /api/hours/{weekday}
func (h *AdminHandler) SetHoursOverride(w http.ResponseWriter, r *http.Request) {
	if h.hours == nil {
		http.Error(w, "hours overrides not configured", http.StatusServiceUnavailable)
		return
	}
	name := chi.URLParam(r, "weekday")
	var wd time.Weekday
	found := false
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(name, d.String()) {
			wd, found = d, true
			break
		}
	}
	if !found {
		http.Error(w, "unknown weekday", http.StatusBadRequest)
		return
	}
	var req hoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if err := h.hours.SetOverride(r.Context(), wd, req.Hours); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListDoctors returns the active doctors.
// Route: GET /api/doctors
func (h *AdminHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.svc.Doctors(r.Context())
	if err != nil {
		h.respondError(w, err, "list doctors")
		return
	}
	type doctorJSON struct {
		ID             int64  `json:"id"`
		Name           string `json:"name"`
		Specialization string `json:"specialization,omitempty"`
	}
	out := make([]doctorJSON, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, doctorJSON{ID: d.ID, Name: d.Name, Specialization: d.Specialization})
	}
	respondJSON(w, http.StatusOK, map[string]any{"doctors": out})
}

// ListServices returns the active services.
// Route: GET /api/services
func (h *AdminHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.svc.ListServices(r.Context())
	if err != nil {
		h.respondError(w, err, "list services")
		return
	}
	type serviceJSON struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Price       int    `json:"price"`
		DurationMin int    `json:"duration_minutes"`
	}
	out := make([]serviceJSON, 0, len(services))
	for _, s := range services {
		out = append(out, serviceJSON{ID: s.ID, Name: s.Name, Price: s.Price, DurationMin: s.DurationMinutes})
	}
	respondJSON(w, http.StatusOK, map[string]any{"services": out})
}

func (h *AdminHandler) respondError(w http.ResponseWriter, err error, op string) {
	switch {
	case booking.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case booking.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, booking.ErrDoctorNotFound),
		errors.Is(err, booking.ErrServiceNotFound),
		errors.Is(err, booking.ErrClientNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error(op+" failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

func parseRole(raw string) (booking.Role, error) {
	switch raw {
	case "", string(booking.RoleClient):
		return booking.RoleClient, nil
	case string(booking.RoleAdmin):
		return booking.RoleAdmin, nil
	}
	return "", errors.New(`role must be "client" or "admin"`)
}

func parseSlot(rawDate, rawTime, rawRole string) (time.Time, booking.TimeOfDay, booking.Role, error) {
	date, err := time.Parse(dateLayout, rawDate)
	if err != nil {
		return time.Time{}, 0, "", errors.New("date must be YYYY-MM-DD")
	}
	start, err := booking.ParseTimeOfDay(rawTime)
	if err != nil {
		return time.Time{}, 0, "", errors.New("time must be HH:MM")
	}
	role, err := parseRole(rawRole)
	if err != nil {
		return time.Time{}, 0, "", err
	}
	return date, start, role, nil
}
