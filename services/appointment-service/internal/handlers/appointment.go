package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/asif-mahmud/medisched/services/appointment-service/internal/directory"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/model"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/schedule"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/storage"
)

// Store is the persistence surface the handler books against. The pgx
// repository implements it in production; tests supply an in-memory fake.
type Store interface {
	CreateScheduled(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, limit int) ([]model.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID string, day *time.Time) ([]model.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error)
	Reschedule(ctx context.Context, id string, newDate *time.Time, newDuration *int, newStatus *model.Status) (model.Appointment, error)
	Cancel(ctx context.Context, id string) (model.Appointment, error)
	SoftDelete(ctx context.Context, id string) error
	ListBlockingIntervals(ctx context.Context, doctorID string, from, to time.Time) ([]schedule.Interval, error)
}

// Directory resolves patient and doctor ids. Existence checks gate writes;
// Display* never fails.
type Directory interface {
	CheckPatientExists(ctx context.Context, bearer, id string) error
	CheckDoctorBookable(ctx context.Context, bearer, id string) error
	DisplayPatient(ctx context.Context, bearer, id string) directory.PatientRef
	DisplayDoctor(ctx context.Context, bearer, id string) directory.DoctorRef
}

// Config carries the clinic's scheduling parameters. Zero values fall back
// to the standard workday.
type Config struct {
	WorkdayStart       string // "09:00"
	WorkdayEnd         string // "17:00"
	SlotStepMinutes    int
	MaxDurationMinutes int
}

const minDurationMinutes = 15

func (c Config) withDefaults() Config {
	if c.WorkdayStart == "" {
		c.WorkdayStart = "09:00"
	}
	if c.WorkdayEnd == "" {
		c.WorkdayEnd = "17:00"
	}
	if c.SlotStepMinutes <= 0 {
		c.SlotStepMinutes = 30
	}
	if c.MaxDurationMinutes <= 0 {
		c.MaxDurationMinutes = 480
	}
	return c
}

type AppointmentHandler struct {
	store     Store
	directory Directory
	logger    *slog.Logger
	cfg       Config
}

func NewAppointmentHandler(store Store, dir Directory, logger *slog.Logger, cfg Config) *AppointmentHandler {
	return &AppointmentHandler{store: store, directory: dir, logger: logger, cfg: cfg.withDefaults()}
}

// Register wires the handler's routes onto mux.
func (h *AppointmentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/appointments", h.List)
	mux.HandleFunc("POST /api/v1/appointments", h.Create)
	mux.HandleFunc("GET /api/v1/appointments/available-slots", h.AvailableSlots)
	mux.HandleFunc("GET /api/v1/appointments/doctor/{doctorId}", h.ListByDoctor)
	mux.HandleFunc("GET /api/v1/appointments/patient/{patientId}", h.ListByPatient)
	mux.HandleFunc("GET /api/v1/appointments/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/appointments/{id}", h.Update)
	mux.HandleFunc("PUT /api/v1/appointments/{id}/cancel", h.Cancel)
	mux.HandleFunc("DELETE /api/v1/appointments/{id}", h.Delete)
}

type createAppointmentRequest struct {
	PatientID       string `json:"patientId"`
	DoctorID        string `json:"doctorId"`
	AppointmentDate string `json:"appointmentDate"`
	Duration        int    `json:"duration"`
}

type updateAppointmentRequest struct {
	AppointmentDate *string `json:"appointmentDate"`
	Duration        *int    `json:"duration"`
	Status          *string `json:"status"`
}

type appointmentView struct {
	ID                   string `json:"id"`
	PatientID            string `json:"patientId"`
	PatientName          string `json:"patientName"`
	DoctorID             string `json:"doctorId"`
	DoctorName           string `json:"doctorName"`
	DoctorSpecialization string `json:"doctorSpecialization"`
	AppointmentDate      string `json:"appointmentDate"`
	Duration             int    `json:"duration"`
	Status               string `json:"status"`
	CreatedAt            string `json:"createdAt"`
	UpdatedAt            string `json:"updatedAt"`
}

type availableSlotsResponse struct {
	DoctorID       string   `json:"doctorId"`
	Date           string   `json:"date"`
	Duration       int      `json:"duration"`
	AvailableSlots []string `json:"availableSlots"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.PatientID = strings.TrimSpace(req.PatientID)
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	if req.PatientID == "" || req.DoctorID == "" {
		http.Error(w, "patientId and doctorId are required", http.StatusBadRequest)
		return
	}
	if req.Duration < minDurationMinutes || req.Duration > h.cfg.MaxDurationMinutes {
		http.Error(w, "duration out of bounds", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.AppointmentDate)
	if err != nil {
		http.Error(w, "invalid appointmentDate", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	bearer := bearerToken(r)

	// References are verified before anything is persisted. A directory
	// outage blocks the write; it does not produce an unverified booking.
	if err := h.directory.CheckPatientExists(ctx, bearer, req.PatientID); err != nil {
		h.writeDirectoryError(w, r, "patient", req.PatientID, err)
		return
	}
	if err := h.directory.CheckDoctorBookable(ctx, bearer, req.DoctorID); err != nil {
		h.writeDirectoryError(w, r, "doctor", req.DoctorID, err)
		return
	}

	created, err := h.store.CreateScheduled(ctx, model.Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		AppointmentDate: start.UTC(),
		Duration:        req.Duration,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			http.Error(w, "doctor already booked for this time", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "appointment create failed", "err", err)
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	h.writeView(w, r, created, http.StatusCreated)
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	h.writeView(w, r, appt, http.StatusOK)
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	appts, err := h.store.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	h.writeViews(w, r, appts)
}

func (h *AppointmentHandler) ListByDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID := r.PathValue("doctorId")

	var day *time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = &d
	}

	appts, err := h.store.ListByDoctor(r.Context(), doctorID, day)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	h.writeViews(w, r, appts)
}

func (h *AppointmentHandler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	appts, err := h.store.ListByPatient(r.Context(), r.PathValue("patientId"))
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	h.writeViews(w, r, appts)
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	var newDate *time.Time
	if req.AppointmentDate != nil {
		t, err := time.Parse(time.RFC3339, *req.AppointmentDate)
		if err != nil {
			http.Error(w, "invalid appointmentDate", http.StatusBadRequest)
			return
		}
		utc := t.UTC()
		newDate = &utc
	}
	if req.Duration != nil && (*req.Duration < minDurationMinutes || *req.Duration > h.cfg.MaxDurationMinutes) {
		http.Error(w, "duration out of bounds", http.StatusBadRequest)
		return
	}
	var newStatus *model.Status
	if req.Status != nil {
		st, err := model.ParseStatus(*req.Status)
		if err != nil {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		newStatus = &st
	}
	if newDate == nil && req.Duration == nil && newStatus == nil {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}

	updated, err := h.store.Reschedule(r.Context(), r.PathValue("id"), newDate, req.Duration, newStatus)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrConflict):
			http.Error(w, "doctor already booked for this time", http.StatusConflict)
		case errors.Is(err, storage.ErrInvalidTransition):
			http.Error(w, "appointment cannot be updated in its current status", http.StatusBadRequest)
		default:
			h.logger.ErrorContext(r.Context(), "appointment update failed", "err", err)
			http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		}
		return
	}
	h.writeView(w, r, updated, http.StatusOK)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.store.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "appointment cancel failed", "err", err)
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}
	h.writeView(w, r, cancelled, http.StatusOK)
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.store.SoftDelete(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "appointment delete failed", "err", err)
		http.Error(w, "failed to delete appointment", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AppointmentHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	doctorID := strings.TrimSpace(r.URL.Query().Get("doctorId"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if doctorID == "" || dateStr == "" {
		http.Error(w, "doctorId and date are required", http.StatusBadRequest)
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	duration := 30
	if raw := strings.TrimSpace(r.URL.Query().Get("duration")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minDurationMinutes || n > h.cfg.MaxDurationMinutes {
			http.Error(w, "duration out of bounds", http.StatusBadRequest)
			return
		}
		duration = n
	}

	dayStart, dayEnd, err := h.workday(day)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "bad workday config", "err", err)
		http.Error(w, "scheduling misconfigured", http.StatusInternalServerError)
		return
	}

	busy, err := h.store.ListBlockingIntervals(r.Context(), doctorID, dayStart, dayEnd)
	if err != nil {
		http.Error(w, "failed to load doctor calendar", http.StatusInternalServerError)
		return
	}

	starts := schedule.AvailableSlots(dayStart, dayEnd,
		time.Duration(duration)*time.Minute,
		time.Duration(h.cfg.SlotStepMinutes)*time.Minute,
		busy)

	resp := availableSlotsResponse{
		DoctorID:       doctorID,
		Date:           dateStr,
		Duration:       duration,
		AvailableSlots: make([]string, 0, len(starts)),
	}
	for _, s := range starts {
		resp.AvailableSlots = append(resp.AvailableSlots, s.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AppointmentHandler) workday(day time.Time) (time.Time, time.Time, error) {
	startClock, err := time.Parse("15:04", h.cfg.WorkdayStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endClock, err := time.Parse("15:04", h.cfg.WorkdayEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), startClock.Hour(), startClock.Minute(), 0, 0, time.UTC)
	end := time.Date(day.Year(), day.Month(), day.Day(), endClock.Hour(), endClock.Minute(), 0, 0, time.UTC)
	return start, end, nil
}

func (h *AppointmentHandler) view(ctx context.Context, bearer string, appt model.Appointment) appointmentView {
	patient := h.directory.DisplayPatient(ctx, bearer, appt.PatientID)
	doctor := h.directory.DisplayDoctor(ctx, bearer, appt.DoctorID)
	return appointmentView{
		ID:                   appt.ID,
		PatientID:            appt.PatientID,
		PatientName:          patient.DisplayName,
		DoctorID:             appt.DoctorID,
		DoctorName:           doctor.DisplayName,
		DoctorSpecialization: doctor.Specialization,
		AppointmentDate:      appt.AppointmentDate.UTC().Format(time.RFC3339),
		Duration:             appt.Duration,
		Status:               appt.Status.String(),
		CreatedAt:            appt.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            appt.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *AppointmentHandler) writeView(w http.ResponseWriter, r *http.Request, appt model.Appointment, status int) {
	writeJSON(w, status, h.view(r.Context(), bearerToken(r), appt))
}

func (h *AppointmentHandler) writeViews(w http.ResponseWriter, r *http.Request, appts []model.Appointment) {
	bearer := bearerToken(r)
	views := make([]appointmentView, 0, len(appts))
	for _, appt := range appts {
		views = append(views, h.view(r.Context(), bearer, appt))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *AppointmentHandler) writeDirectoryError(w http.ResponseWriter, r *http.Request, kind, id string, err error) {
	if errors.Is(err, directory.ErrUnknownIdentity) {
		http.Error(w, "unknown "+kind+" id", http.StatusBadRequest)
		return
	}
	h.logger.ErrorContext(r.Context(), "directory check failed", "kind", kind, "id", id, "err", err)
	http.Error(w, kind+" directory unavailable", http.StatusServiceUnavailable)
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return token
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
