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

	"github.com/asif-mahmud/medisched/services/patient-service/internal/storage"
)

type Store interface {
	Create(ctx context.Context, p storage.Patient) (storage.Patient, error)
	Get(ctx context.Context, id string) (storage.Patient, error)
	List(ctx context.Context, limit int) ([]storage.Patient, error)
	Update(ctx context.Context, p storage.Patient) (storage.Patient, error)
	SoftDelete(ctx context.Context, id string) error
}

type PatientHandler struct {
	store  Store
	logger *slog.Logger
}

func NewPatientHandler(store Store, logger *slog.Logger) *PatientHandler {
	return &PatientHandler{store: store, logger: logger}
}

func (h *PatientHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/patients", h.Create)
	mux.HandleFunc("GET /api/v1/patients", h.List)
	mux.HandleFunc("GET /api/v1/patients/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/patients/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/patients/{id}", h.Delete)
}

type patientRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
}

type patientView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Gender      string `json:"gender"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func viewOf(p storage.Patient) patientView {
	v := patientView{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		Address:   p.Address,
		Gender:    p.Gender,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if p.DateOfBirth != nil {
		v.DateOfBirth = p.DateOfBirth.UTC().Format("2006-01-02")
	}
	return v
}

func parseDateOfBirth(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req patientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		http.Error(w, "invalid dateOfBirth, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	created, err := h.store.Create(r.Context(), storage.Patient{
		Name:        req.Name,
		Email:       strings.TrimSpace(req.Email),
		Phone:       strings.TrimSpace(req.Phone),
		Address:     strings.TrimSpace(req.Address),
		DateOfBirth: dob,
		Gender:      strings.TrimSpace(req.Gender),
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "patient create failed", "err", err)
		http.Error(w, "failed to create patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(created))
}

func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	patients, err := h.store.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list patients", http.StatusInternalServerError)
		return
	}
	views := make([]patientView, 0, len(patients))
	for _, p := range patients {
		views = append(views, viewOf(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *PatientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load patient", http.StatusInternalServerError)
		return
	}

	var req patientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		current.Name = name
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		current.Email = email
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		current.Phone = phone
	}
	if addr := strings.TrimSpace(req.Address); addr != "" {
		current.Address = addr
	}
	if gender := strings.TrimSpace(req.Gender); gender != "" {
		current.Gender = gender
	}
	if req.DateOfBirth != "" {
		dob, err := parseDateOfBirth(req.DateOfBirth)
		if err != nil {
			http.Error(w, "invalid dateOfBirth, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		current.DateOfBirth = dob
	}

	updated, err := h.store.Update(r.Context(), current)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "patient update failed", "err", err)
		http.Error(w, "failed to update patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(updated))
}

func (h *PatientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SoftDelete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "patient delete failed", "err", err)
		http.Error(w, "failed to delete patient", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
