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

	"github.com/asif-mahmud/medisched/services/doctor-service/internal/storage"
)

// Store is implemented by storage.Repository; tests substitute a fake.
type Store interface {
	Create(ctx context.Context, d storage.Doctor) (storage.Doctor, error)
	Get(ctx context.Context, id string) (storage.Doctor, error)
	List(ctx context.Context, limit int) ([]storage.Doctor, error)
	Update(ctx context.Context, d storage.Doctor) (storage.Doctor, error)
	SoftDelete(ctx context.Context, id string) error
}

type DoctorHandler struct {
	store  Store
	logger *slog.Logger
}

func NewDoctorHandler(store Store, logger *slog.Logger) *DoctorHandler {
	return &DoctorHandler{store: store, logger: logger}
}

func (h *DoctorHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/doctors", h.Create)
	mux.HandleFunc("GET /api/v1/doctors", h.List)
	mux.HandleFunc("GET /api/v1/doctors/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/doctors/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/doctors/{id}", h.Delete)
}

type doctorRequest struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Active         *bool  `json:"active"`
}

type doctorView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Active         bool   `json:"active"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

func viewOf(d storage.Doctor) doctorView {
	return doctorView{
		ID:             d.ID,
		Name:           d.Name,
		Specialization: d.Specialization,
		Email:          d.Email,
		Phone:          d.Phone,
		Active:         d.Active,
		CreatedAt:      d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *DoctorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req doctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Specialization = strings.TrimSpace(req.Specialization)
	if req.Name == "" || req.Specialization == "" {
		http.Error(w, "name and specialization are required", http.StatusBadRequest)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	created, err := h.store.Create(r.Context(), storage.Doctor{
		Name:           req.Name,
		Specialization: req.Specialization,
		Email:          strings.TrimSpace(req.Email),
		Phone:          strings.TrimSpace(req.Phone),
		Active:         active,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "doctor create failed", "err", err)
		http.Error(w, "failed to create doctor", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(created))
}

func (h *DoctorHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load doctor", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(d))
}

func (h *DoctorHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	doctors, err := h.store.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list doctors", http.StatusInternalServerError)
		return
	}
	views := make([]doctorView, 0, len(doctors))
	for _, d := range doctors {
		views = append(views, viewOf(d))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *DoctorHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load doctor", http.StatusInternalServerError)
		return
	}

	var req doctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		current.Name = name
	}
	if spec := strings.TrimSpace(req.Specialization); spec != "" {
		current.Specialization = spec
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		current.Email = email
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		current.Phone = phone
	}
	if req.Active != nil {
		current.Active = *req.Active
	}

	updated, err := h.store.Update(r.Context(), current)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "doctor update failed", "err", err)
		http.Error(w, "failed to update doctor", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(updated))
}

func (h *DoctorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SoftDelete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "doctor delete failed", "err", err)
		http.Error(w, "failed to delete doctor", http.StatusInternalServerError)
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
