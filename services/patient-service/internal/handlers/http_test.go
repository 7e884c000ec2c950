package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/asif-mahmud/medisched/services/patient-service/internal/storage"
)

type fakeStore struct {
	mu       sync.Mutex
	seq      int
	patients map[string]storage.Patient
	deleted  map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{patients: make(map[string]storage.Patient), deleted: make(map[string]bool)}
}

func (s *fakeStore) Create(_ context.Context, p storage.Patient) (storage.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	p.ID = fmt.Sprintf("pat-%d", s.seq)
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	s.patients[p.ID] = p
	return p, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (storage.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok || s.deleted[id] {
		return storage.Patient{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) List(_ context.Context, _ int) ([]storage.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Patient
	for id, p := range s.patients {
		if !s.deleted[id] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, p storage.Patient) (storage.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[p.ID]; !ok || s.deleted[p.ID] {
		return storage.Patient{}, storage.ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	s.patients[p.ID] = p
	return p, nil
}

func (s *fakeStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[id]; !ok || s.deleted[id] {
		return storage.ErrNotFound
	}
	s.deleted[id] = true
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := NewPatientHandler(newFakeStore(), slog.New(slog.DiscardHandler))
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateAndGetPatient(t *testing.T) {
	srv := newTestServer(t)

	raw, _ := json.Marshal(map[string]any{
		"name":        "Ayesha Siddiqua",
		"email":       "ayesha@example.com",
		"dateOfBirth": "1990-04-12",
		"gender":      "female",
	})
	resp, err := http.Post(srv.URL+"/api/v1/patients", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created patientView
	_ = json.NewDecoder(resp.Body).Decode(&created)
	if created.ID == "" || created.DateOfBirth != "1990-04-12" {
		t.Fatalf("unexpected view: %+v", created)
	}

	getResp, err := http.Get(srv.URL + "/api/v1/patients/" + created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}
}

func TestCreatePatientValidation(t *testing.T) {
	srv := newTestServer(t)

	for name, body := range map[string]map[string]any{
		"missing name": {"email": "x@example.com"},
		"bad dob":      {"name": "X", "dateOfBirth": "12-04-1990"},
	} {
		raw, _ := json.Marshal(body)
		resp, err := http.Post(srv.URL+"/api/v1/patients", "application/json", bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("%s: post: %v", name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, resp.StatusCode)
		}
	}
}

func TestDeletePatientThenNotFound(t *testing.T) {
	srv := newTestServer(t)

	raw, _ := json.Marshal(map[string]any{"name": "Karim Uddin"})
	resp, _ := http.Post(srv.URL+"/api/v1/patients", "application/json", bytes.NewReader(raw))
	var created patientView
	_ = json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/patients/"+created.ID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", delResp.StatusCode)
	}

	getResp, _ := http.Get(srv.URL + "/api/v1/patients/" + created.ID)
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", getResp.StatusCode)
	}
}
