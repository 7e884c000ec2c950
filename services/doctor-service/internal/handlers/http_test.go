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

	"github.com/asif-mahmud/medisched/services/doctor-service/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	seq     int
	doctors map[string]storage.Doctor
	deleted map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{doctors: make(map[string]storage.Doctor), deleted: make(map[string]bool)}
}

func (s *fakeStore) Create(_ context.Context, d storage.Doctor) (storage.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	d.ID = fmt.Sprintf("doc-%d", s.seq)
	d.CreatedAt = time.Now().UTC()
	d.UpdatedAt = d.CreatedAt
	s.doctors[d.ID] = d
	return d, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (storage.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doctors[id]
	if !ok || s.deleted[id] {
		return storage.Doctor{}, storage.ErrNotFound
	}
	return d, nil
}

func (s *fakeStore) List(_ context.Context, _ int) ([]storage.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Doctor
	for id, d := range s.doctors {
		if !s.deleted[id] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, d storage.Doctor) (storage.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[d.ID]; !ok || s.deleted[d.ID] {
		return storage.Doctor{}, storage.ErrNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	s.doctors[d.ID] = d
	return d, nil
}

func (s *fakeStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[id]; !ok || s.deleted[id] {
		return storage.ErrNotFound
	}
	s.deleted[id] = true
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := NewDoctorHandler(newFakeStore(), slog.New(slog.DiscardHandler))
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postDoctor(t *testing.T, srv *httptest.Server, body map[string]any) doctorView {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL+"/api/v1/doctors", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post doctor: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var view doctorView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return view
}

func TestCreateAndGetDoctor(t *testing.T) {
	srv := newTestServer(t)

	created := postDoctor(t, srv, map[string]any{"name": "Dr. Rahman", "specialization": "Cardiology"})
	if created.ID == "" || !created.Active {
		t.Fatalf("unexpected view: %+v", created)
	}

	resp, err := http.Get(srv.URL + "/api/v1/doctors/" + created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got doctorView
	_ = json.NewDecoder(resp.Body).Decode(&got)
	if got.Name != "Dr. Rahman" || got.Specialization != "Cardiology" {
		t.Fatalf("unexpected doctor: %+v", got)
	}
}

func TestCreateDoctorValidation(t *testing.T) {
	srv := newTestServer(t)
	raw, _ := json.Marshal(map[string]any{"name": "  "})
	resp, err := http.Post(srv.URL+"/api/v1/doctors", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDeleteHidesDoctor(t *testing.T) {
	srv := newTestServer(t)
	created := postDoctor(t, srv, map[string]any{"name": "Dr. Khan", "specialization": "Dermatology"})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/doctors/"+created.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/doctors/" + created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted doctor should 404, got %d", resp.StatusCode)
	}
}

func TestUpdateDoctorDeactivates(t *testing.T) {
	srv := newTestServer(t)
	created := postDoctor(t, srv, map[string]any{"name": "Dr. Akter", "specialization": "Neurology"})

	raw, _ := json.Marshal(map[string]any{"active": false})
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/doctors/"+created.ID, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var updated doctorView
	_ = json.NewDecoder(resp.Body).Decode(&updated)
	if updated.Active {
		t.Fatalf("doctor should be inactive: %+v", updated)
	}
	if updated.Name != "Dr. Akter" {
		t.Fatalf("partial update must keep other fields: %+v", updated)
	}
}
