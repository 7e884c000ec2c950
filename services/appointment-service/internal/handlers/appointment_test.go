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

	"github.com/asif-mahmud/medisched/services/appointment-service/internal/directory"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/model"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/schedule"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/storage"
)

// fakeStore reproduces the repository's transactional semantics in memory:
// the conflict check and the insert happen under one lock, so concurrent
// creates race the same way they do against the database.
type fakeStore struct {
	mu    sync.Mutex
	seq   int
	appts map[string]model.Appointment
}

func newFakeStore() *fakeStore {
	return &fakeStore{appts: make(map[string]model.Appointment)}
}

func (s *fakeStore) blockingLocked(doctorID, excludeID string) []schedule.Interval {
	var busy []schedule.Interval
	for _, a := range s.appts {
		if a.DoctorID == doctorID && a.ID != excludeID && a.Blocks() {
			busy = append(busy, a.Interval())
		}
	}
	return busy
}

func (s *fakeStore) CreateScheduled(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt.Status = model.StatusScheduled
	if schedule.ConflictsAny(appt.Interval(), s.blockingLocked(appt.DoctorID, "")) {
		return model.Appointment{}, storage.ErrConflict
	}
	s.seq++
	appt.ID = fmt.Sprintf("appt-%d", s.seq)
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	s.appts[appt.ID] = appt
	return appt, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || a.IsDeleted {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *fakeStore) List(_ context.Context, _ int) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if !a.IsDeleted {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) ListByDoctor(_ context.Context, doctorID string, day *time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.IsDeleted || a.DoctorID != doctorID {
			continue
		}
		if day != nil {
			y, m, d := a.AppointmentDate.UTC().Date()
			if y != day.Year() || m != day.Month() || d != day.Day() {
				continue
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeStore) ListByPatient(_ context.Context, patientID string) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if !a.IsDeleted && a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) Reschedule(_ context.Context, id string, newDate *time.Time, newDuration *int, newStatus *model.Status) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.appts[id]
	if !ok || current.IsDeleted {
		return model.Appointment{}, storage.ErrNotFound
	}
	next := current
	intervalChanged := false
	if newDate != nil {
		next.AppointmentDate = *newDate
		intervalChanged = true
	}
	if newDuration != nil {
		next.Duration = *newDuration
		intervalChanged = true
	}
	if intervalChanged {
		if current.Status != model.StatusScheduled {
			return model.Appointment{}, storage.ErrInvalidTransition
		}
		if schedule.ConflictsAny(next.Interval(), s.blockingLocked(next.DoctorID, id)) {
			return model.Appointment{}, storage.ErrConflict
		}
	}
	if newStatus != nil {
		if current.Status == model.StatusCancelled {
			return model.Appointment{}, storage.ErrInvalidTransition
		}
		next.Status = *newStatus
	}
	next.UpdatedAt = time.Now().UTC()
	s.appts[id] = next
	return next, nil
}

func (s *fakeStore) Cancel(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || a.IsDeleted || a.Status == model.StatusCancelled {
		return model.Appointment{}, storage.ErrNotFound
	}
	a.Status = model.StatusCancelled
	a.UpdatedAt = time.Now().UTC()
	s.appts[id] = a
	return a, nil
}

func (s *fakeStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || a.IsDeleted {
		return storage.ErrNotFound
	}
	a.IsDeleted = true
	s.appts[id] = a
	return nil
}

func (s *fakeStore) ListBlockingIntervals(_ context.Context, doctorID string, _, _ time.Time) ([]schedule.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockingLocked(doctorID, ""), nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.appts {
		if !a.IsDeleted {
			n++
		}
	}
	return n
}

// fakeDirectory knows a fixed set of patients and doctors.
type fakeDirectory struct {
	patients map[string]directory.PatientRef
	doctors  map[string]directory.DoctorRef
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		patients: map[string]directory.PatientRef{
			"pat-1": {ID: "pat-1", DisplayName: "Ayesha Siddiqua"},
		},
		doctors: map[string]directory.DoctorRef{
			"doc-1": {ID: "doc-1", DisplayName: "Dr. Rahman", Specialization: "Cardiology", Active: true},
			"doc-2": {ID: "doc-2", DisplayName: "Dr. Akter", Specialization: "Neurology", Active: true},
			"doc-off": {ID: "doc-off", DisplayName: "Dr. Khan", Specialization: "Dermatology", Active: false},
		},
	}
}

func (d *fakeDirectory) CheckPatientExists(_ context.Context, _ string, id string) error {
	if _, ok := d.patients[id]; !ok {
		return directory.ErrUnknownIdentity
	}
	return nil
}

func (d *fakeDirectory) CheckDoctorBookable(_ context.Context, _ string, id string) error {
	ref, ok := d.doctors[id]
	if !ok || !ref.Active {
		return directory.ErrUnknownIdentity
	}
	return nil
}

func (d *fakeDirectory) DisplayPatient(_ context.Context, _ string, id string) directory.PatientRef {
	if ref, ok := d.patients[id]; ok {
		return ref
	}
	return directory.PatientRef{ID: id, DisplayName: directory.UnknownDisplayName}
}

func (d *fakeDirectory) DisplayDoctor(_ context.Context, _ string, id string) directory.DoctorRef {
	if ref, ok := d.doctors[id]; ok {
		return ref
	}
	return directory.DoctorRef{ID: id, DisplayName: directory.UnknownDisplayName}
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	h := NewAppointmentHandler(store, newFakeDirectory(), slog.New(slog.DiscardHandler), Config{})
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func createBody(doctorID, start string, duration int) map[string]any {
	return map[string]any{
		"patientId":       "pat-1",
		"doctorId":        doctorID,
		"appointmentDate": start,
		"duration":        duration,
	}
}

func TestCreateAppointmentEnrichedView(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:00:00Z", 30))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var view struct {
		ID                   string `json:"id"`
		PatientName          string `json:"patientName"`
		DoctorName           string `json:"doctorName"`
		DoctorSpecialization string `json:"doctorSpecialization"`
		Status               string `json:"status"`
	}
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.ID == "" || view.PatientName != "Ayesha Siddiqua" || view.DoctorName != "Dr. Rahman" || view.DoctorSpecialization != "Cardiology" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Status != "Scheduled" {
		t.Fatalf("expected Scheduled, got %q", view.Status)
	}
}

func TestCreateRejectsExactAndAllowsBackToBack(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:00:00Z", 30))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed create: got %d", resp.StatusCode)
	}

	// Same doctor, identical interval: conflict.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:00:00Z", 30))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.StatusCode, body)
	}

	// Back-to-back at 10:30 is allowed.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:30:00Z", 30))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("back-to-back should succeed, got %d: %s", resp.StatusCode, body)
	}

	// Other doctor, same time: no conflict.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-2", "2026-09-07T10:00:00Z", 30))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("other doctor should succeed, got %d", resp.StatusCode)
	}
}

func TestCreatePartialOverlapConflicts(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:00:00Z", 45))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed create: got %d", resp.StatusCode)
	}

	// 10:20-10:50 overlaps 10:00-10:45.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:20:00Z", 30))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.StatusCode, body)
	}
}

func TestCreateUnknownDoctorPersistsNothing(t *testing.T) {
	srv, store := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-999", "2026-09-07T10:00:00Z", 30))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
	if store.count() != 0 {
		t.Fatalf("nothing should be persisted, have %d", store.count())
	}

	// Inactive doctor is treated the same as unknown.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-off", "2026-09-07T10:00:00Z", 30))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("inactive doctor: expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	for name, body := range map[string]map[string]any{
		"missing patient": {"doctorId": "doc-1", "appointmentDate": "2026-09-07T10:00:00Z", "duration": 30},
		"duration low":    createBody("doc-1", "2026-09-07T10:00:00Z", 10),
		"duration high":   createBody("doc-1", "2026-09-07T10:00:00Z", 481),
		"duration zero":   createBody("doc-1", "2026-09-07T10:00:00Z", 0),
		"bad date":        createBody("doc-1", "not-a-date", 30),
	} {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, resp.StatusCode)
		}
	}
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	srv, store := newTestServer(t)

	const racers = 2
	codes := make(chan int, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(createBody("doc-1", "2026-09-07T11:00:00Z", 30))
			resp, err := http.Post(srv.URL+"/api/v1/appointments", "application/json", bytes.NewReader(body))
			if err != nil {
				codes <- 0
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	created, conflicted := 0, 0
	for code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicted++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	if created != 1 || conflicted != 1 {
		t.Fatalf("expected exactly one winner, got created=%d conflicted=%d", created, conflicted)
	}
	if store.count() != 1 {
		t.Fatalf("expected one persisted appointment, got %d", store.count())
	}
}

func TestUpdateRescheduleSelfExcluded(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:00:00Z", 30))
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &created)

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T11:00:00Z", 30))

	// Extending inside its own interval is fine: the appointment does not
	// conflict with itself.
	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/v1/appointments/"+created.ID,
		map[string]any{"duration": 45})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("self-overlapping reschedule should succeed, got %d: %s", resp.StatusCode, body)
	}

	// Moving onto the other appointment conflicts and leaves the original
	// interval untouched.
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/appointments/"+created.ID,
		map[string]any{"appointmentDate": "2026-09-07T11:00:00Z"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	_, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/appointments/"+created.ID, nil)
	var after struct {
		AppointmentDate string `json:"appointmentDate"`
		Duration        int    `json:"duration"`
	}
	_ = json.Unmarshal(body, &after)
	if after.AppointmentDate != "2026-09-07T10:00:00Z" || after.Duration != 45 {
		t.Fatalf("rejected reschedule must not change the interval: %+v", after)
	}
}

func TestUpdateStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:00:00Z", 30))
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &created)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/v1/appointments/"+created.ID,
		map[string]any{"status": "Completed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/appointments/"+created.ID,
		map[string]any{"status": "definitely-not-a-status"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/appointments/missing",
		map[string]any{"status": "Completed"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing id: expected 404, got %d", resp.StatusCode)
	}
}

func TestCancelFreesSlotAndIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:00:00Z", 30))
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &created)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/v1/appointments/"+created.ID+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var cancelled struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(body, &cancelled)
	if cancelled.Status != "Cancelled" {
		t.Fatalf("expected Cancelled, got %q", cancelled.Status)
	}

	// Second cancel reports not found.
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/appointments/"+created.ID+"/cancel", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second cancel: expected 404, got %d", resp.StatusCode)
	}

	// The cancelled interval no longer blocks new bookings.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:00:00Z", 30))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("rebooking freed slot: expected 201, got %d", resp.StatusCode)
	}
}

func TestDeleteHidesAppointment(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:00:00Z", 30))
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &created)

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/appointments/"+created.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/appointments/"+created.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted appointment should 404, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/appointments/"+created.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestAvailableSlotsEmptyCalendar(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet,
		srv.URL+"/api/v1/appointments/available-slots?doctorId=doc-2&date=2026-09-07&duration=30", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out struct {
		DoctorID       string   `json:"doctorId"`
		AvailableSlots []string `json:"availableSlots"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.AvailableSlots) != 16 {
		t.Fatalf("expected 16 slots for an empty 09:00-17:00 day, got %d", len(out.AvailableSlots))
	}
	if out.AvailableSlots[0] != "2026-09-07T09:00:00Z" || out.AvailableSlots[15] != "2026-09-07T16:30:00Z" {
		t.Fatalf("unexpected slot bounds: first=%s last=%s", out.AvailableSlots[0], out.AvailableSlots[15])
	}
}

func TestAvailableSlotsSkipsBookedWindow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments",
		createBody("doc-1", "2026-09-07T10:00:00Z", 60))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed create: got %d", resp.StatusCode)
	}

	_, body := doJSON(t, http.MethodGet,
		srv.URL+"/api/v1/appointments/available-slots?doctorId=doc-1&date=2026-09-07&duration=30", nil)
	var out struct {
		AvailableSlots []string `json:"availableSlots"`
	}
	_ = json.Unmarshal(body, &out)
	for _, s := range out.AvailableSlots {
		if s == "2026-09-07T10:00:00Z" || s == "2026-09-07T10:30:00Z" {
			t.Fatalf("booked window offered as free: %s", s)
		}
	}
	if len(out.AvailableSlots) != 14 {
		t.Fatalf("expected 14 slots with one hour booked, got %d", len(out.AvailableSlots))
	}
}

func TestGetNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/appointments/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
