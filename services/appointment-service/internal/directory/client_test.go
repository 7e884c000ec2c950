package directory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientResolveDoctor(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/v1/doctors/doc-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"doc-1","name":"Dr. Rahman","specialization":"Cardiology","active":true}`))
		case "/api/v1/doctors/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, time.Second)

	ref, err := c.ResolveDoctor(context.Background(), "tok-123", "doc-1")
	if err != nil {
		t.Fatalf("ResolveDoctor: %v", err)
	}
	if ref.DisplayName != "Dr. Rahman" || ref.Specialization != "Cardiology" || !ref.Active {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("expected bearer forwarded, got %q", gotAuth)
	}

	if _, err := c.ResolveDoctor(context.Background(), "tok-123", "missing"); !errors.Is(err, ErrUnknownIdentity) {
		t.Fatalf("expected ErrUnknownIdentity, got %v", err)
	}
	if _, err := c.ResolveDoctor(context.Background(), "tok-123", "boom"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientResolvePatientUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	srv.Close() // closed server: connection refused

	c := NewClient(srv.URL, srv.URL, time.Second)
	if _, err := c.ResolvePatient(context.Background(), "", "p1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

type fakeDoctorSource struct {
	ref DoctorRef
	err error
}

func (f fakeDoctorSource) ResolveDoctor(context.Context, string, string) (DoctorRef, error) {
	return f.ref, f.err
}

type fakePatientSource struct {
	ref PatientRef
	err error
}

func (f fakePatientSource) ResolvePatient(context.Context, string, string) (PatientRef, error) {
	return f.ref, f.err
}

type fakeCache struct {
	ref DoctorRef
	ok  bool
}

func (f fakeCache) GetDoctor(context.Context, string) (DoctorRef, bool, error) {
	return f.ref, f.ok, nil
}

func TestCheckDoctorBookable(t *testing.T) {
	log := slog.New(slog.DiscardHandler)

	r := NewResolver(nil, fakeDoctorSource{ref: DoctorRef{ID: "d1", Active: true}}, nil, log)
	if err := r.CheckDoctorBookable(context.Background(), "", "d1"); err != nil {
		t.Fatalf("active doctor should be bookable: %v", err)
	}

	r = NewResolver(nil, fakeDoctorSource{ref: DoctorRef{ID: "d1", Active: false}}, nil, log)
	if err := r.CheckDoctorBookable(context.Background(), "", "d1"); !errors.Is(err, ErrUnknownIdentity) {
		t.Fatalf("inactive doctor should be unknown, got %v", err)
	}

	r = NewResolver(nil, fakeDoctorSource{err: ErrUnavailable}, nil, log)
	if err := r.CheckDoctorBookable(context.Background(), "", "d1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("directory outage should block booking, got %v", err)
	}
}

func TestDisplayDoctorDegrades(t *testing.T) {
	log := slog.New(slog.DiscardHandler)

	// Live directory down, replica warm: serve from replica.
	r := NewResolver(nil, fakeDoctorSource{err: ErrUnavailable},
		fakeCache{ref: DoctorRef{ID: "d1", DisplayName: "Dr. Akter", Specialization: "Neurology"}, ok: true}, log)
	ref := r.DisplayDoctor(context.Background(), "", "d1")
	if ref.DisplayName != "Dr. Akter" {
		t.Fatalf("expected replica hit, got %+v", ref)
	}

	// Live directory down, replica cold: degrade to Unknown.
	r = NewResolver(nil, fakeDoctorSource{err: ErrUnavailable}, fakeCache{}, log)
	ref = r.DisplayDoctor(context.Background(), "", "d1")
	if ref.DisplayName != UnknownDisplayName || ref.ID != "d1" {
		t.Fatalf("expected Unknown fallback, got %+v", ref)
	}

	// Authoritative 404 does not consult the replica.
	r = NewResolver(nil, fakeDoctorSource{err: ErrUnknownIdentity},
		fakeCache{ref: DoctorRef{DisplayName: "stale"}, ok: true}, log)
	ref = r.DisplayDoctor(context.Background(), "", "d1")
	if ref.DisplayName != UnknownDisplayName {
		t.Fatalf("expected Unknown for authoritative miss, got %+v", ref)
	}
}

func TestDisplayPatientDegrades(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	r := NewResolver(fakePatientSource{err: ErrUnavailable}, nil, nil, log)
	ref := r.DisplayPatient(context.Background(), "", "p1")
	if ref.DisplayName != UnknownDisplayName || ref.ID != "p1" {
		t.Fatalf("expected Unknown fallback, got %+v", ref)
	}
}
