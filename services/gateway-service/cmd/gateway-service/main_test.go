package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asif-mahmud/medisched/libs/auth"
)

func TestRequireRole(t *testing.T) {
	h := requireRole(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), auth.RoleAdmin, auth.RoleReceptionist)

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("X-Role", auth.RolePatient)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}

	reqOK := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqOK.Header.Set("X-Role", auth.RoleReceptionist)
	rwOK := httptest.NewRecorder()
	h.ServeHTTP(rwOK, reqOK)
	if rwOK.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rwOK.Code)
	}
}

func TestRequireAuthHS256(t *testing.T) {
	secret := "test-secret"
	claims := auth.Claims{
		Sub:  "user-1",
		Name: "Dr. Rahman",
		Role: auth.RoleDoctor,
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(1 * time.Hour).Unix(),
	}
	token, err := auth.SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	h := requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-Id") != claims.Sub {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("X-User-Name") != claims.Name {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("X-Role") != claims.Role {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), secret, nil)

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	reqBad := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqBad.Header.Set("Authorization", "Bearer badtoken")
	rwBad := httptest.NewRecorder()
	h.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rwBad.Code)
	}
}

func TestRouteRoleTable(t *testing.T) {
	secret := "test-secret"
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Role", r.Header.Get("X-Role"))
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	t.Setenv("AUTH_URL", backend.URL)
	t.Setenv("PATIENT_URL", backend.URL)
	t.Setenv("DOCTOR_URL", backend.URL)
	t.Setenv("APPOINTMENT_URL", backend.URL)

	mux := http.NewServeMux()
	registerRoutes(mux, secret, "", 0)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokenFor := func(role string) string {
		token, err := auth.SignHS256(auth.Claims{
			Sub:  "user-" + role,
			Name: "User " + role,
			Role: role,
			Iat:  time.Now().Unix(),
			Exp:  time.Now().Add(time.Hour).Unix(),
		}, secret)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return token
	}

	cases := []struct {
		name   string
		method string
		path   string
		role   string // empty means no token
		want   int
	}{
		{"auth open", http.MethodPost, "/api/v1/auth/login", "", http.StatusOK},
		{"jwks open", http.MethodGet, "/.well-known/jwks.json", "", http.StatusOK},
		{"appointments read needs token", http.MethodGet, "/api/v1/appointments", "", http.StatusUnauthorized},
		{"doctor reads appointments", http.MethodGet, "/api/v1/appointments/doctor/doc-1", auth.RoleDoctor, http.StatusOK},
		{"patient books", http.MethodPost, "/api/v1/appointments", auth.RolePatient, http.StatusOK},
		{"patient cancels", http.MethodPut, "/api/v1/appointments/a1/cancel", auth.RolePatient, http.StatusOK},
		{"patient cannot reschedule", http.MethodPut, "/api/v1/appointments/a1", auth.RolePatient, http.StatusForbidden},
		{"receptionist reschedules", http.MethodPut, "/api/v1/appointments/a1", auth.RoleReceptionist, http.StatusOK},
		{"receptionist cannot delete", http.MethodDelete, "/api/v1/appointments/a1", auth.RoleReceptionist, http.StatusForbidden},
		{"admin deletes", http.MethodDelete, "/api/v1/appointments/a1", auth.RoleAdmin, http.StatusOK},
		{"doctor cannot book", http.MethodPost, "/api/v1/appointments", auth.RoleDoctor, http.StatusForbidden},
		{"patient cannot create patients", http.MethodPost, "/api/v1/patients", auth.RolePatient, http.StatusForbidden},
		{"receptionist creates patients", http.MethodPost, "/api/v1/patients", auth.RoleReceptionist, http.StatusOK},
		{"patient reads doctors", http.MethodGet, "/api/v1/doctors", auth.RolePatient, http.StatusOK},
		{"patient cannot update doctors", http.MethodPut, "/api/v1/doctors/d1", auth.RolePatient, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, nil)
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			if tc.role != "" {
				req.Header.Set("Authorization", "Bearer "+tokenFor(tc.role))
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("%s %s as %q: status = %d, want %d", tc.method, tc.path, tc.role, resp.StatusCode, tc.want)
			}
		})
	}
}
