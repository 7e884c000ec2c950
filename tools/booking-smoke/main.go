// booking-smoke drives a full scheduling round trip through the gateway:
// register a staff account, create a doctor and a patient, list the free
// slots, book one, then cancel it. Useful as a local end-to-end check after
// docker compose up.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	var (
		baseURL  = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "gateway base url")
		email    = flag.String("email", getenv("SMOKE_EMAIL", fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())), "account email")
		password = flag.String("password", getenv("SMOKE_PASSWORD", "smoke-pass-123"), "account password")
		date     = flag.String("date", time.Now().AddDate(0, 0, 1).Format("2006-01-02"), "appointment day (YYYY-MM-DD)")
		duration = flag.Int("duration", 30, "appointment duration in minutes")
	)
	flag.Parse()

	base := strings.TrimRight(*baseURL, "/")

	var tokens struct {
		AccessToken string `json:"accessToken"`
	}
	call(http.MethodPost, base+"/api/v1/auth/register", "", map[string]any{
		"name": "Smoke Admin", "email": *email, "password": *password, "role": "admin",
	}, &tokens)
	if tokens.AccessToken == "" {
		fatal("register did not return an access token")
	}
	fmt.Println("registered admin account")

	var doctor struct {
		ID string `json:"id"`
	}
	call(http.MethodPost, base+"/api/v1/doctors", tokens.AccessToken, map[string]any{
		"name": "Dr. Smoke", "specialization": "General Medicine",
	}, &doctor)
	fmt.Printf("created doctor %s\n", doctor.ID)

	var patient struct {
		ID string `json:"id"`
	}
	call(http.MethodPost, base+"/api/v1/patients", tokens.AccessToken, map[string]any{
		"name": "Smoke Patient",
	}, &patient)
	fmt.Printf("created patient %s\n", patient.ID)

	var slots struct {
		AvailableSlots []string `json:"availableSlots"`
	}
	call(http.MethodGet, fmt.Sprintf("%s/api/v1/appointments/available-slots?doctorId=%s&date=%s&duration=%d",
		base, doctor.ID, *date, *duration), tokens.AccessToken, nil, &slots)
	if len(slots.AvailableSlots) == 0 {
		fatal("no available slots returned")
	}
	fmt.Printf("%d slots free, booking %s\n", len(slots.AvailableSlots), slots.AvailableSlots[0])

	var appt struct {
		ID string `json:"id"`
	}
	call(http.MethodPost, base+"/api/v1/appointments", tokens.AccessToken, map[string]any{
		"patientId":       patient.ID,
		"doctorId":        doctor.ID,
		"appointmentDate": slots.AvailableSlots[0],
		"duration":        *duration,
	}, &appt)
	fmt.Printf("booked appointment %s\n", appt.ID)

	call(http.MethodPut, base+"/api/v1/appointments/"+appt.ID+"/cancel", tokens.AccessToken, nil, nil)
	fmt.Println("cancelled appointment, smoke test passed")
}

func call(method, url, token string, body any, out any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			fatal(err.Error())
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		fatal(err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		fatal(fmt.Sprintf("%s %s: status=%d body=%s", method, url, resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fatal(fmt.Sprintf("%s %s: decode response: %v", method, url, err))
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
