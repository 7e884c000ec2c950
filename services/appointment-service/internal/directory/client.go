package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrUnknownIdentity means the directory answered authoritatively that
	// the id does not exist (or the doctor is not bookable).
	ErrUnknownIdentity = errors.New("directory: unknown identity")
	// ErrUnavailable means the directory could not answer: transport failure,
	// timeout, or a 5xx. Callers decide whether that is fatal.
	ErrUnavailable = errors.New("directory: unavailable")
)

// PatientRef is the slice of a patient record the scheduler needs.
type PatientRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
}

// DoctorRef is the slice of a doctor record the scheduler needs.
type DoctorRef struct {
	ID             string `json:"id"`
	DisplayName    string `json:"name"`
	Specialization string `json:"specialization"`
	Active         bool   `json:"active"`
}

// Client resolves patient and doctor ids against the directory services over
// HTTP. The timeout is fixed at construction so a slow directory cannot stall
// appointment writes.
type Client struct {
	httpClient     *http.Client
	patientBaseURL string
	doctorBaseURL  string
}

func NewClient(patientBaseURL, doctorBaseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		patientBaseURL: patientBaseURL,
		doctorBaseURL:  doctorBaseURL,
	}
}

// ResolvePatient looks up one patient. The caller's bearer token is forwarded
// so the directory applies its own authorization.
func (c *Client) ResolvePatient(ctx context.Context, bearer, id string) (PatientRef, error) {
	var ref PatientRef
	err := c.getJSON(ctx, bearer, c.patientBaseURL+"/api/v1/patients/"+id, &ref)
	return ref, err
}

func (c *Client) ResolveDoctor(ctx context.Context, bearer, id string) (DoctorRef, error) {
	var ref DoctorRef
	err := c.getJSON(ctx, bearer, c.doctorBaseURL+"/api/v1/doctors/"+id, &ref)
	return ref, err
}

func (c *Client) getJSON(ctx context.Context, bearer, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrUnknownIdentity
	default:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}
