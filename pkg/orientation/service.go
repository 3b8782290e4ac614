package orientation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// MethodService names reports from the orientation service
const MethodService = "service"

// DefaultServiceURL is the recognition container, which also serves /orientation
const DefaultServiceURL = "http://localhost:5000"

// ServiceDetector asks a local orientation service over HTTP
type ServiceDetector struct {
	baseURL    string
	httpClient *http.Client
}

type serviceRequest struct {
	Image string `json:"image"`
}

// numbers are pointers so a missing field is distinguishable from zero
type serviceResponse struct {
	Orientation *float64 `json:"orientation"`
	Confidence  *float64 `json:"confidence"`
	Error       string   `json:"error"`
}

// NewServiceDetector creates a detector for the service at baseURL
func NewServiceDetector(baseURL string) *ServiceDetector {
	if baseURL == "" {
		baseURL = DefaultServiceURL
	}
	return &ServiceDetector{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// the Corrector's context normally expires first
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Detect posts the image and reads back its current orientation
func (s *ServiceDetector) Detect(ctx context.Context, data []byte) (Report, error) {
	body, err := json.Marshal(serviceRequest{Image: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return Report{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/orientation", bytes.NewReader(body))
	if err != nil {
		return Report{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Report{}, fmt.Errorf("%w: read response: %v", ErrServiceUnavailable, err)
	}

	var out serviceResponse
	jsonErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if jsonErr == nil && out.Error != "" {
			msg = out.Error
		}
		return Report{}, fmt.Errorf("%w: status %d: %s", ErrServiceUnavailable, resp.StatusCode, msg)
	}
	if jsonErr != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformedResponse, jsonErr)
	}
	if out.Orientation == nil {
		return Report{}, fmt.Errorf("%w: missing orientation", ErrMalformedResponse)
	}

	o := *out.Orientation
	if math.IsNaN(o) || o != math.Trunc(o) || int(o)%90 != 0 {
		return Report{}, fmt.Errorf("%w: orientation %v", ErrMalformedResponse, o)
	}
	r := Report{Orientation: int(o), Method: MethodService}
	if out.Confidence != nil {
		r.RawConfidence = *out.Confidence
	}
	return r, nil
}

// Health checks that the service is up
func (s *ServiceDetector) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}
