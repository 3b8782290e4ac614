package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/menta2k/ocr-prep/pkg/types"
)

// DefaultURL is the usual address of the local recognition container
const DefaultURL = "http://localhost:5000"

// maxResponseSize bounds the JSON read from the recognition server
var maxResponseSize int64 = 16 << 20

// Client talks to a recognition container over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	filename   string
}

type ocrRequest struct {
	Image    string `json:"image"`
	Filename string `json:"filename,omitempty"`
}

type ocrBlock struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	BBox       [][2]float64 `json:"bbox"`
}

type ocrResponse struct {
	Text   string     `json:"text"`
	Blocks []ocrBlock `json:"blocks"`
	Error  string     `json:"error"`
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// WithFilename sets the name reported to the service for logging
func (c *Client) WithFilename(name string) *Client {
	c.filename = name
	return c
}

// Recognize sends the payload and normalizes the returned pixel boxes
// against the payload's own dimensions.
func (c *Client) Recognize(ctx context.Context, payload types.Payload) (Result, error) {
	if payload.Empty() {
		return Result{}, &ServiceError{Message: "empty payload"}
	}
	w, h, err := PayloadSize(payload)
	if err != nil {
		return Result{}, &ServiceError{Message: "read payload size", Err: err}
	}

	body, err := json.Marshal(ocrRequest{Image: payload.Base64(), Filename: c.filename})
	if err != nil {
		return Result{}, &ServiceError{Message: "marshal request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", bytes.NewReader(body))
	if err != nil {
		return Result{}, &ServiceError{Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &ServiceError{Message: "send request", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return Result{}, &ServiceError{Message: "read response", Err: err}
	}
	if int64(len(raw)) > maxResponseSize {
		return Result{}, &ServiceError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("response larger than %d bytes", maxResponseSize)}
	}

	var out ocrResponse
	jsonErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if jsonErr == nil && out.Error != "" {
			msg = out.Error
		}
		return Result{}, &ServiceError{StatusCode: resp.StatusCode, Message: msg}
	}
	if jsonErr != nil {
		return Result{}, &ServiceError{Message: "decode response", Err: jsonErr}
	}

	res := Result{Text: out.Text, Width: w, Height: h, Blocks: make([]Block, 0, len(out.Blocks))}
	for i, b := range out.Blocks {
		if len(b.BBox) != 4 {
			return Result{}, &ServiceError{Message: fmt.Sprintf("block %d has %d corners", i, len(b.BBox))}
		}
		var q types.Quad
		for k, p := range b.BBox {
			q[k] = types.Point{X: p[0], Y: p[1]}
		}
		res.Blocks = append(res.Blocks, Block{
			Text:       b.Text,
			Confidence: clamp(b.Confidence, 0, 1),
			BBox:       NormalizeQuad(q, w, h),
		})
	}
	SortBlocks(res.Blocks, DefaultRowTolerance)
	if res.Text == "" {
		res.Text = JoinText(res.Blocks)
	}
	return res, nil
}

// Health checks that the service is up
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return &ServiceError{Message: "create request", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServiceError{Message: "health check", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &ServiceError{StatusCode: resp.StatusCode, Message: "unhealthy"}
	}
	return nil
}

// PayloadSize returns the bitmap size of a payload, decoding the header when
// the payload does not carry it
func PayloadSize(p types.Payload) (int, int, error) {
	if p.Width > 0 && p.Height > 0 {
		return p.Width, p.Height, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(p.Data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
