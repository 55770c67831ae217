// Package displayforce is a client for the DisplayForce public stats API.
package displayforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// PageSize is the number of visitors requested per page.
const PageSize = 500

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.displayforce.ai/public/v1"

const (
	visitorListPath = "/stats/visitor/list"
	deviceListPath  = "/device/list"
	tokenHeader     = "X-API-Token"
)

// AdditionalAttributeNames are requested with every visitor page.
var AdditionalAttributeNames = []string{"smile", "pitch", "yaw", "x", "y", "height"}

// APIError is returned when the API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error [%d] %s %s", e.StatusCode, e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	// Timeout bounds each HTTP request. Zero means 30 seconds.
	Timeout time.Duration
	// RequestsPerSecond throttles outbound calls. Zero or less disables throttling.
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client fetches visitor events and devices from DisplayForce.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a client from opts.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:    baseURL,
		token:      opts.Token,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

type visitorListRequest struct {
	Start                string   `json:"start"`
	End                  string   `json:"end"`
	Limit                int      `json:"limit"`
	Offset               int      `json:"offset"`
	Tracks               bool     `json:"tracks"`
	FaceQuality          bool     `json:"face_quality"`
	Glasses              bool     `json:"glasses"`
	FacialHair           bool     `json:"facial_hair"`
	HairColor            bool     `json:"hair_color"`
	HairType             bool     `json:"hair_type"`
	Headwear             bool     `json:"headwear"`
	AdditionalAttributes []string `json:"additional_attributes"`
	DeviceID             string   `json:"device_id,omitempty"`
}

type pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type visitorListResponse struct {
	Payload    json.RawMessage `json:"payload"`
	Data       json.RawMessage `json:"data"`
	Pagination *pagination     `json:"pagination"`
}

// visitors returns payload, falling back to data when payload is absent or
// empty. Anything that is not an array yields no visitors.
func (r visitorListResponse) visitors() ([]Visitor, error) {
	raw := r.Payload
	if isEmptyJSON(raw) {
		raw = r.Data
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, nil
	}
	var out []Visitor
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode visitors: %w", err)
	}
	return out, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := string(bytes.TrimSpace(raw))
	switch s {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

// FetchDay returns every visitor detected on day (YYYY-MM-DD, UTC),
// following pagination until the API reports no more results. An empty
// storeID requests all devices.
func (c *Client) FetchDay(ctx context.Context, day, storeID string) ([]Visitor, error) {
	var all []Visitor
	offset := 0

	for {
		req := visitorListRequest{
			Start:                day + "T00:00:00Z",
			End:                  day + "T23:59:59Z",
			Limit:                PageSize,
			Offset:               offset,
			Tracks:               true,
			FaceQuality:          true,
			Glasses:              true,
			FacialHair:           true,
			HairColor:            true,
			HairType:             true,
			Headwear:             true,
			AdditionalAttributes: AdditionalAttributeNames,
			DeviceID:             storeID,
		}

		var resp visitorListResponse
		if err := c.post(ctx, visitorListPath, req, &resp); err != nil {
			return nil, err
		}

		page, err := resp.visitors()
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		c.logger.Debug("Fetched visitor page",
			slog.String("day", day),
			slog.String("store_id", storeID),
			slog.Int("offset", offset),
			slog.Int("count", len(page)))

		if resp.Pagination == nil || len(page) < PageSize {
			break
		}
		if resp.Pagination.Total > 0 && len(all) >= resp.Pagination.Total {
			break
		}
		offset += PageSize
	}

	return all, nil
}

// Device is a camera/player registered in DisplayForce.
type Device struct {
	ID   FlexString `json:"id"`
	Name string     `json:"name"`
}

type deviceListResponse struct {
	Payload json.RawMessage `json:"payload"`
	Data    json.RawMessage `json:"data"`
}

// ListDevices returns the devices visible to the configured token.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var resp deviceListResponse
	if err := c.get(ctx, deviceListPath, &resp); err != nil {
		return nil, err
	}

	raw := resp.Payload
	if isEmptyJSON(raw) {
		raw = resp.Data
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return []Device{}, nil
	}

	var devices []Device
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	return devices, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
