package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"farmguard/internal/domain"
	"farmguard/internal/infra"
)

const (
	DefaultTimeout         = 5 * time.Second
	DefaultDownloadTimeout = 10 * time.Second

	DefaultMaxSoundBytes = 50 << 20
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrSoundTooLarge    = errors.New("sound asset too large")
)

// StatusError is returned for any response other than 200.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s %d", e.Method, e.Path, ErrUnexpectedStatus, e.Code)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Client talks to the farm backend. Every call is a single request; callers
// treat failures as soft and try again on their next cycle.
type Client struct {
	baseURL         string
	deviceID        string
	httpClient      *http.Client
	downloadClient  *http.Client
	downloadTimeout time.Duration
	maxSoundBytes   int64
	retry           infra.RetryConfig
}

func NewClient(baseURL, deviceID string) *Client {
	return NewClientWithTimeouts(baseURL, deviceID, DefaultTimeout, DefaultDownloadTimeout)
}

func NewClientWithTimeouts(baseURL, deviceID string, timeout, downloadTimeout time.Duration) *Client {
	if downloadTimeout <= 0 {
		downloadTimeout = DefaultDownloadTimeout
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		deviceID:        deviceID,
		httpClient:      &http.Client{Timeout: timeout},
		downloadClient:  &http.Client{},
		downloadTimeout: downloadTimeout,
		maxSoundBytes:   DefaultMaxSoundBytes,
		retry:           infra.DefaultRetryConfig(),
	}
}

// SetMaxSoundBytes overrides the largest sound asset DownloadSound accepts.
func (c *Client) SetMaxSoundBytes(n int64) {
	c.maxSoundBytes = n
}

// SetRetry overrides the download retry policy.
func (c *Client) SetRetry(cfg infra.RetryConfig) {
	c.retry = cfg
}

// NextCommand returns the pending command token, or "" when there is none.
func (c *Client) NextCommand(ctx context.Context) (string, error) {
	var result struct {
		Command *string `json:"command"`
	}
	path := "/device/command/" + url.PathEscape(c.deviceID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return "", fmt.Errorf("polling command: %w", err)
	}
	if result.Command == nil {
		return "", nil
	}
	return *result.Command, nil
}

func (c *Client) ReportRelayState(ctx context.Context, state domain.RelayState) error {
	body := map[string]any{"device_id": c.deviceID, "state": state}
	if err := c.doJSON(ctx, http.MethodPost, "/device/motor", body, nil); err != nil {
		return fmt.Errorf("reporting motor state: %w", err)
	}
	return nil
}

type settingsPayload struct {
	Settings struct {
		ConfidenceThreshold *float64 `json:"confidenceThreshold"`
		AutoSound           *bool    `json:"autoSound"`
		PushAlerts          *bool    `json:"pushAlerts"`
		Volume              *float64 `json:"volume"`
		DefaultSound        *string  `json:"defaultSound"`
	} `json:"settings"`
}

// FetchSettings reads the settings document. Absent fields take their
// defaults and out-of-range values are clamped.
func (c *Client) FetchSettings(ctx context.Context) (domain.Settings, error) {
	var payload settingsPayload
	if err := c.doJSON(ctx, http.MethodGet, "/settings", nil, &payload); err != nil {
		return domain.Settings{}, fmt.Errorf("fetching settings: %w", err)
	}

	s := domain.DefaultSettings()
	p := payload.Settings
	if p.ConfidenceThreshold != nil {
		s.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.AutoSound != nil {
		s.AutoSound = *p.AutoSound
	}
	if p.PushAlerts != nil {
		s.PushAlerts = *p.PushAlerts
	}
	if p.Volume != nil {
		s.Volume = domain.VolumeFromFloat(*p.Volume)
	}
	if p.DefaultSound != nil && *p.DefaultSound != "" {
		s.DefaultSound = *p.DefaultSound
	}
	s.FetchedAt = time.Now()

	return s.Normalize(), nil
}

// ReportDetection posts a confirmed detection.
func (c *Client) ReportDetection(ctx context.Context, event domain.DetectionEvent) error {
	body := map[string]any{
		"device_id":  c.deviceID,
		"confidence": event.Confidence,
		"time":       event.Time.UTC().Format(time.RFC3339Nano),
	}
	if err := c.doJSON(ctx, http.MethodPost, "/device/detection", body, nil); err != nil {
		return fmt.Errorf("reporting detection: %w", err)
	}
	return nil
}

// Notify makes the backend one of the detection sinks.
func (c *Client) Notify(ctx context.Context, event domain.DetectionEvent) error {
	return c.ReportDetection(ctx, event)
}

func (c *Client) Heartbeat(ctx context.Context) error {
	body := map[string]any{"device_id": c.deviceID}
	if err := c.doJSON(ctx, http.MethodPost, "/device/heartbeat", body, nil); err != nil {
		return fmt.Errorf("sending heartbeat: %w", err)
	}
	return nil
}

func (c *Client) ReportSounds(ctx context.Context, sounds []string) error {
	if sounds == nil {
		sounds = []string{}
	}
	body := map[string]any{"device_id": c.deviceID, "sounds": sounds}
	if err := c.doJSON(ctx, http.MethodPost, "/device/sounds", body, nil); err != nil {
		return fmt.Errorf("reporting sounds: %w", err)
	}
	return nil
}

// DownloadSound fetches a sound asset. Transport errors and 5xx responses
// are retried, but every attempt shares one download timeout so a slow
// backend cannot hold the loop longer than that. Any other non-200 status
// and bodies over the size limit fail immediately.
func (c *Client) DownloadSound(ctx context.Context, name string) ([]byte, error) {
	path := "/device/download/" + url.PathEscape(name)

	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	var data []byte
	err := infra.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		resp, err := c.downloadClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode}
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return statusErr
			}
			return infra.Permanent(statusErr)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSoundBytes+1))
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		if int64(len(body)) > c.maxSoundBytes {
			return infra.Permanent(fmt.Errorf("%w: more than %d bytes", ErrSoundTooLarge, c.maxSoundBytes))
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("downloading sound %s: %w", name, err)
	}

	return data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}

	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
