package pushover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"farmguard/internal/domain"
	"farmguard/internal/infra"
)

const defaultAPIURL = "https://api.pushover.net/1/messages.json"

// Client pushes confirmed detections to a phone through Pushover.
type Client struct {
	token      string
	userKey    string
	apiURL     string
	retry      infra.RetryConfig
	httpClient *http.Client
}

func NewClient(token, userKey string) *Client {
	return NewClientWithURL(token, userKey, defaultAPIURL)
}

func NewClientWithURL(token, userKey, apiURL string) *Client {
	return &Client{
		token:      token,
		userKey:    userKey,
		apiURL:     apiURL,
		retry:      infra.DefaultRetryConfig(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetRetry(cfg infra.RetryConfig) {
	c.retry = cfg
}

type apiResponse struct {
	Status int      `json:"status"`
	Errors []string `json:"errors"`
}

// Notify sends a high-priority push for a confirmed detection. Without
// credentials it does nothing. 5xx and 429 responses are retried.
func (c *Client) Notify(ctx context.Context, event domain.DetectionEvent) error {
	if c.token == "" || c.userKey == "" {
		return nil
	}

	form := url.Values{
		"token":    {c.token},
		"user":     {c.userKey},
		"title":    {"FarmGuard " + event.DeviceID},
		"message":  {fmt.Sprintf("%s detected (%.0f%% confidence)", event.ClassName, event.Confidence*100)},
		"priority": {"1"},
	}
	if !event.Time.IsZero() {
		form.Set("timestamp", strconv.FormatInt(event.Time.Unix(), 10))
	}
	body := form.Encode()

	err := infra.WithRetry(ctx, c.retry, func() error {
		return c.send(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("sending push notification: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(body))
	if err != nil {
		return infra.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result apiResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&result)

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("pushover returned %s", resp.Status)
		if len(result.Errors) > 0 {
			err = fmt.Errorf("pushover returned %s: %s", resp.Status, strings.Join(result.Errors, "; "))
		}
		if infra.IsRetryableHTTPStatus(resp.StatusCode) {
			return err
		}
		return infra.Permanent(err)
	}

	if decodeErr == nil && result.Status != 1 {
		return infra.Permanent(fmt.Errorf("pushover rejected message: %s", strings.Join(result.Errors, "; ")))
	}
	return nil
}
