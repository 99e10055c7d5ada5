package onvif

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"farmguard/internal/application"
	"farmguard/internal/domain"
)

// requestSlack is added to the pull timeout so the HTTP request outlives the
// camera's long poll.
const requestSlack = 5 * time.Second

type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	EventsPath  string
	TopicFilter string
}

// MotionSource subscribes to camera events through an ONVIF pull point.
type MotionSource struct {
	endpoint    string
	username    string
	password    string
	topicFilter string
	httpClient  *http.Client
	now         func() time.Time
	logger      *slog.Logger
}

func NewMotionSource(cfg Config, logger *slog.Logger) *MotionSource {
	port := cfg.Port
	if port == 0 {
		port = 80
	}
	path := cfg.EventsPath
	if path == "" {
		path = "/onvif/event_service"
	}
	endpoint := "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(port)) + path
	return NewMotionSourceWithURL(endpoint, cfg, logger)
}

func NewMotionSourceWithURL(endpoint string, cfg Config, logger *slog.Logger) *MotionSource {
	return &MotionSource{
		endpoint:    endpoint,
		username:    cfg.Username,
		password:    cfg.Password,
		topicFilter: strings.ToLower(cfg.TopicFilter),
		httpClient:  &http.Client{},
		now:         time.Now,
		logger:      logger,
	}
}

// Connect creates a pull-point subscription.
func (s *MotionSource) Connect(ctx context.Context) (application.MotionSubscription, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var resp createPullPointResponse
	if err := s.call(ctx, s.endpoint, actionCreatePullPoint, createPullPointBody(), &resp); err != nil {
		return nil, fmt.Errorf("creating pull point subscription: %w", err)
	}

	address := strings.TrimSpace(resp.Address)
	if address == "" {
		return nil, fmt.Errorf("creating pull point subscription: empty subscription address")
	}

	s.logger.Info("onvif subscription created", "address", address)
	return &subscription{source: s, address: address}, nil
}

func (s *MotionSource) call(ctx context.Context, url, action, content string, out any) error {
	payload, err := envelope(action, url, s.username, s.password, content)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+action+`"`)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var fault faultResponse
		if xml.Unmarshal(data, &fault) == nil && fault.Reason != "" {
			return fmt.Errorf("soap fault %s: %s", strings.TrimSpace(fault.Code), strings.TrimSpace(fault.Reason))
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := xml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

type subscription struct {
	source  *MotionSource
	address string
}

// Pull long-polls the subscription. Every returned notification that matches
// the topic filter counts as motion.
func (p *subscription) Pull(ctx context.Context, timeout time.Duration, limit int) ([]domain.MotionNotification, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+requestSlack)
	defer cancel()

	var resp pullMessagesResponse
	if err := p.source.call(ctx, p.address, actionPullMessages, pullMessagesBody(timeout, limit), &resp); err != nil {
		return nil, fmt.Errorf("pulling messages: %w", err)
	}

	received := p.source.now()
	notes := make([]domain.MotionNotification, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		topic := strings.TrimSpace(msg.Topic)
		if p.source.topicFilter != "" && !strings.Contains(strings.ToLower(topic), p.source.topicFilter) {
			continue
		}
		notes = append(notes, domain.MotionNotification{
			Topic:    topic,
			Source:   msg.source(),
			Received: received,
		})
	}
	return notes, nil
}

func (p *subscription) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.source.call(ctx, p.address, actionUnsubscribe, unsubscribeBody(), nil); err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	return nil
}
