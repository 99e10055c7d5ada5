package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"farmguard/internal/domain"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultPullTimeout    = 5 * time.Second
	DefaultMessageLimit   = 10

	// A fresh subscription is drained once so stale events queued before we
	// connected do not start a detection run.
	flushTimeout = time.Second
	flushLimit   = 50
)

type CameraState int

const (
	CameraDisconnected CameraState = iota
	CameraConnecting
	CameraConnected
)

func (s CameraState) String() string {
	switch s {
	case CameraDisconnected:
		return "disconnected"
	case CameraConnecting:
		return "connecting"
	case CameraConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// CameraSession keeps a motion subscription alive. Any connect or pull
// failure drops the subscription and waits a fixed delay before control
// returns to the caller; the next call reconnects.
type CameraSession struct {
	source       MotionSource
	retry        backoff.BackOff
	pullTimeout  time.Duration
	messageLimit int
	sleep        func(ctx context.Context, d time.Duration)
	logger       *slog.Logger

	mu       sync.Mutex
	state    CameraState
	sub      MotionSubscription
	lastPull time.Time
	failures int
}

type CameraOption func(*CameraSession)

func WithReconnectBackOff(b backoff.BackOff) CameraOption {
	return func(c *CameraSession) {
		c.retry = b
	}
}

func WithPull(timeout time.Duration, limit int) CameraOption {
	return func(c *CameraSession) {
		if timeout > 0 {
			c.pullTimeout = timeout
		}
		if limit > 0 {
			c.messageLimit = limit
		}
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration)) CameraOption {
	return func(c *CameraSession) {
		c.sleep = sleep
	}
}

func NewCameraSession(source MotionSource, logger *slog.Logger, opts ...CameraOption) *CameraSession {
	c := &CameraSession{
		source:       source,
		retry:        backoff.NewConstantBackOff(DefaultReconnectDelay),
		pullTimeout:  DefaultPullTimeout,
		messageLimit: DefaultMessageLimit,
		sleep:        sleepContext,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureConnected connects when disconnected. On failure it logs, waits the
// reconnect delay and reports false.
func (c *CameraSession) EnsureConnected(ctx context.Context) bool {
	c.mu.Lock()
	if c.state == CameraConnected {
		c.mu.Unlock()
		return true
	}
	c.state = CameraConnecting
	c.mu.Unlock()

	sub, err := c.connect(ctx)
	if err != nil {
		c.fail(ctx, "camera connect failed", err)
		return false
	}

	c.mu.Lock()
	c.sub = sub
	c.state = CameraConnected
	c.lastPull = time.Now()
	c.failures = 0
	c.mu.Unlock()
	c.retry.Reset()

	c.logger.Info("camera connected")
	return true
}

func (c *CameraSession) connect(ctx context.Context) (MotionSubscription, error) {
	sub, err := c.source.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := sub.Pull(ctx, flushTimeout, flushLimit); err != nil {
		sub.Close()
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return sub, nil
}

// PollMotion pulls pending motion notifications from the live subscription.
func (c *CameraSession) PollMotion(ctx context.Context) ([]domain.MotionNotification, error) {
	c.mu.Lock()
	sub := c.sub
	connected := c.state == CameraConnected
	c.mu.Unlock()

	if !connected || sub == nil {
		return nil, fmt.Errorf("camera not connected")
	}

	notes, err := sub.Pull(ctx, c.pullTimeout, c.messageLimit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.fail(ctx, "camera connection lost", err)
		return nil, fmt.Errorf("pulling motion events: %w", err)
	}

	c.mu.Lock()
	c.lastPull = time.Now()
	c.mu.Unlock()

	return notes, nil
}

func (c *CameraSession) fail(ctx context.Context, msg string, err error) {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.state = CameraDisconnected
	c.failures++
	failures := c.failures
	c.mu.Unlock()

	if sub != nil {
		if cerr := sub.Close(); cerr != nil {
			c.logger.Debug("closing subscription", "error", cerr)
		}
	}

	delay := c.retry.NextBackOff()
	if delay == backoff.Stop {
		delay = DefaultReconnectDelay
	}

	c.logger.Warn(msg, "error", err, "failures", failures, "retry_in", delay)
	c.sleep(ctx, delay)
}

func (c *CameraSession) State() CameraState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CameraSession) LastPull() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPull
}

func (c *CameraSession) Close() error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.state = CameraDisconnected
	c.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Close()
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
