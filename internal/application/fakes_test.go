package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"farmguard/internal/application"
	"farmguard/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type outputCall struct {
	Pin   string
	Level domain.Level
}

type fakeDriver struct {
	mu    sync.Mutex
	calls []outputCall
}

func (f *fakeDriver) SetOutput(pin string, level domain.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, outputCall{Pin: pin, Level: level})
	return nil
}

func (f *fakeDriver) Calls() []outputCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]outputCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeDriver) CountLevel(pin string, level domain.Level) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Pin == pin && c.Level == level {
			n++
		}
	}
	return n
}

// fakeBackend implements every backend port used by the application.
type fakeBackend struct {
	mu sync.Mutex

	commands    []string
	pollErr     error
	polls       int
	settings    domain.Settings
	settingsErr error
	assets      map[string][]byte
	states      []domain.RelayState
	inventories [][]string
	heartbeats  int
	events      []domain.DetectionEvent
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		settings: domain.DefaultSettings(),
		assets:   map[string][]byte{},
	}
}

func (f *fakeBackend) NextCommand(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return "", f.pollErr
	}
	if len(f.commands) == 0 {
		return "", nil
	}
	cmd := f.commands[0]
	f.commands = f.commands[1:]
	return cmd, nil
}

func (f *fakeBackend) Queue(cmds ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmds...)
}

func (f *fakeBackend) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeBackend) ReportRelayState(_ context.Context, state domain.RelayState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	return nil
}

func (f *fakeBackend) States() []domain.RelayState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RelayState, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeBackend) FetchSettings(_ context.Context) (domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settingsErr != nil {
		return domain.Settings{}, f.settingsErr
	}
	return f.settings, nil
}

func (f *fakeBackend) SetSettings(s domain.Settings, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = s
	f.settingsErr = err
}

func (f *fakeBackend) ReportSounds(_ context.Context, sounds []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inventories = append(f.inventories, sounds)
	return nil
}

func (f *fakeBackend) Inventories() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.inventories...)
}

func (f *fakeBackend) DownloadSound(_ context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.assets[name]
	if !ok {
		return nil, errors.New("unexpected status 404")
	}
	return data, nil
}

func (f *fakeBackend) Heartbeat(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeBackend) Notify(_ context.Context, event domain.DetectionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeBackend) Events() []domain.DetectionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.DetectionEvent(nil), f.events...)
}

type fakePlayer struct {
	mu      sync.Mutex
	volumes []int
	paths   []string
	delay   time.Duration
}

func (f *fakePlayer) Play(ctx context.Context, path string, volume int) error {
	f.mu.Lock()
	f.volumes = append(f.volumes, volume)
	f.paths = append(f.paths, path)
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.delay):
		return nil
	}
}

func (f *fakePlayer) Volumes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.volumes...)
}

type fakeSubscription struct {
	source *fakeMotionSource
}

func (s *fakeSubscription) Pull(_ context.Context, _ time.Duration, limit int) ([]domain.MotionNotification, error) {
	return s.source.pull(limit)
}

func (s *fakeSubscription) Close() error {
	s.source.mu.Lock()
	defer s.source.mu.Unlock()
	s.source.closed++
	return nil
}

type fakeMotionSource struct {
	mu          sync.Mutex
	connectErrs []error
	connects    int
	pullErrs    []error
	pending     []domain.MotionNotification
	closed      int
}

func (f *fakeMotionSource) Connect(_ context.Context) (application.MotionSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &fakeSubscription{source: f}, nil
}

func (f *fakeMotionSource) pull(limit int) ([]domain.MotionNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pullErrs) > 0 {
		err := f.pullErrs[0]
		f.pullErrs = f.pullErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	n := len(f.pending)
	if n > limit {
		n = limit
	}
	out := f.pending[:n]
	f.pending = f.pending[n:]
	return out, nil
}

func (f *fakeMotionSource) Push(notes ...domain.MotionNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, notes...)
}

func (f *fakeMotionSource) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

type fakeDetector struct {
	frames     []domain.Frame
	gap        time.Duration
	thresholds []float64
}

func (f *fakeDetector) Run(ctx context.Context, threshold float64) (<-chan domain.Frame, error) {
	f.thresholds = append(f.thresholds, threshold)
	out := make(chan domain.Frame)
	go func() {
		defer close(out)
		for _, frame := range f.frames {
			if f.gap > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(f.gap):
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- frame:
			}
		}
	}()
	return out, nil
}

func monkey(conf float64) domain.Detection {
	return domain.Detection{ClassName: "monkey", Confidence: conf}
}

func frameOf(dets ...domain.Detection) domain.Frame {
	return domain.Frame{Detections: dets}
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
