package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"farmguard/internal/domain"
)

const (
	DefaultAlertDuration = 20 * time.Second

	// playRetryPause keeps a failing player from spinning for the whole alert.
	playRetryPause = 500 * time.Millisecond
)

var (
	ErrAlertActive       = errors.New("alert already active")
	ErrAutoSoundDisabled = errors.New("auto sound disabled")
	ErrSoundMissing      = errors.New("sound file missing")
	ErrNoSoundSelected   = errors.New("no sound selected")
)

type alertSession struct {
	id        string
	reason    string
	started   time.Time
	cancelled atomic.Bool
	done      chan struct{}
}

// AlertController runs at most one siren-and-sound alert at a time. A
// trigger while an alert is running is rejected, not queued.
type AlertController struct {
	relays   RelaySwitch
	player   AudioPlayer
	settings *SettingsStore
	sounds   *SoundManager
	duration time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	active *alertSession
}

type AlertOption func(*AlertController)

func WithAlertDuration(d time.Duration) AlertOption {
	return func(a *AlertController) {
		if d > 0 {
			a.duration = d
		}
	}
}

func NewAlertController(
	relays RelaySwitch,
	player AudioPlayer,
	settings *SettingsStore,
	sounds *SoundManager,
	logger *slog.Logger,
	opts ...AlertOption,
) *AlertController {
	a := &AlertController{
		relays:   relays,
		player:   player,
		settings: settings,
		sounds:   sounds,
		duration: DefaultAlertDuration,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Trigger starts an alert in the background and returns immediately. It
// returns the session id, or an error when the alert is rejected.
func (a *AlertController) Trigger(ctx context.Context, reason string) (string, error) {
	settings := a.settings.Settings()
	if !settings.AutoSound {
		return "", ErrAutoSoundDisabled
	}

	sound := a.settings.ResolveCurrentSound()
	if sound == "" {
		return "", ErrNoSoundSelected
	}
	if !a.sounds.Exists(sound) {
		return "", fmt.Errorf("%w: %s", ErrSoundMissing, sound)
	}

	a.mu.Lock()
	if a.active != nil {
		id := a.active.id
		a.mu.Unlock()
		return id, ErrAlertActive
	}
	session := &alertSession{
		id:      uuid.NewString(),
		reason:  reason,
		started: a.now(),
		done:    make(chan struct{}),
	}
	a.active = session
	a.mu.Unlock()

	go a.run(ctx, session, a.sounds.Path(sound))

	return session.id, nil
}

// Stop asks the running alert to end. It reports whether an alert was running.
func (a *AlertController) Stop() bool {
	a.mu.Lock()
	session := a.active
	a.mu.Unlock()

	if session == nil {
		return false
	}
	session.cancelled.Store(true)
	a.logger.Info("alert stop requested", "alert_id", session.id)
	return true
}

// Wait blocks until the running alert, if any, has released its slot.
func (a *AlertController) Wait() {
	a.mu.Lock()
	session := a.active
	a.mu.Unlock()

	if session != nil {
		<-session.done
	}
}

// Active returns the running session id.
func (a *AlertController) Active() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active == nil {
		return "", false
	}
	return a.active.id, true
}

func (a *AlertController) run(ctx context.Context, s *alertSession, path string) {
	defer func() {
		a.mu.Lock()
		a.active = nil
		a.mu.Unlock()
		close(s.done)
	}()

	logger := a.logger.With("alert_id", s.id, "reason", s.reason)
	logger.Info("alert started", "sound", path, "duration", a.duration)

	if err := a.relays.SetState(ctx, domain.RelaySiren, domain.RelayOn); err != nil {
		logger.Error("turning siren on", "error", err)
	}

	deadline := s.started.Add(a.duration)
	playCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	plays := 0
	for a.now().Before(deadline) && !s.cancelled.Load() && playCtx.Err() == nil {
		volume := domain.ClampVolume(a.settings.Settings().Volume)
		plays++
		if err := a.player.Play(playCtx, path, volume); err != nil && playCtx.Err() == nil {
			logger.Warn("playing sound", "error", err)
			select {
			case <-playCtx.Done():
			case <-time.After(playRetryPause):
			}
		}
	}

	if err := a.relays.SetState(context.WithoutCancel(ctx), domain.RelaySiren, domain.RelayOff); err != nil {
		logger.Error("turning siren off", "error", err)
	}

	logger.Info("alert finished",
		"plays", plays,
		"cancelled", s.cancelled.Load(),
		"elapsed", a.now().Sub(s.started),
	)
}
