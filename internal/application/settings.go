package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"farmguard/internal/domain"
)

const DefaultOverrideDuration = 120 * time.Second

// settingsView is an immutable snapshot. Writers build a new view and swap
// the pointer, so readers never observe a partial update.
type settingsView struct {
	settings      domain.Settings
	current       string
	override      string
	overrideUntil time.Time
}

func (v *settingsView) overrideActive(now time.Time) bool {
	return v.override != "" && now.Before(v.overrideUntil)
}

// SettingsStore holds the last synced settings and the sound override.
// Sync, SetOverride and SetCurrentSound are called from the main loop only;
// every other method is safe for concurrent readers.
type SettingsStore struct {
	source      SettingsSource
	overrideFor time.Duration
	now         func() time.Time
	logger      *slog.Logger

	view atomic.Pointer[settingsView]
}

type SettingsOption func(*SettingsStore)

func WithOverrideDuration(d time.Duration) SettingsOption {
	return func(s *SettingsStore) {
		if d > 0 {
			s.overrideFor = d
		}
	}
}

func WithSettingsClock(now func() time.Time) SettingsOption {
	return func(s *SettingsStore) {
		s.now = now
	}
}

func NewSettingsStore(source SettingsSource, logger *slog.Logger, opts ...SettingsOption) *SettingsStore {
	s := &SettingsStore{
		source:      source,
		overrideFor: DefaultOverrideDuration,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	defaults := domain.DefaultSettings()
	s.view.Store(&settingsView{
		settings: defaults,
		current:  defaults.DefaultSound,
	})

	return s
}

// Sync fetches settings and swaps in the new snapshot. On failure the last
// known good snapshot is kept.
func (s *SettingsStore) Sync(ctx context.Context) error {
	settings, err := s.source.FetchSettings(ctx)
	if err != nil {
		return fmt.Errorf("fetching settings: %w", err)
	}

	now := s.now()
	settings = settings.Normalize()
	if settings.FetchedAt.IsZero() {
		settings.FetchedAt = now
	}

	old := s.view.Load()
	next := &settingsView{
		settings:      settings,
		current:       settings.DefaultSound,
		override:      old.override,
		overrideUntil: old.overrideUntil,
	}
	if old.overrideActive(now) {
		next.current = old.current
	} else {
		next.override = ""
		next.overrideUntil = time.Time{}
	}
	s.view.Store(next)

	s.logger.Info("settings synced",
		"threshold", settings.ConfidenceThreshold,
		"auto_sound", settings.AutoSound,
		"push_alerts", settings.PushAlerts,
		"volume", settings.Volume,
		"current_sound", next.current,
	)

	return nil
}

// SetOverride selects name as the current sound for the override duration.
func (s *SettingsStore) SetOverride(name string) {
	old := s.view.Load()
	until := s.now().Add(s.overrideFor)
	s.view.Store(&settingsView{
		settings:      old.settings,
		current:       name,
		override:      name,
		overrideUntil: until,
	})
	s.logger.Info("sound override set", "sound", name, "until", until)
}

// SetCurrentSound replaces the current sound and drops any override. An
// empty name means no sound is selected.
func (s *SettingsStore) SetCurrentSound(name string) {
	old := s.view.Load()
	s.view.Store(&settingsView{
		settings: old.settings,
		current:  name,
	})
}

// ResolveCurrentSound returns the override while it is active, otherwise the
// sound chosen at the last sync.
func (s *SettingsStore) ResolveCurrentSound() string {
	v := s.view.Load()
	if v.overrideActive(s.now()) {
		return v.override
	}
	return v.current
}

func (s *SettingsStore) Settings() domain.Settings {
	return s.view.Load().settings
}

// Override returns the override sound and its expiry while it is active.
func (s *SettingsStore) Override() (string, time.Time, bool) {
	v := s.view.Load()
	if !v.overrideActive(s.now()) {
		return "", time.Time{}, false
	}
	return v.override, v.overrideUntil, true
}
