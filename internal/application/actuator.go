package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"farmguard/internal/domain"
)

var (
	ErrInvalidRelayState = errors.New("invalid relay state")
	ErrUnknownRelay      = errors.New("unknown relay")
)

// RelayConfig describes one relay output. Reported relays have every
// SetState call echoed to the backend.
type RelayConfig struct {
	Pin      string
	Polarity domain.Polarity
	Reported bool
}

type relay struct {
	cfg   RelayConfig
	state domain.RelayState
}

// ActuatorController owns the siren and motor relays.
type ActuatorController struct {
	driver   OutputDriver
	reporter StateReporter
	logger   *slog.Logger

	mu     sync.Mutex
	relays map[domain.Relay]*relay
}

func NewActuatorController(
	driver OutputDriver,
	reporter StateReporter,
	relays map[domain.Relay]RelayConfig,
	logger *slog.Logger,
) *ActuatorController {
	a := &ActuatorController{
		driver:   driver,
		reporter: reporter,
		logger:   logger,
		relays:   make(map[domain.Relay]*relay, len(relays)),
	}
	for name, cfg := range relays {
		a.relays[name] = &relay{cfg: cfg, state: domain.RelayOff}
	}
	return a
}

// SetState drives the relay to state and, for reported relays, posts the
// resulting state to the backend. The level is applied and the report is
// sent on every call, even when the relay is already in the requested state.
func (a *ActuatorController) SetState(ctx context.Context, name domain.Relay, state domain.RelayState) error {
	if !state.Valid() {
		a.logger.Warn("ignoring invalid relay state", "relay", name, "state", state)
		return fmt.Errorf("%w: %q", ErrInvalidRelayState, state)
	}

	a.mu.Lock()
	r, ok := a.relays[name]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRelay, name)
	}

	level := r.cfg.Polarity.Level(state)
	if err := a.driver.SetOutput(r.cfg.Pin, level); err != nil {
		a.mu.Unlock()
		return fmt.Errorf("setting %s relay output: %w", name, err)
	}
	r.state = state
	reported := r.cfg.Reported
	a.mu.Unlock()

	a.logger.Info("relay set",
		"relay", name,
		"state", state,
		"pin", r.cfg.Pin,
		"level", level.String(),
	)

	if !reported {
		return nil
	}

	if err := a.reporter.ReportRelayState(ctx, state); err != nil {
		a.logger.Warn("reporting relay state", "relay", name, "state", state, "error", err)
	}

	return nil
}

func (a *ActuatorController) State(name domain.Relay) (domain.RelayState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.relays[name]
	if !ok {
		return "", false
	}
	return r.state, true
}

func (a *ActuatorController) States() map[domain.Relay]domain.RelayState {
	a.mu.Lock()
	defer a.mu.Unlock()

	states := make(map[domain.Relay]domain.RelayState, len(a.relays))
	for name, r := range a.relays {
		states[name] = r.state
	}
	return states
}

// AllOff forces every relay OFF. Used on shutdown.
func (a *ActuatorController) AllOff(ctx context.Context) error {
	a.mu.Lock()
	names := make([]domain.Relay, 0, len(a.relays))
	for name := range a.relays {
		names = append(names, name)
	}
	a.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := a.SetState(ctx, name, domain.RelayOff); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
