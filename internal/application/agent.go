package application

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"farmguard/internal/domain"
)

const DefaultCycleInterval = time.Second

// Agent is the top-level loop. Each cycle runs the due periodic tasks, polls
// commands, keeps the camera subscription alive and, on motion, runs one
// bounded detection episode.
type Agent struct {
	deviceID  string
	actuators *ActuatorController
	settings  *SettingsStore
	sounds    *SoundManager
	alert     *AlertController
	poller    *CommandPoller
	scheduler *Scheduler
	camera    *CameraSession
	runner    *DetectionRunner
	interval  time.Duration
	motorInit domain.RelayState
	logger    *slog.Logger

	running   atomic.Bool
	startedAt atomic.Pointer[time.Time]
}

type AgentDeps struct {
	DeviceID     string
	Actuators    *ActuatorController
	Settings     *SettingsStore
	Sounds       *SoundManager
	Alert        *AlertController
	Poller       *CommandPoller
	Scheduler    *Scheduler
	Camera       *CameraSession
	Runner       *DetectionRunner
	Interval     time.Duration
	MotorDefault domain.RelayState
}

func NewAgent(deps AgentDeps, logger *slog.Logger) *Agent {
	interval := deps.Interval
	if interval <= 0 {
		interval = DefaultCycleInterval
	}
	motor := deps.MotorDefault
	if !motor.Valid() {
		motor = domain.RelayOff
	}

	return &Agent{
		deviceID:  deps.DeviceID,
		actuators: deps.Actuators,
		settings:  deps.Settings,
		sounds:    deps.Sounds,
		alert:     deps.Alert,
		poller:    deps.Poller,
		scheduler: deps.Scheduler,
		camera:    deps.Camera,
		runner:    deps.Runner,
		interval:  interval,
		motorInit: motor,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, then shuts the actuators down.
func (a *Agent) Run(ctx context.Context) error {
	a.Start(ctx)
	defer a.Shutdown()

	a.logger.Info("agent ready, waiting for motion")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slept := a.Step(ctx)
		if slept {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.interval):
		}
	}
}

// Start puts the relays in their default state, reports the motor state and
// sound inventory, and runs the first settings sync.
func (a *Agent) Start(ctx context.Context) {
	now := time.Now()
	a.startedAt.Store(&now)
	a.running.Store(true)

	if err := a.actuators.SetState(ctx, domain.RelaySiren, domain.RelayOff); err != nil {
		a.logger.Error("initialising siren relay", "error", err)
	}
	if err := a.actuators.SetState(ctx, domain.RelayMotor, a.motorInit); err != nil {
		a.logger.Error("initialising motor relay", "error", err)
	}
	if err := a.sounds.PublishInventory(ctx); err != nil {
		a.logger.Warn("publishing sound list", "error", err)
	}
	if err := a.settings.Sync(ctx); err != nil {
		a.logger.Warn("initial settings sync failed, using defaults", "error", err)
	}
}

// Step runs one cycle. It reports true when the cycle already waited (a
// camera reconnect delay) so the caller can skip its own pause.
func (a *Agent) Step(ctx context.Context) bool {
	a.scheduler.RunDue(ctx)
	a.poller.PollOnce(ctx)

	if !a.camera.EnsureConnected(ctx) {
		return true
	}

	notes, err := a.camera.PollMotion(ctx)
	if err != nil {
		return true
	}
	if len(notes) == 0 {
		return false
	}

	a.runner.Run(ctx, notes[0], a.poller.PollOnce)
	return false
}

// Shutdown stops a running alert, forces every relay OFF and releases the
// camera subscription.
func (a *Agent) Shutdown() {
	a.running.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.alert.Stop()
	a.alert.Wait()

	if err := a.actuators.AllOff(ctx); err != nil {
		a.logger.Error("turning relays off", "error", err)
	}
	if err := a.camera.Close(); err != nil {
		a.logger.Warn("closing camera subscription", "error", err)
	}
	a.logger.Info("agent stopped")
}

func (a *Agent) Running() bool {
	return a.running.Load()
}

func (a *Agent) Snapshot() domain.AgentStatus {
	status := domain.AgentStatus{
		DeviceID:     a.deviceID,
		Running:      a.running.Load(),
		Settings:     a.settings.Settings(),
		CurrentSound: a.settings.ResolveCurrentSound(),
		Relays:       a.actuators.States(),
		Camera:       a.camera.State().String(),
	}
	if started := a.startedAt.Load(); started != nil {
		status.StartedAt = *started
	}
	if name, until, ok := a.settings.Override(); ok {
		status.OverrideSound = name
		status.OverrideUntil = &until
	}
	if last := a.camera.LastPull(); !last.IsZero() {
		status.LastMotionPull = &last
	}
	status.AlertID, status.AlertActive = a.alert.Active()
	return status
}
