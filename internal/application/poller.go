package application

import (
	"context"
	"errors"
	"log/slog"

	"farmguard/internal/domain"
)

// CommandPoller fetches pending commands and dispatches them. Each call to
// PollOnce takes at most one command from every source; failures are logged
// and the cycle is skipped, never retried in place.
type CommandPoller struct {
	sources   []CommandSource
	actuators *ActuatorController
	settings  *SettingsStore
	sounds    *SoundManager
	alert     *AlertController
	logger    *slog.Logger
}

func NewCommandPoller(
	actuators *ActuatorController,
	settings *SettingsStore,
	sounds *SoundManager,
	alert *AlertController,
	logger *slog.Logger,
	sources ...CommandSource,
) *CommandPoller {
	return &CommandPoller{
		sources:   sources,
		actuators: actuators,
		settings:  settings,
		sounds:    sounds,
		alert:     alert,
		logger:    logger,
	}
}

func (p *CommandPoller) PollOnce(ctx context.Context) {
	for _, source := range p.sources {
		raw, err := source.NextCommand(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("polling command", "error", err)
			}
			continue
		}
		if raw == "" {
			continue
		}

		cmd, ok := domain.ParseCommand(raw)
		if !ok {
			p.logger.Warn("ignoring unknown command", "command", raw)
			continue
		}

		p.logger.Info("command received", "command", cmd.Raw)
		p.Dispatch(ctx, cmd)
	}
}

// Dispatch executes a parsed command. Everything but PLAY_SOUND runs to
// completion before Dispatch returns; PLAY_SOUND starts the alert in the
// background.
func (p *CommandPoller) Dispatch(ctx context.Context, cmd domain.Command) {
	switch cmd.Kind {
	case domain.CommandPlaySound:
		id, err := p.alert.Trigger(ctx, "command")
		switch {
		case errors.Is(err, ErrAlertActive):
			p.logger.Info("alert already active, ignoring play", "alert_id", id)
		case err != nil:
			p.logger.Warn("starting alert", "error", err)
		}

	case domain.CommandStopSound:
		if !p.alert.Stop() {
			p.logger.Info("no alert running, nothing to stop")
		}

	case domain.CommandSyncSettings, domain.CommandSetVolume:
		if err := p.settings.Sync(ctx); err != nil {
			p.logger.Warn("settings sync failed", "error", err)
		}

	case domain.CommandUploadSound:
		if err := p.sounds.Download(ctx, cmd.Sound); err != nil {
			p.logger.Warn("sound download failed", "sound", cmd.Sound, "error", err)
		}

	case domain.CommandSetSound:
		name, err := SanitizeSoundName(cmd.Sound)
		if err != nil {
			p.logger.Warn("ignoring sound selection", "error", err)
			return
		}
		p.settings.SetOverride(name)

	case domain.CommandDeleteSound:
		if err := p.sounds.Delete(ctx, cmd.Sound); err != nil {
			p.logger.Warn("sound delete failed", "sound", cmd.Sound, "error", err)
		}

	case domain.CommandMotorOn:
		p.setMotor(ctx, domain.RelayOn)

	case domain.CommandMotorOff:
		p.setMotor(ctx, domain.RelayOff)

	default:
		p.logger.Warn("unhandled command", "command", cmd.Raw)
	}
}

func (p *CommandPoller) setMotor(ctx context.Context, state domain.RelayState) {
	if err := p.actuators.SetState(ctx, domain.RelayMotor, state); err != nil {
		p.logger.Error("setting motor", "state", state, "error", err)
	}
}
