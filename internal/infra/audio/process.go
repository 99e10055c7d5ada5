package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner executes an external command and waits for it.
type Runner func(ctx context.Context, name string, args ...string) error

// ProcessPlayer plays files with aplay and sets the volume with amixer
// before each play.
type ProcessPlayer struct {
	player       string
	mixer        string
	mixerControl string
	run          Runner
	logger       *slog.Logger
}

type ProcessOption func(*ProcessPlayer)

func WithRunner(run Runner) ProcessOption {
	return func(p *ProcessPlayer) {
		p.run = run
	}
}

func WithBinaries(player, mixer string) ProcessOption {
	return func(p *ProcessPlayer) {
		if player != "" {
			p.player = player
		}
		if mixer != "" {
			p.mixer = mixer
		}
	}
}

func NewProcessPlayer(mixerControl string, logger *slog.Logger, opts ...ProcessOption) *ProcessPlayer {
	if mixerControl == "" {
		mixerControl = "Master"
	}
	p := &ProcessPlayer{
		player:       "aplay",
		mixer:        "amixer",
		mixerControl: mixerControl,
		run:          execRunner,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play applies the volume and blocks until the file has played or ctx ends.
// A mixer failure is logged and playback continues at the current volume.
func (p *ProcessPlayer) Play(ctx context.Context, path string, volumePercent int) error {
	if err := p.SetVolume(ctx, volumePercent); err != nil {
		p.logger.Warn("setting volume", "volume", volumePercent, "error", err)
	}

	if err := p.run(ctx, p.player, "-q", path); err != nil {
		return fmt.Errorf("playing %s: %w", path, err)
	}
	return nil
}

func (p *ProcessPlayer) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return p.run(ctx, p.mixer, "-q", "sset", p.mixerControl, strconv.Itoa(percent)+"%")
}

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = 2 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
