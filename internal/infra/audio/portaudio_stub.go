//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
)

// PortAudioPlayer stub when portaudio is not available
type PortAudioPlayer struct {
	logger *slog.Logger
}

func NewPortAudioPlayer(logger *slog.Logger) *PortAudioPlayer {
	return &PortAudioPlayer{logger: logger}
}

func (p *PortAudioPlayer) Play(_ context.Context, _ string, _ int) error {
	return fmt.Errorf("portaudio player not available: rebuild with -tags portaudio")
}

func (p *PortAudioPlayer) Close() error {
	return nil
}
