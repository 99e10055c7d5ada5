//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// PortAudioPlayer plays 16-bit PCM WAV files on the default output device.
// Volume is applied in software by scaling samples.
type PortAudioPlayer struct {
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
}

func NewPortAudioPlayer(logger *slog.Logger) *PortAudioPlayer {
	return &PortAudioPlayer{logger: logger}
}

func (p *PortAudioPlayer) init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	p.initialized = true
	return nil
}

func (p *PortAudioPlayer) Play(ctx context.Context, path string, volumePercent int) error {
	if err := p.init(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	pcm, err := DecodeWAV(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	samples := ScaleVolume(pcm.Samples, volumePercent)
	buffer := make([]int16, framesPerBuffer*pcm.Channels)

	stream, err := portaudio.OpenDefaultStream(0, pcm.Channels, float64(pcm.SampleRate), framesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Stop()

	for offset := 0; offset < len(samples); offset += len(buffer) {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := copy(buffer, samples[offset:])
		for i := n; i < len(buffer); i++ {
			buffer[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("writing to stream: %w", err)
		}
	}

	p.logger.Debug("sound played", "path", path, "samples", len(samples), "volume", volumePercent)
	return nil
}

func (p *PortAudioPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}
