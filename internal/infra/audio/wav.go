package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

var ErrUnsupportedWAV = errors.New("unsupported wav format")

// PCM is decoded 16-bit interleaved audio.
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// DecodeWAV reads a RIFF/WAVE stream holding 16-bit PCM.
func DecodeWAV(r io.ReadSeeker) (*PCM, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedWAV)
	}
	if d.WavAudioFormat != 1 || d.BitDepth != 16 {
		return nil, fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedWAV, d.WavAudioFormat, d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return &PCM{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		Samples:    samples,
	}, nil
}

// ScaleVolume returns a copy of samples scaled to percent of full volume.
func ScaleVolume(samples []int16, percent int) []int16 {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(int32(s) * int32(percent) / 100)
	}
	return out
}
