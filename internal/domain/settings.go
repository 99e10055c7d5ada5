package domain

import (
	"math"
	"time"
)

const (
	DefaultConfidenceThreshold = 0.5
	DefaultVolume              = 100
	DefaultSoundName           = "alert.wav"
)

// Settings is the operating snapshot synced from the backend. It is replaced
// as a whole and never mutated in place.
type Settings struct {
	ConfidenceThreshold float64   `json:"confidence_threshold"`
	AutoSound           bool      `json:"auto_sound"`
	PushAlerts          bool      `json:"push_alerts"`
	Volume              int       `json:"volume"`
	DefaultSound        string    `json:"default_sound"`
	FetchedAt           time.Time `json:"fetched_at"`
}

func DefaultSettings() Settings {
	return Settings{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		AutoSound:           true,
		PushAlerts:          true,
		Volume:              DefaultVolume,
		DefaultSound:        DefaultSoundName,
	}
}

func ClampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// VolumeFromFloat clamps a wire volume into [0,100] before truncating it, so
// huge or negative values never overflow the int conversion.
func VolumeFromFloat(f float64) int {
	switch {
	case math.IsNaN(f):
		return DefaultVolume
	case f <= 0:
		return 0
	case f >= 100:
		return 100
	}
	return int(f)
}

func ClampThreshold(f float64) float64 {
	if math.IsNaN(f) {
		return DefaultConfidenceThreshold
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Normalize clamps volume and threshold into their valid ranges.
func (s Settings) Normalize() Settings {
	s.Volume = ClampVolume(s.Volume)
	s.ConfidenceThreshold = ClampThreshold(s.ConfidenceThreshold)
	if s.DefaultSound == "" {
		s.DefaultSound = DefaultSoundName
	}
	return s
}
