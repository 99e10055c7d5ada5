package application

import "farmguard/internal/domain"

const DefaultAlertHits = 3

type DebounceState int

const (
	DebounceArmed DebounceState = iota
	DebounceCounting
	DebounceConfirmed
)

func (s DebounceState) String() string {
	switch s {
	case DebounceArmed:
		return "armed"
	case DebounceCounting:
		return "counting"
	case DebounceConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Debouncer turns per-frame detections into one confirmed event per motion
// episode. Every qualifying detection adds one hit; the counter is not reset
// by frames without qualifying detections, only by a new episode.
type Debouncer struct {
	target    string
	threshold int

	episode string
	hits    int
	alerted bool
}

func NewDebouncer(target string, hits int) *Debouncer {
	if hits < 1 {
		hits = DefaultAlertHits
	}
	return &Debouncer{target: target, threshold: hits}
}

// Reset starts a new motion episode.
func (d *Debouncer) Reset(episode string) {
	d.episode = episode
	d.hits = 0
	d.alerted = false
}

// Observe feeds one frame into the episode. It returns the detection that
// confirmed the episode and true exactly once per episode.
func (d *Debouncer) Observe(frame domain.Frame, minConfidence float64) (domain.Detection, bool) {
	for _, det := range frame.Detections {
		if d.alerted {
			return domain.Detection{}, false
		}
		if !det.Matches(d.target) || det.Confidence < minConfidence {
			continue
		}
		d.hits++
		if d.hits >= d.threshold {
			d.alerted = true
			return det, true
		}
	}
	return domain.Detection{}, false
}

func (d *Debouncer) State() DebounceState {
	switch {
	case d.alerted:
		return DebounceConfirmed
	case d.hits > 0:
		return DebounceCounting
	default:
		return DebounceArmed
	}
}

func (d *Debouncer) Hits() int {
	return d.hits
}

func (d *Debouncer) Episode() string {
	return d.episode
}
