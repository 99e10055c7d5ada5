package domain

import (
	"strings"
	"time"
)

// Detection is one classified object reported by the detector.
type Detection struct {
	ClassName  string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Frame is the detector output for a single video frame.
type Frame struct {
	Seq        uint64      `json:"seq"`
	Detections []Detection `json:"detections"`
}

// Matches reports whether the detection names the target class. Matching is a
// case-insensitive substring test so "Monkey_adult" matches "monkey".
func (d Detection) Matches(target string) bool {
	return strings.Contains(strings.ToLower(d.ClassName), strings.ToLower(target))
}

// MotionNotification is a motion event delivered by the camera.
type MotionNotification struct {
	Topic    string
	Source   string
	Received time.Time
}

// DetectionEvent is emitted once per motion episode when the debouncer confirms.
type DetectionEvent struct {
	DeviceID   string    `json:"device_id"`
	EpisodeID  string    `json:"episode_id"`
	ClassName  string    `json:"class"`
	Confidence float64   `json:"confidence"`
	Time       time.Time `json:"time"`
}
