package domain

import "time"

// AgentStatus is a point-in-time view of the agent exposed to operators.
type AgentStatus struct {
	DeviceID       string               `json:"device_id"`
	Running        bool                 `json:"running"`
	StartedAt      time.Time            `json:"started_at"`
	Settings       Settings             `json:"settings"`
	CurrentSound   string               `json:"current_sound"`
	OverrideSound  string               `json:"override_sound,omitempty"`
	OverrideUntil  *time.Time           `json:"override_until,omitempty"`
	Relays         map[Relay]RelayState `json:"relays"`
	Camera         string               `json:"camera"`
	LastMotionPull *time.Time           `json:"last_motion_pull,omitempty"`
	AlertActive    bool                 `json:"alert_active"`
	AlertID        string               `json:"alert_id,omitempty"`
}
