package application

import (
	"context"

	"farmguard/internal/domain"
)

// OutputDriver sets the electrical level of a digital output pin.
type OutputDriver interface {
	SetOutput(pin string, level domain.Level) error
}

// RelaySwitch is the part of the actuator controller used by the alert.
type RelaySwitch interface {
	SetState(ctx context.Context, relay domain.Relay, state domain.RelayState) error
}
