package domain

import (
	"fmt"
	"strings"
)

type Relay string

const (
	RelaySiren Relay = "siren"
	RelayMotor Relay = "motor"
)

type RelayState string

const (
	RelayOn  RelayState = "ON"
	RelayOff RelayState = "OFF"
)

func (s RelayState) Valid() bool {
	return s == RelayOn || s == RelayOff
}

func ParseRelayState(s string) (RelayState, bool) {
	state := RelayState(strings.ToUpper(strings.TrimSpace(s)))
	return state, state.Valid()
}

// Level is the electrical level of an output pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

type Polarity int

const (
	ActiveHigh Polarity = iota
	ActiveLow
)

func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active_high", "high":
		return ActiveHigh, nil
	case "active_low", "low":
		return ActiveLow, nil
	default:
		return ActiveHigh, fmt.Errorf("unknown polarity %q", s)
	}
}

func (p Polarity) String() string {
	if p == ActiveLow {
		return "active_low"
	}
	return "active_high"
}

// Level returns the pin level that puts a relay of this polarity in state.
func (p Polarity) Level(state RelayState) Level {
	on := state == RelayOn
	if p == ActiveLow {
		return Level(!on)
	}
	return Level(on)
}
