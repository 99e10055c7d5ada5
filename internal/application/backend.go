package application

import (
	"context"

	"farmguard/internal/domain"
)

// CommandSource yields at most one pending command token per call. An empty
// token with a nil error means nothing is pending.
type CommandSource interface {
	NextCommand(ctx context.Context) (string, error)
}

type StateReporter interface {
	ReportRelayState(ctx context.Context, state domain.RelayState) error
}

type SettingsSource interface {
	FetchSettings(ctx context.Context) (domain.Settings, error)
}

type InventoryReporter interface {
	ReportSounds(ctx context.Context, sounds []string) error
}

type AssetFetcher interface {
	DownloadSound(ctx context.Context, name string) ([]byte, error)
}

type HeartbeatSender interface {
	Heartbeat(ctx context.Context) error
}
