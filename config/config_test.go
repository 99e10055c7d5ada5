package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"farmguard/config"
)

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("device:\n  id: farm_001\nbackend:\n  url: https://example.test\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Relays.Siren.Pin != "GPIO18" {
		t.Errorf("siren pin: got %s, want GPIO18", cfg.Relays.Siren.Pin)
	}
	if cfg.Relays.Motor.Polarity != "active_low" {
		t.Errorf("motor polarity: got %s, want active_low", cfg.Relays.Motor.Polarity)
	}
	if cfg.Detection.Hits != 3 {
		t.Errorf("hits: got %d, want 3", cfg.Detection.Hits)
	}
	if cfg.Camera.MQTT.ClientID != "farmguard-farm_001" {
		t.Errorf("mqtt client id: got %s", cfg.Camera.MQTT.ClientID)
	}
	if got := config.Duration(cfg.Sounds.OverrideDuration, 0); got != 120*time.Second {
		t.Errorf("override duration: got %v, want 2m", got)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("FARMGUARD_BACKEND", "https://backend.test")

	cfg, err := config.Parse([]byte("device:\n  id: farm_002\nbackend:\n  url: ${FARMGUARD_BACKEND}\n"))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if cfg.Backend.URL != "https://backend.test" {
		t.Errorf("backend url: got %s", cfg.Backend.URL)
	}
}

func TestParse_RequiresDeviceID(t *testing.T) {
	if _, err := config.Parse([]byte("backend:\n  url: https://backend.test\n")); err == nil {
		t.Fatal("expected error for missing device id")
	}
}

func TestAlertDuration_Clamped(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 20 * time.Second},
		{"5s", 20 * time.Second},
		{"25s", 25 * time.Second},
		{"2m", 30 * time.Second},
		{"garbage", 20 * time.Second},
	}

	for _, tt := range tests {
		got := config.AlertConfig{Duration: tt.value}.AlertDuration()
		if got != tt.want {
			t.Errorf("AlertDuration(%q): got %v, want %v", tt.value, got, tt.want)
		}
	}
}
