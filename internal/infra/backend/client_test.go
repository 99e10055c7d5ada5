package backend_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"farmguard/internal/domain"
	"farmguard/internal/infra"
	"farmguard/internal/infra/backend"
)

func TestClient_NextCommand(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"command", `{"command":"MOTOR_ON"}`, "MOTOR_ON"},
		{"null", `{"command":null}`, ""},
		{"absent", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/device/command/farm_001" {
					http.Error(w, "not found", http.StatusNotFound)
					return
				}
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := backend.NewClient(server.URL, "farm_001")
			got, err := client.NextCommand(context.Background())
			if err != nil {
				t.Fatalf("NextCommand error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClient_NonOKIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "farm_001")
	err := client.Heartbeat(context.Background())

	var statusErr *backend.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusAccepted {
		t.Fatalf("error: got %v, want StatusError 202", err)
	}
	if !errors.Is(err, backend.ErrUnexpectedStatus) {
		t.Error("expected ErrUnexpectedStatus")
	}
}

func TestClient_FetchSettings(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.Settings
	}{
		{
			name: "all fields",
			body: `{"settings":{"confidenceThreshold":0.7,"autoSound":false,"pushAlerts":false,"volume":40,"defaultSound":"bell.wav"}}`,
			want: domain.Settings{ConfidenceThreshold: 0.7, AutoSound: false, PushAlerts: false, Volume: 40, DefaultSound: "bell.wav"},
		},
		{
			name: "absent fields use defaults",
			body: `{"settings":{"volume":60}}`,
			want: domain.Settings{ConfidenceThreshold: 0.5, AutoSound: true, PushAlerts: true, Volume: 60, DefaultSound: "alert.wav"},
		},
		{
			name: "out of range clamped",
			body: `{"settings":{"confidenceThreshold":-1,"volume":250}}`,
			want: domain.Settings{ConfidenceThreshold: 0, AutoSound: true, PushAlerts: true, Volume: 100, DefaultSound: "alert.wav"},
		},
		{
			name: "huge volume saturates",
			body: `{"settings":{"volume":1e20}}`,
			want: domain.Settings{ConfidenceThreshold: 0.5, AutoSound: true, PushAlerts: true, Volume: 100, DefaultSound: "alert.wav"},
		},
		{
			name: "huge negative volume saturates",
			body: `{"settings":{"volume":-1e20}}`,
			want: domain.Settings{ConfidenceThreshold: 0.5, AutoSound: true, PushAlerts: true, Volume: 0, DefaultSound: "alert.wav"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			got, err := backend.NewClient(server.URL, "farm_001").FetchSettings(context.Background())
			if err != nil {
				t.Fatalf("FetchSettings error: %v", err)
			}
			if got.FetchedAt.IsZero() {
				t.Error("fetch time not set")
			}
			got.FetchedAt = time.Time{}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClient_Reports(t *testing.T) {
	bodies := map[string]map[string]any{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		bodies[r.URL.Path] = body
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "farm_001")
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	if err := client.ReportRelayState(ctx, domain.RelayOn); err != nil {
		t.Fatalf("ReportRelayState error: %v", err)
	}
	if err := client.Notify(ctx, domain.DetectionEvent{Confidence: 0.82, Time: at}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if err := client.ReportSounds(ctx, nil); err != nil {
		t.Fatalf("ReportSounds error: %v", err)
	}

	if got := bodies["/device/motor"]["state"]; got != "ON" {
		t.Errorf("motor state: got %v", got)
	}
	detection := bodies["/device/detection"]
	if detection["device_id"] != "farm_001" || detection["confidence"] != 0.82 || detection["time"] != "2026-03-01T10:30:00Z" {
		t.Errorf("detection body: %v", detection)
	}
	sounds, ok := bodies["/device/sounds"]["sounds"].([]any)
	if !ok || len(sounds) != 0 {
		t.Errorf("sounds must be an empty list, got %#v", bodies["/device/sounds"]["sounds"])
	}
}

func TestClient_DownloadSound(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawPath != "" && r.URL.RawPath != "/device/download/my%20bell.wav" {
			http.Error(w, "bad path", http.StatusBadRequest)
			return
		}
		if attempts.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("RIFFdata"))
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "farm_001")
	client.SetRetry(infra.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})

	data, err := client.DownloadSound(context.Background(), "my bell.wav")
	if err != nil {
		t.Fatalf("DownloadSound error: %v", err)
	}
	if string(data) != "RIFFdata" {
		t.Errorf("data: got %q", data)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts: got %d, want 2", attempts.Load())
	}
}

func TestClient_DownloadNotFoundNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "farm_001")
	client.SetRetry(infra.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})

	if _, err := client.DownloadSound(context.Background(), "ghost.wav"); !errors.Is(err, backend.ErrUnexpectedStatus) {
		t.Fatalf("error: got %v, want ErrUnexpectedStatus", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts: got %d, want 1", attempts.Load())
	}
}

func TestClient_DownloadTooLargeIsRejected(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write(bytes.Repeat([]byte("x"), 1025))
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "farm_001")
	client.SetMaxSoundBytes(1024)
	client.SetRetry(infra.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})

	data, err := client.DownloadSound(context.Background(), "huge.wav")
	if !errors.Is(err, backend.ErrSoundTooLarge) {
		t.Fatalf("error: got %v (%d bytes), want ErrSoundTooLarge", err, len(data))
	}
	if data != nil {
		t.Errorf("oversized body must not be returned, got %d bytes", len(data))
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts: got %d, want 1", attempts.Load())
	}
}

func TestClient_DownloadAtLimitAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 1024))
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "farm_001")
	client.SetMaxSoundBytes(1024)

	data, err := client.DownloadSound(context.Background(), "ok.wav")
	if err != nil || len(data) != 1024 {
		t.Fatalf("got %d bytes, %v", len(data), err)
	}
}

func TestClient_DownloadRetriesShareTimeout(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := backend.NewClientWithTimeouts(server.URL, "farm_001", time.Second, 200*time.Millisecond)
	client.SetRetry(infra.RetryConfig{MaxAttempts: 1000, InitialDelay: 20 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 1})

	start := time.Now()
	if _, err := client.DownloadSound(context.Background(), "bell.wav"); err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("download held the caller for %v, want about 200ms", elapsed)
	}
	if attempts.Load() < 2 {
		t.Errorf("attempts: got %d, want retries within the timeout", attempts.Load())
	}
}
