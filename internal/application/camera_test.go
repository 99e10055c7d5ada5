package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"farmguard/internal/application"
	"farmguard/internal/domain"
)

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) Sleep(_ context.Context, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
}

func (r *sleepRecorder) Sleeps() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func TestCameraSession_FixedReconnectDelay(t *testing.T) {
	refused := errors.New("connection refused")
	source := &fakeMotionSource{connectErrs: []error{refused, refused, refused}}
	sleeper := &sleepRecorder{}
	camera := application.NewCameraSession(source, discardLogger(), application.WithSleep(sleeper.Sleep))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if camera.EnsureConnected(ctx) {
			t.Fatalf("attempt %d: expected failure", i+1)
		}
		if camera.State() != application.CameraDisconnected {
			t.Fatalf("attempt %d: state %s", i+1, camera.State())
		}
	}

	sleeps := sleeper.Sleeps()
	if len(sleeps) != 3 {
		t.Fatalf("sleeps: got %d, want 3", len(sleeps))
	}
	for i, d := range sleeps {
		if d != 3*time.Second {
			t.Errorf("sleep %d: got %v, want 3s", i, d)
		}
	}

	if !camera.EnsureConnected(ctx) {
		t.Fatal("expected fourth attempt to connect")
	}
	if camera.State() != application.CameraConnected {
		t.Errorf("state: got %s, want connected", camera.State())
	}
}

func TestCameraSession_PullFailureReconnects(t *testing.T) {
	source := &fakeMotionSource{pullErrs: []error{nil, errors.New("EOF")}}
	sleeper := &sleepRecorder{}
	camera := application.NewCameraSession(source, discardLogger(), application.WithSleep(sleeper.Sleep))
	ctx := context.Background()

	if !camera.EnsureConnected(ctx) {
		t.Fatal("connect failed")
	}

	if _, err := camera.PollMotion(ctx); err == nil {
		t.Fatal("expected pull error")
	}
	if camera.State() != application.CameraDisconnected {
		t.Errorf("state after pull failure: %s", camera.State())
	}
	if len(sleeper.Sleeps()) != 1 {
		t.Errorf("sleeps: got %d, want 1", len(sleeper.Sleeps()))
	}

	if !camera.EnsureConnected(ctx) {
		t.Fatal("reconnect failed")
	}
	if source.Connects() != 2 {
		t.Errorf("connects: got %d, want 2", source.Connects())
	}
}

func TestCameraSession_FlushesStaleEvents(t *testing.T) {
	source := &fakeMotionSource{}
	source.Push(domain.MotionNotification{Topic: "stale"})
	camera := application.NewCameraSession(source, discardLogger(), application.WithSleep((&sleepRecorder{}).Sleep))
	ctx := context.Background()

	if !camera.EnsureConnected(ctx) {
		t.Fatal("connect failed")
	}
	notes, err := camera.PollMotion(ctx)
	if err != nil {
		t.Fatalf("PollMotion error: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("stale events leaked: %v", notes)
	}

	source.Push(domain.MotionNotification{Topic: "fresh"})
	notes, err = camera.PollMotion(ctx)
	if err != nil || len(notes) != 1 || notes[0].Topic != "fresh" {
		t.Errorf("got %v, %v", notes, err)
	}
	if camera.LastPull().IsZero() {
		t.Error("last pull time not recorded")
	}
}

func TestCameraSession_PollWhileDisconnected(t *testing.T) {
	camera := application.NewCameraSession(&fakeMotionSource{}, discardLogger())

	if _, err := camera.PollMotion(context.Background()); err == nil {
		t.Error("expected error when not connected")
	}
	if err := camera.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
}
