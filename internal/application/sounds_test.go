package application_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"farmguard/internal/application"
	"farmguard/internal/domain"
)

func newSoundFixture(t *testing.T, files ...string) (*application.SoundManager, *application.SettingsStore, *fakeBackend, string) {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("writing %s: %v", f, err)
		}
	}

	backend := newFakeBackend()
	store := application.NewSettingsStore(backend, discardLogger())
	sounds := application.NewSoundManager(dir, "alert.wav", backend, backend, store, discardLogger())
	return sounds, store, backend, dir
}

func TestSanitizeSoundName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"bell.wav", "bell.wav", false},
		{"../../etc/passwd", "passwd", false},
		{`..\..\boot.ini`, "boot.ini", false},
		{"/abs/path/horn.wav", "horn.wav", false},
		{"..", "", true},
		{"", "", true},
		{".hidden", "", true},
	}

	for _, tt := range tests {
		got, err := application.SanitizeSoundName(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSoundManager_ListLocalMissingDir(t *testing.T) {
	backend := newFakeBackend()
	store := application.NewSettingsStore(backend, discardLogger())
	sounds := application.NewSoundManager(filepath.Join(t.TempDir(), "nope"), "alert.wav", backend, backend, store, discardLogger())

	list, err := sounds.ListLocal()
	if err != nil {
		t.Fatalf("ListLocal error: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("got %v, want empty list", list)
	}
}

func TestSoundManager_Download(t *testing.T) {
	sounds, _, backend, dir := newSoundFixture(t)
	backend.assets["bell.wav"] = []byte("bell-bytes")

	if err := sounds.Download(context.Background(), "../bell.wav"); err != nil {
		t.Fatalf("Download error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "bell.wav"))
	if err != nil || string(data) != "bell-bytes" {
		t.Fatalf("downloaded file: %q, %v", data, err)
	}

	inv := backend.Inventories()
	if len(inv) != 1 || !reflect.DeepEqual(inv[0], []string{"bell.wav"}) {
		t.Errorf("inventory: got %v", inv)
	}
}

func TestSoundManager_DownloadFailureLeavesNoFile(t *testing.T) {
	sounds, _, backend, dir := newSoundFixture(t)

	if err := sounds.Download(context.Background(), "missing.wav"); err == nil {
		t.Fatal("expected download error")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty dir, found %d entries", len(entries))
	}
	if len(backend.Inventories()) != 0 {
		t.Error("inventory should not be republished on failed download")
	}
}

func TestSoundManager_DeleteFallbackOrder(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"backend default", []string{"current.wav", "default.wav", "alert.wav", "a.wav"}, "default.wav"},
		{"hard-coded fallback", []string{"current.wav", "alert.wav", "a.wav"}, "alert.wav"},
		{"first remaining", []string{"current.wav", "b.wav", "a.wav"}, "a.wav"},
		{"none", []string{"current.wav"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sounds, store, backend, _ := newSoundFixture(t, tt.files...)
			backend.SetSettings(domain.Settings{Volume: 50, DefaultSound: "default.wav"}, nil)
			if err := store.Sync(context.Background()); err != nil {
				t.Fatalf("Sync error: %v", err)
			}
			store.SetOverride("current.wav")

			if err := sounds.Delete(context.Background(), "current.wav"); err != nil {
				t.Fatalf("Delete error: %v", err)
			}

			if got := store.ResolveCurrentSound(); got != tt.want {
				t.Errorf("current sound: got %q, want %q", got, tt.want)
			}
			if len(backend.Inventories()) != 1 {
				t.Errorf("inventory publishes: got %d, want 1", len(backend.Inventories()))
			}
		})
	}
}

func TestSoundManager_DeleteAlwaysRepublishes(t *testing.T) {
	sounds, store, backend, _ := newSoundFixture(t, "a.wav")
	store.SetCurrentSound("a.wav")

	if err := sounds.Delete(context.Background(), ".."); !errors.Is(err, application.ErrInvalidSoundName) {
		t.Fatalf("error: got %v, want ErrInvalidSoundName", err)
	}
	if err := sounds.Delete(context.Background(), "ghost.wav"); err != nil {
		t.Fatalf("deleting absent file: %v", err)
	}

	if got := len(backend.Inventories()); got != 2 {
		t.Errorf("inventory publishes: got %d, want 2", got)
	}
	if got := store.ResolveCurrentSound(); got != "a.wav" {
		t.Errorf("current sound changed: %q", got)
	}
}
