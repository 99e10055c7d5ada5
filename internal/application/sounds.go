package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrInvalidSoundName = errors.New("invalid sound name")

// SoundManager keeps the local sound directory and mirrors it to the backend.
type SoundManager struct {
	dir      string
	fallback string
	fetcher  AssetFetcher
	reporter InventoryReporter
	settings *SettingsStore
	logger   *slog.Logger
}

func NewSoundManager(
	dir string,
	fallback string,
	fetcher AssetFetcher,
	reporter InventoryReporter,
	settings *SettingsStore,
	logger *slog.Logger,
) *SoundManager {
	return &SoundManager{
		dir:      dir,
		fallback: fallback,
		fetcher:  fetcher,
		reporter: reporter,
		settings: settings,
		logger:   logger,
	}
}

// SanitizeSoundName strips any directory part so a name can never escape the
// sound directory.
func SanitizeSoundName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "." || base == "/" || base == ".." || base == "" || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSoundName, name)
	}
	return base, nil
}

func (m *SoundManager) Path(name string) string {
	return filepath.Join(m.dir, name)
}

func (m *SoundManager) Exists(name string) bool {
	if name == "" {
		return false
	}
	info, err := os.Stat(m.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// ListLocal returns the regular files in the sound directory, sorted. A
// missing directory yields an empty list.
func (m *SoundManager) ListLocal() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return []string{}, fmt.Errorf("reading sound dir: %w", err)
	}

	sounds := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		sounds = append(sounds, entry.Name())
	}
	sort.Strings(sounds)

	return sounds, nil
}

// PublishInventory reports the local sound list to the backend.
func (m *SoundManager) PublishInventory(ctx context.Context) error {
	sounds, err := m.ListLocal()
	if err != nil {
		m.logger.Warn("listing sounds", "error", err)
	}

	if err := m.reporter.ReportSounds(ctx, sounds); err != nil {
		return fmt.Errorf("reporting sounds: %w", err)
	}

	m.logger.Info("sound list synced", "count", len(sounds))
	return nil
}

// Download fetches a sound asset into the sound directory and republishes the
// inventory. The file is written to a hidden temp file and renamed into place,
// so a failed download never leaves a partial file behind.
func (m *SoundManager) Download(ctx context.Context, name string) error {
	safe, err := SanitizeSoundName(name)
	if err != nil {
		return err
	}

	data, err := m.fetcher.DownloadSound(ctx, safe)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", safe, err)
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("creating sound dir: %w", err)
	}

	if err := writeFileAtomic(m.Path(safe), data); err != nil {
		return fmt.Errorf("writing %s: %w", safe, err)
	}

	m.logger.Info("sound downloaded", "sound", safe, "bytes", len(data))

	if err := m.PublishInventory(ctx); err != nil {
		m.logger.Warn("publishing sound list", "error", err)
	}

	return nil
}

// Delete removes a local sound. If it was the current sound, the current
// sound falls back to the backend default, then the fallback file, then the
// first remaining file, then none. The inventory is republished regardless
// of the outcome.
func (m *SoundManager) Delete(ctx context.Context, name string) error {
	defer func() {
		if err := m.PublishInventory(ctx); err != nil {
			m.logger.Warn("publishing sound list", "error", err)
		}
	}()

	safe, err := SanitizeSoundName(name)
	if err != nil {
		return err
	}

	if err := os.Remove(m.Path(safe)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", safe, err)
	}
	m.logger.Info("sound deleted", "sound", safe)

	if m.settings.ResolveCurrentSound() != safe {
		return nil
	}

	next := m.resolveReplacement()
	m.settings.SetCurrentSound(next)
	m.logger.Info("current sound replaced", "deleted", safe, "current", next)

	return nil
}

func (m *SoundManager) resolveReplacement() string {
	if def := m.settings.Settings().DefaultSound; m.Exists(def) {
		return def
	}
	if m.Exists(m.fallback) {
		return m.fallback
	}
	sounds, err := m.ListLocal()
	if err != nil || len(sounds) == 0 {
		return ""
	}
	return sounds[0]
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
