package gpio

import (
	"log/slog"
	"sync"

	"farmguard/internal/domain"
)

// LogDriver records output levels and logs them instead of touching
// hardware. It is used off-device and in tests.
type LogDriver struct {
	logger *slog.Logger

	mu     sync.Mutex
	levels map[string]domain.Level
	writes int
}

func NewLogDriver(logger *slog.Logger) *LogDriver {
	return &LogDriver{logger: logger, levels: make(map[string]domain.Level)}
}

func (d *LogDriver) SetOutput(pin string, level domain.Level) error {
	d.mu.Lock()
	d.levels[pin] = level
	d.writes++
	d.mu.Unlock()

	d.logger.Info("gpio output", "pin", pin, "level", level)
	return nil
}

// Level returns the last level written to pin.
func (d *LogDriver) Level(pin string) (domain.Level, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.levels[pin]
	return l, ok
}

func (d *LogDriver) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func (d *LogDriver) Close() error {
	return nil
}
