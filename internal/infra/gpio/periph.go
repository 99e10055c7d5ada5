package gpio

import (
	"fmt"
	"log/slog"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"farmguard/internal/domain"
)

// PeriphDriver drives relay pins through periph.io. Pins are looked up by
// name ("GPIO18", "18") on first use.
type PeriphDriver struct {
	logger *slog.Logger

	mu   sync.Mutex
	pins map[string]pgpio.PinIO
}

func NewPeriphDriver(logger *slog.Logger) (*PeriphDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialising periph host: %w", err)
	}
	return &PeriphDriver{
		logger: logger,
		pins:   make(map[string]pgpio.PinIO),
	}, nil
}

func (d *PeriphDriver) SetOutput(pin string, level domain.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pins[pin]
	if !ok {
		p = gpioreg.ByName(pin)
		if p == nil {
			return fmt.Errorf("unknown gpio pin %q", pin)
		}
		d.pins[pin] = p
	}

	if err := p.Out(pgpio.Level(level)); err != nil {
		return fmt.Errorf("driving %s %s: %w", pin, level, err)
	}
	d.logger.Debug("gpio output", "pin", pin, "level", level)
	return nil
}

// Close halts every pin the driver touched.
func (d *PeriphDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for name, p := range d.pins {
		if err := p.Halt(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("halting %s: %w", name, err)
		}
	}
	d.pins = map[string]pgpio.PinIO{}
	return firstErr
}
