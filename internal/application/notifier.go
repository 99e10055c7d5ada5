package application

import (
	"context"
	"errors"

	"farmguard/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, event domain.DetectionEvent) error
}

// MultiNotifier delivers an event to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event domain.DetectionEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
