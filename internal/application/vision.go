package application

import (
	"context"
	"time"

	"farmguard/internal/domain"
)

// MotionSource opens motion-event subscriptions on the camera.
type MotionSource interface {
	Connect(ctx context.Context) (MotionSubscription, error)
}

type MotionSubscription interface {
	// Pull waits up to timeout for motion notifications and returns at most limit.
	Pull(ctx context.Context, timeout time.Duration, limit int) ([]domain.MotionNotification, error)
	Close() error
}

// Detector runs inference over the camera stream. The returned channel yields
// one Frame per processed video frame and is closed when the stream ends or
// ctx is cancelled.
type Detector interface {
	Run(ctx context.Context, confidenceThreshold float64) (<-chan domain.Frame, error)
}
