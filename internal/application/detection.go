package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"farmguard/internal/domain"
)

const DefaultDetectionRunTimeout = 60 * time.Second

// DetectionRunner drives one bounded detection run per motion episode and
// turns the debounced result into an alert and a detection report.
type DetectionRunner struct {
	deviceID        string
	detector        Detector
	debouncer       *Debouncer
	settings        *SettingsStore
	alert           *AlertController
	notifier        Notifier
	runTimeout      time.Duration
	interleaveEvery time.Duration
	logger          *slog.Logger
}

func NewDetectionRunner(
	deviceID string,
	detector Detector,
	debouncer *Debouncer,
	settings *SettingsStore,
	alert *AlertController,
	notifier Notifier,
	runTimeout time.Duration,
	interleaveEvery time.Duration,
	logger *slog.Logger,
) *DetectionRunner {
	if runTimeout <= 0 {
		runTimeout = DefaultDetectionRunTimeout
	}
	if interleaveEvery <= 0 {
		interleaveEvery = time.Second
	}
	return &DetectionRunner{
		deviceID:        deviceID,
		detector:        detector,
		debouncer:       debouncer,
		settings:        settings,
		alert:           alert,
		notifier:        notifier,
		runTimeout:      runTimeout,
		interleaveEvery: interleaveEvery,
		logger:          logger,
	}
}

// Run processes one motion episode. interleave is called on a fixed cadence
// while frames are being consumed so command polling keeps running.
func (r *DetectionRunner) Run(ctx context.Context, note domain.MotionNotification, interleave func(ctx context.Context)) {
	episode := uuid.NewString()
	r.debouncer.Reset(episode)

	logger := r.logger.With("episode", episode)
	logger.Info("motion detected, running detector", "topic", note.Topic, "timeout", r.runTimeout)

	runCtx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	frames, err := r.detector.Run(runCtx, r.settings.Settings().ConfidenceThreshold)
	if err != nil {
		logger.Error("starting detector", "error", err)
		return
	}

	ticker := time.NewTicker(r.interleaveEvery)
	defer ticker.Stop()

	var count int
	defer func() {
		logger.Info("detection stopped", "frames", count, "hits", r.debouncer.Hits(), "state", r.debouncer.State())
	}()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			if interleave != nil {
				interleave(ctx)
			}
		case frame, ok := <-frames:
			if !ok {
				return
			}
			count++
			for _, det := range frame.Detections {
				logger.Debug("detected", "class", det.ClassName, "confidence", det.Confidence)
			}
			det, confirmed := r.debouncer.Observe(frame, r.settings.Settings().ConfidenceThreshold)
			if !confirmed {
				continue
			}
			r.confirm(ctx, logger, episode, det)
		}
	}
}

func (r *DetectionRunner) confirm(ctx context.Context, logger *slog.Logger, episode string, det domain.Detection) {
	logger.Info("target confirmed", "class", det.ClassName, "confidence", det.Confidence, "hits", r.debouncer.Hits())

	id, err := r.alert.Trigger(ctx, "detection")
	switch {
	case errors.Is(err, ErrAlertActive):
		logger.Info("alert already active", "alert_id", id)
	case errors.Is(err, ErrAutoSoundDisabled):
		logger.Info("auto sound disabled, not sounding alert")
	case err != nil:
		logger.Warn("starting alert", "error", err)
	}

	if !r.settings.Settings().PushAlerts {
		return
	}

	event := domain.DetectionEvent{
		DeviceID:   r.deviceID,
		EpisodeID:  episode,
		ClassName:  det.ClassName,
		Confidence: det.Confidence,
		Time:       time.Now().UTC(),
	}
	if err := r.notifier.Notify(ctx, event); err != nil {
		logger.Warn("reporting detection", "error", err)
	}
}
