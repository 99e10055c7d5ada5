//go:build !gocv
// +build !gocv

package detector

import (
	"context"
	"fmt"
	"log/slog"

	"farmguard/internal/domain"
)

type GoCVConfig struct {
	Source string
	Model  string
	Labels string
}

// GoCVDetector stub when OpenCV is not available
type GoCVDetector struct {
	logger *slog.Logger
}

func NewGoCVDetector(_ GoCVConfig, logger *slog.Logger) *GoCVDetector {
	return &GoCVDetector{logger: logger}
}

func (d *GoCVDetector) Run(_ context.Context, _ float64) (<-chan domain.Frame, error) {
	return nil, fmt.Errorf("gocv detector not available: rebuild with -tags gocv")
}
