//go:build gocv
// +build gocv

package detector

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"farmguard/internal/domain"
)

const inputSize = 640

type GoCVConfig struct {
	Source string
	Model  string
	Labels string
}

// GoCVDetector runs a YOLOv8 ONNX model through OpenCV's DNN module on
// frames read from the camera stream.
type GoCVDetector struct {
	cfg    GoCVConfig
	logger *slog.Logger
}

func NewGoCVDetector(cfg GoCVConfig, logger *slog.Logger) *GoCVDetector {
	return &GoCVDetector{cfg: cfg, logger: logger}
}

func (d *GoCVDetector) Run(ctx context.Context, threshold float64) (<-chan domain.Frame, error) {
	labels, err := LoadLabels(d.cfg.Labels)
	if err != nil {
		return nil, err
	}

	net := gocv.ReadNet(d.cfg.Model, "")
	if net.Empty() {
		return nil, fmt.Errorf("loading model %s", d.cfg.Model)
	}

	capture, err := gocv.OpenVideoCapture(d.cfg.Source)
	if err != nil {
		net.Close()
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	frames := make(chan domain.Frame)
	go func() {
		defer close(frames)
		defer net.Close()
		defer capture.Close()

		img := gocv.NewMat()
		defer img.Close()

		var seq uint64
		for ctx.Err() == nil {
			if ok := capture.Read(&img); !ok || img.Empty() {
				d.logger.Warn("stream read failed")
				return
			}
			seq++

			dets, err := d.infer(net, img, labels, threshold)
			if err != nil {
				d.logger.Warn("inference failed", "error", err)
				continue
			}

			select {
			case frames <- domain.Frame{Seq: seq, Detections: dets}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, nil
}

func (d *GoCVDetector) infer(net gocv.Net, img gocv.Mat, labels []string, threshold float64) ([]domain.Detection, error) {
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(inputSize, inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	net.SetInput(blob, "")
	out := net.Forward("")
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading output: %w", err)
	}
	return ParseYOLO(data, dims[2], labels, threshold), nil
}
