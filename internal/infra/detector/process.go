package detector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"farmguard/internal/domain"
)

const maxLineBytes = 1 << 20

type ProcessConfig struct {
	Command string
	Args    []string
	Source  string
	Model   string
}

// ProcessDetector runs an inference worker as a child process. The worker
// prints one JSON frame per line on stdout:
//
//	{"seq": 12, "detections": [{"class": "monkey", "confidence": 0.81}]}
//
// Arguments may contain {source}, {model} and {confidence} placeholders.
type ProcessDetector struct {
	cfg    ProcessConfig
	logger *slog.Logger
}

func NewProcessDetector(cfg ProcessConfig, logger *slog.Logger) *ProcessDetector {
	return &ProcessDetector{cfg: cfg, logger: logger}
}

// Run starts the worker. The returned channel is closed when the worker
// exits; cancelling ctx stops it.
func (d *ProcessDetector) Run(ctx context.Context, threshold float64) (<-chan domain.Frame, error) {
	if d.cfg.Command == "" {
		return nil, fmt.Errorf("detector command not configured")
	}

	replacer := strings.NewReplacer(
		"{source}", d.cfg.Source,
		"{model}", d.cfg.Model,
		"{confidence}", strconv.FormatFloat(threshold, 'f', 2, 64),
	)
	args := make([]string, len(d.cfg.Args))
	for i, a := range d.cfg.Args {
		args[i] = replacer.Replace(a)
	}

	cmd := exec.CommandContext(ctx, d.cfg.Command, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = 3 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting detector: %w", err)
	}
	d.logger.Info("detector started", "command", d.cfg.Command, "pid", cmd.Process.Pid)

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			d.logger.Debug("detector stderr", "line", scanner.Text())
		}
	}()

	frames := make(chan domain.Frame)
	readerDone := make(chan struct{})
	var seq uint64

	go func() {
		defer close(readerDone)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var frame domain.Frame
			if err := json.Unmarshal([]byte(line), &frame); err != nil {
				d.logger.Debug("skipping detector line", "line", line, "error", err)
				continue
			}
			seq++
			if frame.Seq == 0 {
				frame.Seq = seq
			}

			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Wait must run once ctx is done so WaitDelay can kill a worker that
	// ignores the interrupt and close its stdout.
	go func() {
		select {
		case <-readerDone:
		case <-ctx.Done():
		}

		err := cmd.Wait()
		<-readerDone
		close(frames)

		if err != nil && ctx.Err() == nil {
			d.logger.Warn("detector exited", "error", err)
		}
		d.logger.Debug("detector stopped", "frames", seq)
	}()

	return frames, nil
}
