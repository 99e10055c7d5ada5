package application

import (
	"context"
	"log/slog"
	"time"
)

// Task is a periodic job run by the Scheduler.
type Task struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error

	last time.Time
}

// Scheduler runs periodic tasks from the main loop. It does not start
// goroutines: RunDue is called once per cycle and runs every due task in
// registration order. A task that never ran is due immediately.
type Scheduler struct {
	tasks  []*Task
	now    func() time.Time
	logger *slog.Logger
}

func NewScheduler(logger *slog.Logger, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{now: now, logger: logger}
}

func (s *Scheduler) Add(name string, every time.Duration, run func(ctx context.Context) error) {
	s.tasks = append(s.tasks, &Task{Name: name, Every: every, Run: run})
}

func (s *Scheduler) RunDue(ctx context.Context) {
	for _, task := range s.tasks {
		now := s.now()
		if !task.last.IsZero() && now.Sub(task.last) < task.Every {
			continue
		}
		task.last = now

		if err := task.Run(ctx); err != nil {
			s.logger.Warn("periodic task failed", "task", task.Name, "error", err)
		}
	}
}
