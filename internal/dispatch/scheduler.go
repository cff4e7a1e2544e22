package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs the dispatcher on a fixed interval. Deployments that drive
// the pipeline from an external cron instead leave the scheduler stopped and
// hit the cron endpoint.
type Scheduler struct {
	dispatcher *Dispatcher
	interval   time.Duration
	logger     *slog.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewScheduler(dispatcher *Dispatcher, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger.With("component", "scheduler"),
	}
}

// Start launches the scheduling loop in a background goroutine. The first
// pass runs immediately so a restart does not wait a full interval to pick
// up items that came due while the process was down.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	s.logger.Info("scheduler started", "interval", s.interval)
}

// Stop cancels the loop and waits for any in-flight pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	if err := s.dispatcher.Run(ctx); err != nil {
		s.logger.Error("pipeline pass finished with errors", "error", err)
	}
}
