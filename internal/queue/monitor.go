package queue

import (
	"context"
	"log/slog"
	"time"
)

const stalledBatchSize = 100

// Monitor reclaims jobs whose lock expired and removes jobs past retention.
type Monitor struct {
	queue         *Queue
	stallInterval time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
}

// NewMonitor creates a Monitor for q
func NewMonitor(q *Queue, stallInterval, sweepInterval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		queue:         q,
		stallInterval: stallInterval,
		sweepInterval: sweepInterval,
		logger:        logger,
	}
}

// Run blocks until ctx is done
func (m *Monitor) Run(ctx context.Context) {
	stallTicker := time.NewTicker(m.stallInterval)
	defer stallTicker.Stop()
	sweepTicker := time.NewTicker(m.sweepInterval)
	defer sweepTicker.Stop()

	m.logger.Info("Queue monitor started",
		slog.Duration("stall_interval", m.stallInterval),
		slog.Duration("sweep_interval", m.sweepInterval),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Queue monitor stopped")
			return
		case <-stallTicker.C:
			if err := m.CheckStalled(ctx); err != nil {
				m.logger.Error("Stalled job check failed", slog.Any("error", err))
				m.queue.Error(err)
			}
		case <-sweepTicker.C:
			if err := m.Sweep(ctx); err != nil {
				m.logger.Error("Job sweep failed", slog.Any("error", err))
				m.queue.Error(err)
			}
		}
	}
}

// CheckStalled requeues stalled jobs that have attempts left and fails the rest
func (m *Monitor) CheckStalled(ctx context.Context) error {
	jobs, err := m.queue.store.Stalled(ctx, stalledBatchSize)
	if err != nil {
		return err
	}

	for i := range jobs {
		job := &jobs[i]
		m.logger.Warn("Job stalled",
			slog.String("job_id", job.JobID),
			slog.Int("attempts", job.Attempts),
		)

		if job.CanRetry() {
			err = m.queue.retry(ctx, job, StalledReason)
		} else {
			err = m.queue.fail(ctx, job, StalledReason)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Sweep deletes terminal jobs whose retention has passed
func (m *Monitor) Sweep(ctx context.Context) error {
	n, err := m.queue.store.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Info("Expired jobs removed", slog.Int64("count", n))
	}
	return nil
}
