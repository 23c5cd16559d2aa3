// Package saga records compensating actions for side effects a database
// transaction cannot roll back.
package saga

import (
	"context"
	"log/slog"
	"sync"
)

// Step is one side effect and the action that reverts it. Undo may be nil
// for steps with nothing to revert.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Log collects the undo actions of steps that succeeded
type Log struct {
	mu     sync.Mutex
	undos  []Step
	logger *slog.Logger
}

// New creates an empty Log
func New(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Do runs step and records its undo once it succeeds
func (l *Log) Do(ctx context.Context, step Step) error {
	if err := step.Do(ctx); err != nil {
		return err
	}
	if step.Undo != nil {
		l.mu.Lock()
		l.undos = append(l.undos, step)
		l.mu.Unlock()
	}
	return nil
}

// Len returns the number of recorded undo actions
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.undos)
}

// Compensate runs recorded undo actions newest first and clears the log.
// Undo failures are logged and do not stop the remaining undos.
func (l *Log) Compensate(ctx context.Context) {
	l.mu.Lock()
	undos := l.undos
	l.undos = nil
	l.mu.Unlock()

	for i := len(undos) - 1; i >= 0; i-- {
		step := undos[i]
		if err := step.Undo(ctx); err != nil {
			l.logger.Error("Compensation failed",
				slog.String("step", step.Name),
				slog.Any("error", err),
			)
			continue
		}
		l.logger.Info("Compensated step", slog.String("step", step.Name))
	}
}

// Forget drops recorded undo actions once their effects are committed
func (l *Log) Forget() {
	l.mu.Lock()
	l.undos = nil
	l.mu.Unlock()
}
