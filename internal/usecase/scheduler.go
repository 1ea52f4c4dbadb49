package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"coveragescan/internal/domain"
	"coveragescan/internal/ports"
)

// Minimum elapsed time per frequency. Each sits slightly under the nominal
// period so scheduler jitter cannot push a run to the next trigger.
var minElapsed = map[domain.Frequency]time.Duration{
	domain.FreqHourly:  54 * time.Minute,
	domain.FreqEvery6h: 5*time.Hour + 30*time.Minute,
	domain.FreqDaily:   23 * time.Hour,
	domain.FreqWeekly:  167 * time.Hour,
}

// IsDue reports whether a source should run now. Inactive sources are never
// due; never-run sources always are.
func IsDue(source domain.Source, now time.Time) bool {
	if !source.Active {
		return false
	}
	if source.LastRunAt == nil {
		return true
	}

	threshold, ok := minElapsed[source.Frequency]
	if !ok {
		threshold = minElapsed[domain.FreqDaily]
	}
	return now.Sub(*source.LastRunAt) >= threshold
}

// Scheduler selects due sources and writes back per-run bookkeeping. The
// failure counter is a simple finite-state machine: active, active with
// failures, deactivated once the threshold is crossed. Only external
// reconfiguration reactivates a source.
type Scheduler struct {
	sources          ports.SourceRepository
	batchSize        int
	failureThreshold int
	logger           *slog.Logger
}

// NewScheduler wires the source repository with batch and threshold bounds.
func NewScheduler(sources ports.SourceRepository, batchSize, failureThreshold int, logger *slog.Logger) *Scheduler {
	if batchSize <= 0 {
		batchSize = 10
	}
	if failureThreshold <= 0 {
		failureThreshold = 10
	}
	return &Scheduler{
		sources:          sources,
		batchSize:        batchSize,
		failureThreshold: failureThreshold,
		logger:           logger,
	}
}

// DueSources returns at most the configured batch of sources due now, oldest
// run first (the repository orders them).
func (s *Scheduler) DueSources(ctx context.Context, kinds []string, now time.Time) ([]domain.Source, error) {
	active, err := s.sources.ActiveSources(ctx, kinds)
	if err != nil {
		return nil, fmt.Errorf("load active sources: %w", err)
	}

	due := make([]domain.Source, 0, s.batchSize)
	for _, src := range active {
		if !IsDue(src, now) {
			continue
		}
		due = append(due, src)
		if len(due) == s.batchSize {
			break
		}
	}
	return due, nil
}

// RecordSuccess resets the failure counter and stores the outcome note.
func (s *Scheduler) RecordSuccess(ctx context.Context, source domain.Source, at time.Time, note string) error {
	if err := s.sources.RecordRun(ctx, source.ID, at, "ok", note, 0, true); err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return nil
}

// RecordFailure increments the failure counter and deactivates the source
// once the threshold is reached.
func (s *Scheduler) RecordFailure(ctx context.Context, source domain.Source, at time.Time, note string) error {
	failures := source.FailureCount + 1
	active := failures < s.failureThreshold

	if !active && s.logger != nil {
		s.logger.Warn("source deactivated after consecutive failures",
			"source", source.Name, "failures", failures)
	}

	if err := s.sources.RecordRun(ctx, source.ID, at, "failed", note, failures, active); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}
