package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kon-rad/wuhistory/internal/workunit"
)

// Inserter is the write side of the history repository.
type Inserter interface {
	Insert(ctx context.Context, ev workunit.CompletionEvent) (int64, error)
}

type WorkerStats struct {
	Inserted   int64 `json:"inserted"`
	Duplicates int64 `json:"duplicates"`
}

type Worker struct {
	logger *slog.Logger
	repo   Inserter

	inserted   atomic.Int64
	duplicates atomic.Int64
}

func NewWorker(logger *slog.Logger, repo Inserter) *Worker {
	return &Worker{
		logger: logger,
		repo:   repo,
	}
}

func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Inserted:   w.inserted.Load(),
		Duplicates: w.duplicates.Load(),
	}
}

// Run drains events until the channel is closed, writing them in batches of
// up to MaxBatchSize or whenever FlushWindow elapses. A write error stops
// the worker.
func (w *Worker) Run(events <-chan Event) error {
	ticker := time.NewTicker(FlushWindow)
	defer ticker.Stop()

	buffer := make([]Event, 0, MaxBatchSize)

	flush := func(batch []Event) error {
		if len(batch) == 0 {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second*time.Duration(len(batch)))
		defer cancel()

		var written, skipped int64
		for _, ev := range batch {
			n, err := w.repo.Insert(ctx, ev.Completion)
			if err != nil {
				return fmt.Errorf("insert event %s: %w", ev.ID, err)
			}
			if n == 0 {
				skipped++
				w.logger.Debug("duplicate completion ignored",
					"event_id", ev.ID.String(),
					"source", string(ev.Source),
					"project", ev.Completion.ProjectID,
					"run", ev.Completion.ProjectRun,
					"clone", ev.Completion.ProjectClone,
					"gen", ev.Completion.ProjectGen,
				)
				continue
			}
			written += n
		}
		w.inserted.Add(written)
		w.duplicates.Add(skipped)
		w.logger.Debug("ingest batch flushed", "events", len(batch), "inserted", written, "duplicates", skipped)
		return nil
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return flush(buffer)
			}
			buffer = append(buffer, ev)
			if len(buffer) >= MaxBatchSize {
				if err := flush(buffer); err != nil {
					w.logger.Error("ingest flush failed", "error", err)
					return err
				}
				buffer = buffer[:0]
			}
		case <-ticker.C:
			if len(buffer) == 0 {
				continue
			}
			if err := flush(buffer); err != nil {
				w.logger.Error("ingest timed flush failed", "error", err)
				return err
			}
			buffer = buffer[:0]
		}
	}
}
