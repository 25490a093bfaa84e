package ingest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/kon-rad/wuhistory/internal/db"
	"github.com/kon-rad/wuhistory/internal/history"
	"github.com/kon-rad/wuhistory/internal/protein"
	"github.com/kon-rad/wuhistory/internal/workunit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func openRepo(t *testing.T) *db.Repository {
	t.Helper()
	repo := db.New(protein.ProductionCalculator{}, nil, testLogger())
	if err := repo.Initialize(context.Background(), filepath.Join(t.TempDir(), "history.db3")); err != nil {
		t.Fatalf("initialize repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func testPayload(run int) CompletionPayload {
	assigned := time.Date(2012, 6, 1, 10, 0, 0, 0, time.UTC)
	slot := 1
	return CompletionPayload{
		ProjectID:      7610,
		ProjectRun:     run,
		ProjectClone:   4,
		ProjectGen:     12,
		Client:         ClientPayload{Name: "Rig", Server: "rig.local", Port: 36330},
		SlotID:         &slot,
		Username:       "donor",
		Team:           32,
		CoreVersion:    2.27,
		Result:         workunit.ResultFinishedUnit,
		Assigned:       assigned,
		Finished:       assigned.Add(5 * time.Hour),
		FramesObserved: 3,
		Frames: []FramePayload{
			{ID: 98, DurationSeconds: 180},
			{ID: 99, DurationSeconds: 181},
			{ID: 100, DurationSeconds: 179},
		},
	}
}

func mustEvent(t *testing.T, p CompletionPayload) Event {
	t.Helper()
	ev, err := NewEvent(p, SourceHTTP)
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	return ev
}

func TestTryEnqueueSaturation(t *testing.T) {
	t.Parallel()

	ch := make(chan Event, 1)
	if ok := TryEnqueue(ch, mustEvent(t, testPayload(1))); !ok {
		t.Fatalf("expected first enqueue to succeed")
	}
	if ok := TryEnqueue(ch, mustEvent(t, testPayload(2))); ok {
		t.Fatalf("expected second enqueue to fail when buffer is full")
	}
}

func TestWorkerFlushesOnWindow(t *testing.T) {
	t.Parallel()

	repo := openRepo(t)
	worker := NewWorker(testLogger(), repo)
	ch := make(chan Event, QueueCapacity)
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ch)
	}()

	ch <- mustEvent(t, testPayload(1))

	time.Sleep(650 * time.Millisecond)

	count, err := repo.Count(context.Background(), history.SelectAll)
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("history count = %d, want 1", count)
	}

	close(ch)
	if err := <-done; err != nil {
		t.Fatalf("worker returned error: %v", err)
	}
}

func TestWorkerCountsDuplicates(t *testing.T) {
	t.Parallel()

	repo := openRepo(t)
	worker := NewWorker(testLogger(), repo)
	ch := make(chan Event, QueueCapacity)
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ch)
	}()

	for i := 0; i < MaxBatchSize+10; i++ {
		ch <- mustEvent(t, testPayload(i%20))
	}
	close(ch)
	if err := <-done; err != nil {
		t.Fatalf("worker returned error: %v", err)
	}

	stats := worker.Stats()
	if stats.Inserted != 20 {
		t.Fatalf("inserted = %d, want 20", stats.Inserted)
	}
	if stats.Duplicates != MaxBatchSize-10 {
		t.Fatalf("duplicates = %d, want %d", stats.Duplicates, MaxBatchSize-10)
	}

	rows, err := repo.Fetch(context.Background(), history.SelectAll, protein.BonusNone)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(rows) != 20 {
		t.Fatalf("rows = %d, want 20", len(rows))
	}
	if rows[0].Name != "Rig Slot 01" || rows[0].Path != "rig.local:36330" {
		t.Fatalf("client identity = %q %q", rows[0].Name, rows[0].Path)
	}
	if rows[0].FramesCompleted != 100 || rows[0].FrameTime != 179*time.Second {
		t.Fatalf("frames = %d %s", rows[0].FramesCompleted, rows[0].FrameTime)
	}
}

func TestWorkerStopsOnWriteError(t *testing.T) {
	t.Parallel()

	repo := openRepo(t)
	if err := repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	worker := NewWorker(testLogger(), repo)
	ch := make(chan Event, 1)
	ch <- mustEvent(t, testPayload(1))
	close(ch)

	if err := worker.Run(ch); err == nil {
		t.Fatalf("expected worker error after repository close")
	}
}
