// Package feed tails a JSON-lines file of completion events written by a
// client-side collector and hands each event to the ingest queue.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/kon-rad/wuhistory/internal/ingest"
)

type Enqueuer interface {
	Enqueue(event ingest.Event) bool
}

type Stats struct {
	Lines   int64 `json:"lines"`
	Invalid int64 `json:"invalid"`
	Dropped int64 `json:"dropped"`
}

type Tailer struct {
	path     string
	poll     time.Duration
	enqueuer Enqueuer
	logger   *slog.Logger

	lines   atomic.Int64
	invalid atomic.Int64
	dropped atomic.Int64
}

func New(path string, poll time.Duration, enqueuer Enqueuer, logger *slog.Logger) *Tailer {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tailer{
		path:     path,
		poll:     poll,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

func (t *Tailer) Stats() Stats {
	return Stats{
		Lines:   t.lines.Load(),
		Invalid: t.invalid.Load(),
		Dropped: t.dropped.Load(),
	}
}

// Run polls the file until ctx is done. The file is read from the start;
// a rotated (new inode) or truncated file is read again from the start.
// A trailing line without a newline is left for the next poll.
func (t *Tailer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	var offset int64
	var lastInode uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fi, err := os.Stat(t.path)
			if err != nil {
				continue
			}
			stat, ok := fi.Sys().(*syscall.Stat_t)
			if ok {
				if lastInode == 0 {
					lastInode = stat.Ino
				}
				if stat.Ino != lastInode {
					t.logger.Info("completion feed rotated", "path", t.path)
					lastInode = stat.Ino
					offset = 0
				}
			}
			if fi.Size() < offset {
				offset = 0
			}
			if fi.Size() == offset {
				continue
			}
			newOffset, err := t.readFromOffset(offset)
			if err != nil {
				t.logger.Warn("completion feed read failed", "path", t.path, "error", err)
			}
			offset = newOffset
		}
	}
}

func (t *Tailer) readFromOffset(offset int64) (int64, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, err
		}
		offset += int64(len(line))
		t.handleLine(bytes.TrimSpace(line))
	}
}

func (t *Tailer) handleLine(line []byte) {
	if len(line) == 0 {
		return
	}
	t.lines.Add(1)
	ev, err := ingest.DecodeLine(line, ingest.SourceFeed)
	if err != nil {
		t.invalid.Add(1)
		t.logger.Warn("completion feed line skipped", "path", t.path, "error", err)
		return
	}
	if !t.enqueuer.Enqueue(ev) {
		t.dropped.Add(1)
		t.logger.Warn("completion feed event dropped, queue full", "event_id", ev.ID.String())
	}
}
