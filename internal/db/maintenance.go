package db

import (
	"context"
	"fmt"
	"os"
)

func (r *Repository) WALSizeBytes() int64 {
	fi, err := os.Stat(r.Path() + "-wal")
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (r *Repository) DBSizeBytes() int64 {
	fi, err := os.Stat(r.Path())
	if err != nil {
		return 0
	}
	return fi.Size()
}

// CheckpointIfWALExceeds restarts the WAL once it grows past thresholdBytes.
// It reports whether a checkpoint ran.
func (r *Repository) CheckpointIfWALExceeds(ctx context.Context, thresholdBytes int64) (bool, error) {
	if r.WALSizeBytes() <= thresholdBytes {
		return false, nil
	}
	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	if err := r.ready(); err != nil {
		return false, err
	}
	if _, err := r.writer.ExecContext(ctx, "PRAGMA wal_checkpoint(RESTART)"); err != nil {
		return false, fmt.Errorf("wal restart checkpoint: %w", err)
	}
	return true, nil
}
