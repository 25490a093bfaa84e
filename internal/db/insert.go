package db

import (
	"context"
	"fmt"
	"time"

	"github.com/kon-rad/wuhistory/internal/history"
	"github.com/kon-rad/wuhistory/internal/workunit"
)

// Insert maps ev to a record and stores it unless a record with the same
// natural key already exists. It returns the number of rows written, 0 or 1.
func (r *Repository) Insert(ctx context.Context, ev workunit.CompletionEvent) (int64, error) {
	rec := history.Map(ev)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	if err := r.ready(); err != nil {
		return 0, err
	}

	tx, err := r.writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	assigned := history.FormatTime(rec.Assigned)
	var existing int
	if err := tx.QueryRowContext(ctx, existsSQL(r.shape),
		rec.ProjectID, rec.ProjectRun, rec.ProjectClone, rec.ProjectGen, assigned,
	).Scan(&existing); err != nil {
		return 0, fmt.Errorf("check existing unit: %w", err)
	}
	if existing > 0 {
		r.logger.Debug("history insert skipped, unit exists",
			"project", rec.ProjectID, "run", rec.ProjectRun, "clone", rec.ProjectClone, "gen", rec.ProjectGen,
			"assigned", assigned)
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx, insertSQL(r.shape), insertArgs(r.shape, rec)...); err != nil {
		return 0, fmt.Errorf("insert history row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return 1, nil
}

func insertArgs(s shape, rec history.Record) []any {
	args := []any{
		rec.ProjectID,
		rec.ProjectRun,
		rec.ProjectClone,
		rec.ProjectGen,
		rec.Name,
		rec.Path,
		rec.Username,
		rec.Team,
		rec.CoreVersion,
		rec.FramesCompleted,
		int64(rec.FrameTime / time.Second),
		int(rec.Result),
		history.FormatTime(rec.Assigned),
		history.FormatTime(rec.Finished),
	}
	if s == shapeLegacy {
		return args
	}
	return append(args,
		rec.WorkUnitName,
		rec.KFactor,
		rec.Core,
		rec.Frames,
		rec.Atoms,
		rec.BaseCredit,
		rec.PreferredDays,
		rec.MaximumDays,
	)
}

// Delete removes the record with the given ID and returns the number of rows
// removed, 0 when no such record exists.
func (r *Repository) Delete(ctx context.Context, id int64) (int64, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	if err := r.ready(); err != nil {
		return 0, err
	}

	res, err := r.writer.ExecContext(ctx, "DELETE FROM [WuHistory] WHERE [ID] = ?", id)
	if err != nil {
		return 0, fmt.Errorf("delete history row %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete history row %d: %w", id, err)
	}
	if n > 0 {
		r.logger.Info("history row deleted", "id", id)
	}
	return n, nil
}
