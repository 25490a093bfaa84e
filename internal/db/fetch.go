package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kon-rad/wuhistory/internal/history"
	"github.com/kon-rad/wuhistory/internal/protein"
	"github.com/kon-rad/wuhistory/internal/workunit"
)

// Fetch returns every record matching q ordered by ID, with the production
// view computed under mode. Records without a frozen project snapshot fall
// back to the protein service.
func (r *Repository) Fetch(ctx context.Context, q history.Query, mode protein.BonusMode) ([]history.Record, error) {
	filter, err := history.Translate(q)
	if err != nil {
		return nil, err
	}

	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	if err := r.ready(); err != nil {
		return nil, err
	}

	rows, err := r.reader.QueryContext(ctx, selectSQL(r.shape)+where(filter)+" ORDER BY [ID]", filter.Args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []history.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		rec.Production = r.produce(rec, mode)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}

// Count returns the number of records matching q.
func (r *Repository) Count(ctx context.Context, q history.Query) (int64, error) {
	filter, err := history.Translate(q)
	if err != nil {
		return 0, err
	}

	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	if err := r.ready(); err != nil {
		return 0, err
	}

	var n int64
	query := "SELECT COUNT(*) FROM (" + selectSQL(r.shape) + where(filter) + ")"
	if err := r.reader.QueryRowContext(ctx, query, filter.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

func where(f history.Filter) string {
	if f.Empty() {
		return ""
	}
	return " WHERE " + f.Where
}

func (r *Repository) produce(rec history.Record, mode protein.BonusMode) history.ProductionView {
	meta := rec.Metadata()
	if meta.IsZero() && r.proteins != nil {
		if m, ok := r.proteins.Get(rec.ProjectID); ok {
			meta = m
		}
	}
	return history.Produce(r.calc, meta, rec.FrameTime, rec.UnitTime(), mode)
}

func scanRecord(rows *sql.Rows) (history.Record, error) {
	var (
		rec       history.Record
		frameTime int64
		result    int
		assigned  sqlTime
		finished  sqlTime
		slotType  string
	)
	err := rows.Scan(
		&rec.ID,
		&rec.ProjectID,
		&rec.ProjectRun,
		&rec.ProjectClone,
		&rec.ProjectGen,
		&rec.Name,
		&rec.Path,
		&rec.Username,
		&rec.Team,
		&rec.CoreVersion,
		&rec.FramesCompleted,
		&frameTime,
		&result,
		&assigned,
		&finished,
		&rec.WorkUnitName,
		&rec.KFactor,
		&rec.Core,
		&rec.Frames,
		&rec.Atoms,
		&rec.BaseCredit,
		&rec.PreferredDays,
		&rec.MaximumDays,
		&slotType,
	)
	if err != nil {
		return history.Record{}, err
	}
	rec.FrameTime = time.Duration(frameTime) * time.Second
	rec.Result = workunit.Result(result)
	rec.Assigned = assigned.Time
	rec.Finished = finished.Time
	rec.SlotType = workunit.ParseSlotType(slotType)
	return rec, nil
}

// sqlTime accepts the forms the driver hands back for DATETIME columns.
type sqlTime struct {
	Time time.Time
}

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = history.NormalizeTime(v)
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	return nil
}

func (t *sqlTime) parse(s string) error {
	parsed, err := history.ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
