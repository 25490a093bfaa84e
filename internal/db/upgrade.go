package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"
)

// Progress is reported by Upgrade after each step.
type Progress struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetDatabaseVersion returns the latest stamped schema version, or "" for a
// store that was never stamped.
func (r *Repository) GetDatabaseVersion(ctx context.Context) (string, error) {
	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	if err := r.ready(); err != nil {
		return "", err
	}
	return readVersion(ctx, r.reader)
}

func readVersion(ctx context.Context, q queryer) (string, error) {
	cols, err := tableColumns(ctx, q, versionTable)
	if err != nil {
		return "", fmt.Errorf("inspect %s: %w", versionTable, err)
	}
	if len(cols) == 0 {
		return "", nil
	}
	rows, err := q.QueryContext(ctx, "SELECT [Version] FROM [DbVersion] ORDER BY [ID] DESC LIMIT 1")
	if err != nil {
		return "", fmt.Errorf("read version: %w", err)
	}
	defer rows.Close()
	var version string
	if rows.Next() {
		if err := rows.Scan(&version); err != nil {
			return "", fmt.Errorf("scan version: %w", err)
		}
	}
	return version, rows.Err()
}

func stampVersion(ctx context.Context, ex execer, version string) error {
	if _, err := ex.ExecContext(ctx, versionTableDDL); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	if _, err := ex.ExecContext(ctx, "INSERT INTO [DbVersion] ([Version]) VALUES (?)", version); err != nil {
		return fmt.Errorf("stamp version %s: %w", version, err)
	}
	return nil
}

// canonicalVersion maps "0.9.2" and "0.9.2.1234" to "v0.9.2". Anything
// unparseable comes back empty, which semver orders below every valid version.
func canonicalVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return ""
	}
	parts := strings.Split(v, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	c := semver.Canonical("v" + strings.Join(parts, "."))
	return c
}

// VersionLess reports whether a orders before b.
func VersionLess(a, b string) bool {
	return semver.Compare(canonicalVersion(a), canonicalVersion(b)) < 0
}

// RequiresUpgrade reports whether the stamped version is older than
// CurrentVersion or the table is not in the current shape.
func (r *Repository) RequiresUpgrade(ctx context.Context) (bool, error) {
	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	if err := r.ready(); err != nil {
		return false, err
	}
	return r.requiresUpgrade(ctx)
}

func (r *Repository) requiresUpgrade(ctx context.Context) (bool, error) {
	if r.shape != shapeCurrent {
		return true, nil
	}
	version, err := readVersion(ctx, r.writer)
	if err != nil {
		return false, err
	}
	return VersionLess(version, CurrentVersion), nil
}

type upgradeStep struct {
	message string
	run     func(ctx context.Context, tx *sql.Tx) error
}

// Upgrade migrates the store to the current shape in a single transaction
// and stamps CurrentVersion. It is a no-op when no upgrade is required. On
// failure the store is left exactly as it was.
func (r *Repository) Upgrade(ctx context.Context, progress func(Progress)) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.shapeMu.Lock()
	defer r.shapeMu.Unlock()
	if err := r.ready(); err != nil {
		return err
	}
	required, err := r.requiresUpgrade(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpgradeFailed, err)
	}
	if !required {
		return nil
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	runID := uuid.NewString()
	logger := r.logger.With("upgrade_id", runID, "path", r.path, "from", r.shape.String())
	start := time.Now()
	logger.Info("history upgrade started")

	steps := r.upgradeSteps()
	tx, err := r.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrUpgradeFailed, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, step := range steps {
		if err := step.run(ctx, tx); err != nil {
			logger.Error("history upgrade step failed", "step", step.message, "error", err)
			return fmt.Errorf("%w: %s: %w", ErrUpgradeFailed, step.message, err)
		}
		pct := (i + 1) * 100 / (len(steps) + 1)
		logger.Debug("history upgrade step", "step", step.message, "percent", pct)
		progress(Progress{Percent: pct, Message: step.message})
	}
	if err := tx.Commit(); err != nil {
		logger.Error("history upgrade commit failed", "error", err)
		return fmt.Errorf("%w: commit: %w", ErrUpgradeFailed, err)
	}
	r.shape = shapeCurrent
	progress(Progress{Percent: 100, Message: "upgrade complete"})
	logger.Info("history upgrade finished", "version", CurrentVersion, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (r *Repository) upgradeSteps() []upgradeStep {
	var steps []upgradeStep
	if r.shape == shapeLegacy {
		newTable := historyTable + "_new"
		steps = append(steps,
			upgradeStep{"create " + newTable, func(ctx context.Context, tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS ["+newTable+"]"); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, historyTableDDL(newTable))
				return err
			}},
			upgradeStep{"copy legacy rows", func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, copyLegacySQL(newTable))
				return err
			}},
			upgradeStep{"replace legacy table", func(ctx context.Context, tx *sql.Tx) error {
				lastSeq, err := sequenceValue(ctx, tx, historyTable)
				if err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, "DROP TABLE ["+historyTable+"]"); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, "ALTER TABLE ["+newTable+"] RENAME TO ["+historyTable+"]"); err != nil {
					return err
				}
				// IDs handed out by the legacy table are never reused.
				_, err = tx.ExecContext(ctx, "UPDATE sqlite_sequence SET seq = MAX(seq, ?) WHERE name = ?", lastSeq, historyTable)
				return err
			}},
		)
	}
	steps = append(steps,
		upgradeStep{"remove duplicate rows", func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, dedupSQL)
			return err
		}},
		upgradeStep{"create natural key index", func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, naturalKeyIndexDDL)
			return err
		}},
		upgradeStep{"stamp version " + CurrentVersion, func(ctx context.Context, tx *sql.Tx) error {
			return stampVersion(ctx, tx, CurrentVersion)
		}},
	)
	return steps
}

func sequenceValue(ctx context.Context, tx *sql.Tx, table string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, "SELECT seq FROM sqlite_sequence WHERE name = ?", table).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}
