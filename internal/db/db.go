// Package db is the SQLite-backed work-unit history repository. It owns the
// on-disk shape of the store, migrates legacy stores in place, and
// serializes every write.
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"modernc.org/sqlite"

	"github.com/kon-rad/wuhistory/internal/protein"
	"github.com/kon-rad/wuhistory/internal/workunit"
)

var (
	ErrNotConnected      = errors.New("history store is not connected")
	ErrClosed            = errors.New("history store is closed")
	ErrUnsupportedSchema = errors.New("unsupported history table shape")
	ErrUpgradeFailed     = errors.New("history upgrade failed")
)

type HealthStats struct {
	DBStatus    string `json:"db_status"`
	DBSizeBytes int64  `json:"db_size_bytes"`
	WALSize     int64  `json:"wal_size_bytes"`
}

const pragmaSQL = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 10000;
PRAGMA temp_store = MEMORY;
PRAGMA foreign_keys = ON;
PRAGMA cache_size = -8000;
`

func init() {
	sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, _ string) error {
		_, err := conn.ExecContext(context.Background(), pragmaSQL, []driver.NamedValue{})
		return err
	})
	if err := sqlite.RegisterDeterministicScalarFunction("slot_type", 1, slotTypeFunc); err != nil {
		panic(fmt.Sprintf("register slot_type: %v", err))
	}
}

func slotTypeFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return workunit.SlotTypeFromCore(v).String(), nil
	case []byte:
		return workunit.SlotTypeFromCore(string(v)).String(), nil
	}
	return workunit.SlotTypeUnknown.String(), nil
}

// Repository is the history façade. The zero value is not usable; create
// one with New and open it with Initialize.
type Repository struct {
	calc     protein.Calculator
	proteins protein.Service
	logger   *slog.Logger

	// writeMu serializes Insert, Delete and Upgrade. It is always taken
	// before shapeMu.
	writeMu sync.Mutex
	// shapeMu is held exclusively while the table shape or the handles
	// change, and shared by everything that reads them.
	shapeMu sync.RWMutex

	path   string
	writer *sql.DB
	reader *sql.DB
	shape  shape
	closed bool
}

func New(calc protein.Calculator, svc protein.Service, logger *slog.Logger) *Repository {
	if calc == nil {
		calc = protein.ProductionCalculator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{calc: calc, proteins: svc, logger: logger}
}

// Initialize opens the store at path, creating the directory and a store in
// the current shape when missing. Calling it again reopens the store.
func (r *Repository) Initialize(ctx context.Context, path string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.shapeMu.Lock()
	defer r.shapeMu.Unlock()

	if err := r.closeHandles(); err != nil {
		r.logger.Warn("close previous history store", "path", r.path, "error", err)
	}
	r.path = path
	r.closed = false

	writer, reader, err := openHandles(ctx, path)
	if err != nil {
		r.logger.Error("open history store", "path", path, "error", err)
		return fmt.Errorf("initialize %s: %w", path, err)
	}

	s, err := detectShape(ctx, writer)
	if err == nil && s == shapeNone {
		err = createSchema(ctx, writer)
		s = shapeCurrent
	}
	if err != nil {
		_ = writer.Close()
		_ = reader.Close()
		r.logger.Error("prepare history store", "path", path, "error", err)
		return fmt.Errorf("initialize %s: %w", path, err)
	}

	r.writer = writer
	r.reader = reader
	r.shape = s
	r.logger.Info("history store open", "path", path, "shape", s.String())
	return nil
}

func openHandles(ctx context.Context, path string) (*sql.DB, *sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := "file:" + path
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open writer db: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(0)

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, nil, fmt.Errorf("open reader db: %w", err)
	}
	reader.SetMaxOpenConns(4)
	reader.SetMaxIdleConns(4)

	if err := writer.PingContext(ctx); err != nil {
		_ = writer.Close()
		_ = reader.Close()
		return nil, nil, fmt.Errorf("ping writer: %w", err)
	}
	if err := reader.PingContext(ctx); err != nil {
		_ = writer.Close()
		_ = reader.Close()
		return nil, nil, fmt.Errorf("ping reader: %w", err)
	}
	return writer, reader, nil
}

func detectShape(ctx context.Context, q queryer) (shape, error) {
	cols, err := tableColumns(ctx, q, historyTable)
	if err != nil {
		return shapeNone, fmt.Errorf("inspect %s: %w", historyTable, err)
	}
	switch {
	case len(cols) == 0:
		return shapeNone, nil
	case sameColumns(cols, currentColumnNames()):
		return shapeCurrent, nil
	case sameColumns(cols, legacyColumns):
		return shapeLegacy, nil
	}
	return shapeNone, fmt.Errorf("%w: %d columns in %s", ErrUnsupportedSchema, len(cols), historyTable)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func tableColumns(ctx context.Context, q queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func createSchema(ctx context.Context, writer *sql.DB) error {
	tx, err := writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for _, stmt := range []string{historyTableDDL(historyTable), naturalKeyIndexDDL, versionTableDDL} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if err := stampVersion(ctx, tx, CurrentVersion); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// ready reports whether the handles may be used. Callers hold shapeMu.
func (r *Repository) ready() error {
	if r.closed {
		return ErrClosed
	}
	if r.writer == nil {
		return ErrNotConnected
	}
	return nil
}

// Connected reports whether the store opened. A legacy store is connected
// too; RequiresUpgrade tells the two shapes apart.
func (r *Repository) Connected() bool {
	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	return r.ready() == nil
}

func (r *Repository) Path() string {
	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	return r.path
}

func (r *Repository) Checkpoint(ctx context.Context) error {
	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	if err := r.ready(); err != nil {
		return err
	}
	_, err := r.writer.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close releases both handles. Every later call fails with ErrClosed until
// the store is initialized again.
func (r *Repository) Close() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.shapeMu.Lock()
	defer r.shapeMu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.closeHandles()
}

func (r *Repository) closeHandles() error {
	var errs []error
	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.reader != nil {
		if err := r.reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.writer, r.reader, r.shape = nil, nil, shapeNone
	return errors.Join(errs...)
}

func (r *Repository) Ping(ctx context.Context) error {
	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	if err := r.ready(); err != nil {
		return err
	}
	return r.writer.PingContext(ctx)
}

func (r *Repository) Stats() HealthStats {
	stats := HealthStats{
		DBStatus: "ok",
	}
	if err := r.Ping(context.Background()); err != nil {
		stats.DBStatus = "error"
	}
	stats.DBSizeBytes = r.DBSizeBytes()
	stats.WALSize = r.WALSizeBytes()
	return stats
}

func (r *Repository) Pragmas(ctx context.Context) (journalMode string, busyTimeout int, foreignKeys int, err error) {
	r.shapeMu.RLock()
	defer r.shapeMu.RUnlock()
	if err = r.ready(); err != nil {
		return "", 0, 0, err
	}
	if err = r.writer.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return "", 0, 0, err
	}
	if err = r.writer.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		return "", 0, 0, err
	}
	if err = r.writer.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		return "", 0, 0, err
	}
	return journalMode, busyTimeout, foreignKeys, nil
}
