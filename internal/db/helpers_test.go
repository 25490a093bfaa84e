package db

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kon-rad/wuhistory/internal/protein"
	"github.com/kon-rad/wuhistory/internal/workunit"
)

var testAssigned = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProtein() *protein.Metadata {
	return &protein.Metadata{
		ProjectID:     2669,
		WorkUnitName:  "TestUnit1",
		KFactor:       0.75,
		Core:          "GRO-A3",
		Frames:        100,
		Atoms:         5000,
		Credit:        100,
		PreferredDays: 3,
		MaximumDays:   5,
	}
}

func testEvent(run int) workunit.CompletionEvent {
	return workunit.CompletionEvent{
		ProjectID:      2669,
		ProjectRun:     run,
		ProjectClone:   2,
		ProjectGen:     3,
		Client:         workunit.Client{Name: "Owner", Server: "Path", Port: workunit.NoPort},
		SlotID:         workunit.NoSlotID,
		Username:       "harlam357",
		Team:           32,
		CoreVersion:    2.27,
		Result:         workunit.ResultFinishedUnit,
		Assigned:       testAssigned,
		Finished:       testAssigned.Add(8 * time.Hour),
		FramesObserved: 4,
		Frames: map[int]workunit.Frame{
			97:  {ID: 97, Duration: 5 * time.Minute},
			100: {ID: 100, Duration: 5 * time.Minute},
		},
		Protein: testProtein(),
	}
}

func openTestRepo(t *testing.T, svc protein.Service) (*Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "WuHistory.db3")
	repo := New(protein.ProductionCalculator{}, svc, testLogger())
	require.NoError(t, repo.Initialize(context.Background(), path))
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo, path
}

func rawDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func rowCount(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM WuHistory").Scan(&n))
	return n
}

type columnInfo struct {
	cid     int
	name    string
	notNull bool
	dflt    sql.NullString
	pk      int
}

func tableInfo(t *testing.T, conn *sql.DB) []columnInfo {
	t.Helper()
	rows, err := conn.Query(`SELECT cid, name, "notnull", dflt_value, pk FROM pragma_table_info('WuHistory') ORDER BY cid`)
	require.NoError(t, err)
	defer rows.Close()
	var out []columnInfo
	for rows.Next() {
		var c columnInfo
		require.NoError(t, rows.Scan(&c.cid, &c.name, &c.notNull, &c.dflt, &c.pk))
		out = append(out, c)
	}
	require.NoError(t, rows.Err())
	return out
}

// writeLegacyStore builds a legacy store with unique rows followed by dups
// rows that repeat the natural key of the first dups unique rows.
func writeLegacyStore(t *testing.T, path, ddl string, unique, dups int) {
	t.Helper()
	conn := rawDB(t, path)
	_, err := conn.Exec(ddl)
	require.NoError(t, err)

	tx, err := conn.Begin()
	require.NoError(t, err)
	stmt, err := tx.Prepare(`INSERT INTO WuHistory (ProjectID, ProjectRun, ProjectClone, ProjectGen,
  InstanceName, InstancePath, Username, Team, CoreVersion, FramesCompleted, FrameTime, Result,
  DownloadDateTime, CompletionDateTime) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	require.NoError(t, err)
	insert := func(i int, name string) {
		assigned := testAssigned.Add(time.Duration(i) * time.Hour)
		_, err := stmt.Exec(6600+i%10, i, 0, i%5, name, `C:\FAH\`+name, "harlam357", 32, 2.10, 100, 300, 1,
			assigned.Format("2006-01-02 15:04:05"), assigned.Add(6*time.Hour).Format("2006-01-02 15:04:05"))
		require.NoError(t, err)
	}
	for i := 0; i < unique; i++ {
		insert(i, "Instance")
	}
	for i := 0; i < dups; i++ {
		insert(i, "Duplicate")
	}
	require.NoError(t, stmt.Close())
	require.NoError(t, tx.Commit())
	require.NoError(t, conn.Close())
}
