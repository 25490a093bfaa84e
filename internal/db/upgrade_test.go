package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kon-rad/wuhistory/internal/history"
	"github.com/kon-rad/wuhistory/internal/protein"
)

func TestUpgradeLegacyStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		unique int
		dups   int
	}{
		{name: "no duplicates", unique: 44},
		{name: "with duplicates", unique: 253, dups: 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "legacy.db3")
			writeLegacyStore(t, path, LegacyTableDDL, tt.unique, tt.dups)
			conn := rawDB(t, path)
			require.Len(t, tableInfo(t, conn), 15)
			require.Equal(t, tt.unique+tt.dups, rowCount(t, conn))

			repo := New(nil, nil, testLogger())
			ctx := context.Background()
			require.NoError(t, repo.Initialize(ctx, path))
			defer func() {
				_ = repo.Close()
			}()
			assert.True(t, repo.Connected(), "a legacy store opens connected")

			version, err := repo.GetDatabaseVersion(ctx)
			require.NoError(t, err)
			assert.Empty(t, version)

			required, err := repo.RequiresUpgrade(ctx)
			require.NoError(t, err)
			require.True(t, required)

			var reports []Progress
			require.NoError(t, repo.Upgrade(ctx, func(p Progress) {
				reports = append(reports, p)
			}))
			require.NotEmpty(t, reports)
			for i := 1; i < len(reports); i++ {
				assert.GreaterOrEqual(t, reports[i].Percent, reports[i-1].Percent)
			}
			assert.Equal(t, 100, reports[len(reports)-1].Percent)

			verifyCurrentShape(t, conn)
			assert.Equal(t, tt.unique, rowCount(t, conn))
			assert.True(t, repo.Connected())

			version, err = repo.GetDatabaseVersion(ctx)
			require.NoError(t, err)
			assert.Equal(t, CurrentVersion, version)

			required, err = repo.RequiresUpgrade(ctx)
			require.NoError(t, err)
			assert.False(t, required)

			rows, err := repo.Fetch(ctx, history.SelectAll, protein.BonusNone)
			require.NoError(t, err)
			require.Len(t, rows, tt.unique)
			for _, rec := range rows {
				assert.Equal(t, "Instance", rec.Name, "the lowest ID of every natural key survives")
				assert.LessOrEqual(t, rec.ID, int64(tt.unique))
				assert.True(t, strings.HasPrefix(rec.Path, `C:\FAH\`))
				assert.Empty(t, rec.WorkUnitName)
				assert.Zero(t, rec.Frames)
			}
			assert.Equal(t, testAssigned, rows[0].Assigned)
			assert.Equal(t, testAssigned.Add(6*time.Hour), rows[0].Finished)

			// IDs used by the legacy table are not reused.
			_, err = repo.Insert(ctx, testEvent(1))
			require.NoError(t, err)
			latest, err := repo.Fetch(ctx, history.Query{}.Where(history.ColumnProjectID, history.Equal, 2669), protein.BonusNone)
			require.NoError(t, err)
			require.Len(t, latest, 1)
			assert.EqualValues(t, tt.unique+tt.dups+1, latest[0].ID)
		})
	}
}

func TestUpgradeCoalescesNulls(t *testing.T) {
	t.Parallel()

	nullable := strings.ReplaceAll(LegacyTableDDL, " NOT NULL", "")
	path := filepath.Join(t.TempDir(), "nullable.db3")
	writeLegacyStore(t, path, nullable, 3, 0)
	conn := rawDB(t, path)
	_, err := conn.Exec("UPDATE WuHistory SET InstancePath = NULL, Username = NULL, CoreVersion = NULL WHERE ID = 2")
	require.NoError(t, err)

	repo := New(nil, nil, testLogger())
	ctx := context.Background()
	require.NoError(t, repo.Initialize(ctx, path))
	defer func() {
		_ = repo.Close()
	}()
	require.NoError(t, repo.Upgrade(ctx, nil))

	rows, err := repo.Fetch(ctx, history.Query{}.Where(history.ColumnID, history.Equal, 2), protein.BonusNone)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Path)
	assert.Empty(t, rows[0].Username)
	assert.Zero(t, rows[0].CoreVersion)
}

func TestUpgradeNormalizesLegacyTimestamps(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mixed.db3")
	writeLegacyStore(t, path, LegacyTableDDL, 0, 0)
	conn := rawDB(t, path)
	for _, assigned := range []string{"2010-01-01 00:00:00", "2010-01-01T00:00:00", "2010-01-01 00:00:00.000"} {
		_, err := conn.Exec(`INSERT INTO WuHistory (ProjectID, ProjectRun, ProjectClone, ProjectGen,
  InstanceName, InstancePath, Username, Team, CoreVersion, FramesCompleted, FrameTime, Result,
  DownloadDateTime, CompletionDateTime) VALUES (2669, 1, 2, 3, 'Owner', 'Path', 'harlam357', 32, 2.27, 100, 300, 1, ?, ?)`,
			assigned, "2010-01-01T06:00:00")
		require.NoError(t, err)
	}

	repo := New(nil, nil, testLogger())
	ctx := context.Background()
	require.NoError(t, repo.Initialize(ctx, path))
	defer func() {
		_ = repo.Close()
	}()
	require.NoError(t, repo.Upgrade(ctx, nil))

	assert.Equal(t, 1, rowCount(t, conn))
	var stored string
	require.NoError(t, conn.QueryRow("SELECT Assigned || '|' || Finished FROM WuHistory").Scan(&stored))
	assert.Equal(t, "2010-01-01 00:00:00|2010-01-01 06:00:00", stored)

	assigned := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	n, err := repo.Count(ctx, history.Query{}.Where(history.ColumnAssigned, history.LessThanOrEqual, assigned))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// The migrated key is recognized by the current-shape duplicate check.
	ev := testEvent(1)
	ev.Assigned = assigned
	inserted, err := repo.Insert(ctx, ev)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestUpgradeFailureLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "legacy.db3")
	writeLegacyStore(t, path, LegacyTableDDL, 10, 2)

	repo := New(nil, nil, testLogger())
	require.NoError(t, repo.Initialize(context.Background(), path))
	defer func() {
		_ = repo.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := repo.Upgrade(ctx, nil)
	require.ErrorIs(t, err, ErrUpgradeFailed)
	require.ErrorIs(t, err, context.Canceled)

	conn := rawDB(t, path)
	assert.Len(t, tableInfo(t, conn), 15)
	assert.Equal(t, 12, rowCount(t, conn))
	assert.True(t, repo.Connected())
	required, err := repo.RequiresUpgrade(context.Background())
	require.NoError(t, err)
	assert.True(t, required)

	// The old shape stays readable.
	rows, err := repo.Fetch(context.Background(), history.SelectAll, protein.BonusNone)
	require.NoError(t, err)
	assert.Len(t, rows, 12)
	assert.Equal(t, "Instance", rows[0].Name)
}

func TestUpgradeStaleVersionOnCurrentShape(t *testing.T) {
	t.Parallel()

	repo, path := openTestRepo(t, nil)
	ctx := context.Background()
	conn := rawDB(t, path)
	_, err := conn.Exec("INSERT INTO DbVersion (Version) VALUES ('0.9.0')")
	require.NoError(t, err)

	required, err := repo.RequiresUpgrade(ctx)
	require.NoError(t, err)
	require.True(t, required)
	require.NoError(t, repo.Upgrade(ctx, nil))

	version, err := repo.GetDatabaseVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, version)
	verifyCurrentShape(t, conn)
}

func TestUpgradeNoopWhenCurrent(t *testing.T) {
	t.Parallel()

	repo, path := openTestRepo(t, nil)
	called := false
	require.NoError(t, repo.Upgrade(context.Background(), func(Progress) { called = true }))
	assert.False(t, called)

	var stamps int
	require.NoError(t, rawDB(t, path).QueryRow("SELECT COUNT(*) FROM DbVersion").Scan(&stamps))
	assert.Equal(t, 1, stamps)
}

func TestVersionLess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want bool
	}{
		{"", CurrentVersion, true},
		{"0.9.1", "0.9.2", true},
		{"0.9.2", "0.9.10", true},
		{"0.9.2.1234", "0.9.2", false},
		{"0.9.2", "0.9.2", false},
		{"1.0.0", "0.9.2", false},
		{"garbage", "0.0.1", true},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, VersionLess(tt.a, tt.b), "VersionLess(%q, %q)", tt.a, tt.b)
	}
}
