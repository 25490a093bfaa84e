package queries

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kon-rad/wuhistory/internal/history"
	"github.com/kon-rad/wuhistory/internal/workunit"
)

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "queries.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{history.SelectAllName}, s.Names())

	q, ok := s.Get(history.SelectAllName)
	require.True(t, ok)
	assert.True(t, q.IsSelectAll())
}

func TestSaveAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conf", "queries.yaml")
	s, err := Open(path)
	require.NoError(t, err)

	gpu := history.Query{Name: "GPU failures"}.
		Where(history.ColumnSlotType, history.Equal, workunit.SlotTypeGPU).
		Where(history.ColumnResult, history.NotEqual, workunit.ResultFinishedUnit).
		Where(history.ColumnFrameTime, history.LessThan, 2*time.Minute).
		Where(history.ColumnAssigned, history.GreaterThanOrEqual, time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Upsert(gpu))
	require.NoError(t, s.Upsert(history.Query{Name: "Project 2669"}.Where(history.ColumnProjectID, history.Equal, 2669)))
	require.NoError(t, s.Save())

	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{history.SelectAllName, "GPU failures", "Project 2669"}, reloaded.Names())

	got, ok := reloaded.Get("GPU failures")
	require.True(t, ok)
	require.Len(t, got.Predicates, 4)
	assert.Equal(t, history.ColumnSlotType, got.Predicates[0].Column)
	assert.Equal(t, "GPU", got.Predicates[0].Value)
	assert.Equal(t, history.NotEqual, got.Predicates[1].Operator)
	assert.Equal(t, "FinishedUnit", got.Predicates[1].Value)
	assert.Equal(t, "2m0s", got.Predicates[2].Value)
	assert.Equal(t, "2012-01-01 00:00:00", got.Predicates[3].Value)

	before, err := history.Translate(gpu)
	require.NoError(t, err)
	after, err := history.Translate(got)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "column: SlotType")
	assert.NotContains(t, string(raw), history.SelectAllName)
}

func TestConcurrentSavesKeepLatest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "queries.yaml")
	s, err := Open(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := history.Query{Name: fmt.Sprintf("team %02d", i)}.Where(history.ColumnTeam, history.Equal, i)
			assert.NoError(t, s.Upsert(q))
			assert.NoError(t, s.Save())
		}()
	}
	wg.Wait()

	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.Names(), 21)
	assert.Equal(t, s.Names(), reloaded.Names())
}

func TestUpsertReplacesByName(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "queries.yaml"))
	require.NoError(t, err)
	require.NoError(t, s.Upsert(history.Query{Name: "mine"}.Where(history.ColumnTeam, history.Equal, 1)))
	require.NoError(t, s.Upsert(history.Query{Name: " mine "}.Where(history.ColumnTeam, history.Equal, 32)))

	assert.Equal(t, []string{history.SelectAllName, "mine"}, s.Names())
	q, _ := s.Get("mine")
	assert.EqualValues(t, 32, q.Predicates[0].Value)
}

func TestUpsertRejects(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "queries.yaml"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Upsert(history.Query{}), ErrNoName)
	assert.ErrorIs(t, s.Upsert(history.SelectAll), ErrReserved)
	assert.ErrorIs(t, s.Upsert(history.Query{Name: "bad"}.Where(history.ColumnTeam, history.Like, "3%")), history.ErrOperatorNotSupported)
	assert.Equal(t, []string{history.SelectAllName}, s.Names())
}

func TestRemove(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "queries.yaml"))
	require.NoError(t, err)
	require.NoError(t, s.Upsert(history.Query{Name: "a"}.Where(history.ColumnTeam, history.Equal, 1)))

	assert.ErrorIs(t, s.Remove(history.SelectAllName), ErrReserved)
	assert.ErrorIs(t, s.Remove("missing"), ErrNotFound)
	require.NoError(t, s.Remove("a"))
	assert.Equal(t, []string{history.SelectAllName}, s.Names())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := map[string]string{
		"unknown column": "version: 1\nqueries:\n  - name: x\n    predicates:\n      - column: Nope\n        operator: Equal\n        value: 1\n",
		"duplicate":      "version: 1\nqueries:\n  - name: x\n  - name: x\n",
		"future version": "version: 9\nqueries: []\n",
		"not yaml":       "version: [\n",
	}
	for name, body := range tests {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Open(path)
		assert.Errorf(t, err, name)
	}
}
