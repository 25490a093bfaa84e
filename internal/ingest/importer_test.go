package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kon-rad/wuhistory/internal/history"
)

func writeJSONL(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func payloadLine(t *testing.T, run int) string {
	t.Helper()
	raw, err := json.Marshal(testPayload(run))
	require.NoError(t, err)
	return string(raw)
}

func TestImporterMergesFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := openRepo(t)

	var first, second []string
	for i := 0; i < 30; i++ {
		first = append(first, payloadLine(t, i))
	}
	// Overlaps the first file on runs 20..29.
	for i := 20; i < 50; i++ {
		second = append(second, payloadLine(t, i))
	}
	second = append(second, "not json", "")
	paths := []string{
		writeJSONL(t, dir, "a.jsonl", first...),
		writeJSONL(t, dir, "b.jsonl", second...),
	}

	res, err := NewImporter(testLogger(), repo, 2).Import(context.Background(), paths...)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.EqualValues(t, 61, res.Lines)
	assert.EqualValues(t, 50, res.Inserted)
	assert.EqualValues(t, 10, res.Duplicates)
	assert.EqualValues(t, 1, res.Invalid)

	n, err := repo.Count(context.Background(), history.SelectAll)
	require.NoError(t, err)
	assert.EqualValues(t, 50, n)
}

func TestImporterStrict(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeJSONL(t, dir, "bad.jsonl", payloadLine(t, 1), `{"project_id":0}`)

	im := NewImporter(testLogger(), openRepo(t), 1)
	im.Strict = true
	_, err := im.Import(context.Background(), path)
	require.ErrorIs(t, err, ErrInvalidPayload)
	assert.Contains(t, err.Error(), "bad.jsonl:2")
}

func TestImporterMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewImporter(testLogger(), openRepo(t), 1).Import(context.Background(), filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}
