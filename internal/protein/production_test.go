package protein

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBonusMultiplier(t *testing.T) {
	t.Parallel()

	meta := Metadata{KFactor: 0.75, Frames: 100, Credit: 100, PreferredDays: 3, MaximumDays: 5}
	calc := ProductionCalculator{}
	frame := 5 * time.Minute
	unit := 8 * time.Hour

	tests := []struct {
		name string
		meta Metadata
		unit time.Duration
		mode BonusMode
		want float64
	}{
		{"download time", meta, unit, BonusDownloadTime, 3.35},
		{"frame time", meta, unit, BonusFrameTime, 3.29},
		{"none", meta, unit, BonusNone, 1},
		{"zero k-factor", Metadata{Frames: 100, Credit: 100, PreferredDays: 3, MaximumDays: 5}, unit, BonusDownloadTime, 1},
		{"past preferred deadline", meta, 4 * 24 * time.Hour, BonusDownloadTime, 1},
		{"unknown unit time", meta, 0, BonusDownloadTime, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.BonusMultiplier(tt.meta, frame, tt.unit, tt.mode), 1e-9)
		})
	}
}

func TestCreditAndPPD(t *testing.T) {
	t.Parallel()

	meta := Metadata{KFactor: 0.75, Frames: 100, Credit: 100, PreferredDays: 3, MaximumDays: 5}
	calc := ProductionCalculator{}

	assert.InDelta(t, 100, calc.Credit(meta, 5*time.Minute, 8*time.Hour, BonusNone), 1e-9)
	assert.InDelta(t, 335, calc.Credit(meta, 5*time.Minute, 8*time.Hour, BonusDownloadTime), 1e-9)
	assert.InDelta(t, 288, calc.PPD(meta, 5*time.Minute, 8*time.Hour, BonusNone), 1e-9)
	assert.Zero(t, calc.PPD(meta, 0, 8*time.Hour, BonusNone))
	assert.Zero(t, calc.Credit(Metadata{}, 5*time.Minute, 8*time.Hour, BonusDownloadTime))
}

func TestParseBonusMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]BonusMode{
		"DownloadTime": BonusDownloadTime,
		"frame_time":   BonusFrameTime,
		"":             BonusNone,
		" None ":       BonusNone,
	} {
		got, err := ParseBonusMode(in)
		require.NoErrorf(t, err, "ParseBonusMode(%q)", in)
		assert.Equal(t, want, got)
	}
	_, err := ParseBonusMode("double")
	assert.Error(t, err)

	var m BonusMode
	require.NoError(t, m.UnmarshalText([]byte("FrameTime")))
	assert.Equal(t, BonusFrameTime, m)
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	c := NewCatalog(Metadata{ProjectID: 2, Credit: 1}, Metadata{ProjectID: 1, Credit: 2})
	m, ok := c.Get(1)
	require.True(t, ok)
	assert.InDelta(t, 2, m.Credit, 1e-9)

	_, ok = c.Get(3)
	assert.False(t, ok)

	c.Put(Metadata{ProjectID: 3, Frames: 100})
	assert.Equal(t, []int{1, 2, 3}, c.ProjectIDs())
	assert.True(t, Metadata{ProjectID: 9}.IsZero())
	assert.False(t, Metadata{Frames: 1}.IsZero())
}
