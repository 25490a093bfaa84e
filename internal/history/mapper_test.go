package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kon-rad/wuhistory/internal/protein"
	"github.com/kon-rad/wuhistory/internal/workunit"
)

func TestMapCopiesEventAndSnapshot(t *testing.T) {
	t.Parallel()

	assigned := time.Date(2010, 1, 1, 1, 0, 0, 0, time.FixedZone("CST", -6*60*60))
	ev := workunit.CompletionEvent{
		ProjectID:      2669,
		ProjectRun:     1,
		ProjectClone:   2,
		ProjectGen:     3,
		Client:         workunit.Client{Name: "Owner2", Server: "Path2", Port: 46330},
		SlotID:         2,
		Username:       "harlam357",
		Team:           32,
		CoreVersion:    2.27,
		Result:         workunit.ResultFinishedUnit,
		Assigned:       assigned.Add(250 * time.Millisecond),
		Finished:       assigned.Add(6 * time.Hour),
		FramesObserved: 4,
		Frames: map[int]workunit.Frame{
			56:  {ID: 56, Duration: 15 * time.Minute},
			100: {ID: 100, Duration: 10*time.Minute + 400*time.Millisecond},
			99:  {ID: 99, Duration: 11 * time.Minute},
		},
		Protein: &protein.Metadata{
			ProjectID:     2669,
			WorkUnitName:  "TestUnit2",
			KFactor:       26.4,
			Core:          "OPENMMGPU",
			Frames:        100,
			Atoms:         1200,
			Credit:        1750,
			PreferredDays: 4,
			MaximumDays:   7,
		},
	}

	rec := Map(ev)
	assert.Zero(t, rec.ID)
	assert.Equal(t, "Owner2 Slot 02", rec.Name)
	assert.Equal(t, "Path2:46330", rec.Path)
	assert.Equal(t, time.Date(2010, 1, 1, 7, 0, 0, 0, time.UTC), rec.Assigned)
	assert.Equal(t, time.UTC, rec.Finished.Location())
	assert.Equal(t, 100, rec.FramesCompleted)
	assert.Equal(t, 10*time.Minute, rec.FrameTime)
	assert.Equal(t, "TestUnit2", rec.WorkUnitName)
	assert.InDelta(t, 1750, rec.BaseCredit, 1e-9)
	assert.Equal(t, workunit.SlotTypeGPU, rec.SlotType)
	assert.Equal(t, *ev.Protein, rec.Metadata())
	assert.Equal(t, 6*time.Hour, rec.UnitTime())
}

func TestMapWithoutFramesOrMetadata(t *testing.T) {
	t.Parallel()

	rec := Map(workunit.CompletionEvent{
		ProjectID: 1,
		Client:    workunit.Client{Name: "Owner", Server: "Path", Port: workunit.NoPort},
		SlotID:    workunit.NoSlotID,
	})
	assert.Equal(t, "Owner", rec.Name)
	assert.Equal(t, "Path", rec.Path)
	assert.Zero(t, rec.FramesCompleted)
	assert.Zero(t, rec.FrameTime)
	assert.True(t, rec.Metadata().IsZero())
	assert.Equal(t, workunit.SlotTypeUnknown, rec.SlotType)
	assert.True(t, rec.Assigned.IsZero())
	assert.Zero(t, rec.UnitTime())
}

func TestMapFrameTimeRequiresObservedFrames(t *testing.T) {
	t.Parallel()

	rec := Map(workunit.CompletionEvent{
		Frames: map[int]workunit.Frame{
			5: {ID: 5, Duration: 3 * time.Minute},
		},
	})
	assert.Equal(t, 5, rec.FramesCompleted)
	assert.Zero(t, rec.FrameTime)
}

func TestProduceBonusIsNeverNegative(t *testing.T) {
	t.Parallel()

	meta := protein.Metadata{KFactor: 2, Frames: 100, Credit: 500, PreferredDays: 2, MaximumDays: 4}
	calc := protein.ProductionCalculator{}
	frame := 3 * time.Minute
	unit := 5 * time.Hour

	none := Produce(calc, meta, frame, unit, protein.BonusNone)
	assert.InDelta(t, 1, none.BonusMultiplier, 1e-9)
	assert.Zero(t, none.BonusCredit)
	assert.Zero(t, none.BonusPPD)
	assert.InDelta(t, 500, none.Credit, 1e-9)

	bonus := Produce(calc, meta, frame, unit, protein.BonusDownloadTime)
	assert.Greater(t, bonus.BonusMultiplier, 1.0)
	assert.InDelta(t, bonus.Credit-none.Credit, bonus.BonusCredit, 1e-9)
	assert.InDelta(t, bonus.PPD-none.PPD, bonus.BonusPPD, 1e-9)

	late := Produce(calc, meta, frame, 72*time.Hour, protein.BonusDownloadTime)
	assert.Zero(t, late.BonusCredit)
}
