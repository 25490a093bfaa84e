package history

import (
	"time"

	"github.com/kon-rad/wuhistory/internal/workunit"
)

// Map projects a completion event onto a history record. It never fails:
// missing project metadata yields zero metadata fields and a missing frame
// sample set yields zero frame figures.
func Map(ev workunit.CompletionEvent) Record {
	rec := Record{
		ProjectID:    ev.ProjectID,
		ProjectRun:   ev.ProjectRun,
		ProjectClone: ev.ProjectClone,
		ProjectGen:   ev.ProjectGen,
		Name:         workunit.SlotName(ev.Client.Name, ev.SlotID),
		Path:         ev.Client.PathString(),
		Username:     ev.Username,
		Team:         ev.Team,
		CoreVersion:  ev.CoreVersion,
		Result:       ev.Result,
		Assigned:     NormalizeTime(ev.Assigned),
		Finished:     NormalizeTime(ev.Finished),
	}

	if last, ok := ev.LastFrame(); ok {
		rec.FramesCompleted = last.ID
		if ev.FramesObserved > 0 {
			rec.FrameTime = last.Duration.Truncate(time.Second)
		}
	}

	if p := ev.Protein; p != nil {
		rec.WorkUnitName = p.WorkUnitName
		rec.KFactor = p.KFactor
		rec.Core = p.Core
		rec.Frames = p.Frames
		rec.Atoms = p.Atoms
		rec.BaseCredit = p.Credit
		rec.PreferredDays = p.PreferredDays
		rec.MaximumDays = p.MaximumDays
	}
	rec.SlotType = workunit.SlotTypeFromCore(rec.Core)
	return rec
}

// NormalizeTime converts t to UTC at the second precision the store keeps.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Second)
}
