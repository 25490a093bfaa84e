// Package history defines the persisted work-unit history record, the pure
// mapping from completion events to records, and the user-composable query
// language with its translation to SQL filters.
package history

import (
	"time"

	"github.com/kon-rad/wuhistory/internal/protein"
	"github.com/kon-rad/wuhistory/internal/workunit"
)

// Record is one row of work-unit history. ID is zero until persisted.
type Record struct {
	ID int64 `json:"id"`

	ProjectID    int `json:"project_id"`
	ProjectRun   int `json:"project_run"`
	ProjectClone int `json:"project_clone"`
	ProjectGen   int `json:"project_gen"`

	Name     string `json:"name"`
	Path     string `json:"path"`
	Username string `json:"username"`
	Team     int    `json:"team"`

	CoreVersion     float64         `json:"core_version"`
	FramesCompleted int             `json:"frames_completed"`
	FrameTime       time.Duration   `json:"frame_time"`
	Result          workunit.Result `json:"result"`
	Assigned        time.Time       `json:"assigned"`
	Finished        time.Time       `json:"finished"`

	WorkUnitName  string  `json:"work_unit_name"`
	KFactor       float64 `json:"k_factor"`
	Core          string  `json:"core"`
	Frames        int     `json:"frames"`
	Atoms         int     `json:"atoms"`
	BaseCredit    float64 `json:"base_credit"`
	PreferredDays float64 `json:"preferred_days"`
	MaximumDays   float64 `json:"maximum_days"`

	SlotType workunit.SlotType `json:"slot_type"`

	// Production is filled at read time and never persisted.
	Production ProductionView `json:"production"`
}

// ProductionView holds the credit and PPD figures for one bonus mode.
type ProductionView struct {
	Mode            protein.BonusMode `json:"mode"`
	BonusMultiplier float64           `json:"bonus_multiplier"`
	Credit          float64           `json:"credit"`
	BonusCredit     float64           `json:"bonus_credit"`
	PPD             float64           `json:"ppd"`
	BonusPPD        float64           `json:"bonus_ppd"`
}

// NaturalKey identifies one physical attempt at a unit.
type NaturalKey struct {
	ProjectID    int
	ProjectRun   int
	ProjectClone int
	ProjectGen   int
	Assigned     time.Time
}

func (r Record) Key() NaturalKey {
	return NaturalKey{
		ProjectID:    r.ProjectID,
		ProjectRun:   r.ProjectRun,
		ProjectClone: r.ProjectClone,
		ProjectGen:   r.ProjectGen,
		Assigned:     r.Assigned,
	}
}

// Metadata returns the project snapshot frozen into the record.
func (r Record) Metadata() protein.Metadata {
	return protein.Metadata{
		ProjectID:     r.ProjectID,
		WorkUnitName:  r.WorkUnitName,
		KFactor:       r.KFactor,
		Core:          r.Core,
		Frames:        r.Frames,
		Atoms:         r.Atoms,
		Credit:        r.BaseCredit,
		PreferredDays: r.PreferredDays,
		MaximumDays:   r.MaximumDays,
	}
}

// UnitTime is the assigned-to-finished span, zero when either end is unset.
func (r Record) UnitTime() time.Duration {
	if r.Assigned.IsZero() || r.Finished.IsZero() || r.Finished.Before(r.Assigned) {
		return 0
	}
	return r.Finished.Sub(r.Assigned)
}

// Produce computes the production view for meta under mode.
func Produce(calc protein.Calculator, meta protein.Metadata, frameTime, unitTime time.Duration, mode protein.BonusMode) ProductionView {
	base := calc.Credit(meta, frameTime, unitTime, protein.BonusNone)
	basePPD := calc.PPD(meta, frameTime, unitTime, protein.BonusNone)
	view := ProductionView{
		Mode:            mode,
		BonusMultiplier: calc.BonusMultiplier(meta, frameTime, unitTime, mode),
		Credit:          calc.Credit(meta, frameTime, unitTime, mode),
		PPD:             calc.PPD(meta, frameTime, unitTime, mode),
	}
	view.BonusCredit = nonNegative(view.Credit - base)
	view.BonusPPD = nonNegative(view.PPD - basePPD)
	view.Credit = nonNegative(view.Credit)
	view.PPD = nonNegative(view.PPD)
	return view
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
