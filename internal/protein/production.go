package protein

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// BonusMode selects which unit time feeds the quick-return bonus.
type BonusMode int

const (
	BonusDownloadTime BonusMode = iota
	BonusFrameTime
	BonusNone
)

func (m BonusMode) String() string {
	switch m {
	case BonusDownloadTime:
		return "DownloadTime"
	case BonusFrameTime:
		return "FrameTime"
	default:
		return "None"
	}
}

func ParseBonusMode(s string) (BonusMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "downloadtime", "download_time", "download":
		return BonusDownloadTime, nil
	case "frametime", "frame_time", "frame":
		return BonusFrameTime, nil
	case "none", "":
		return BonusNone, nil
	}
	return BonusNone, fmt.Errorf("unknown bonus mode %q", s)
}

func (m BonusMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *BonusMode) UnmarshalText(b []byte) error {
	v, err := ParseBonusMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

type Calculator interface {
	BonusMultiplier(meta Metadata, frameTime, unitTime time.Duration, mode BonusMode) float64
	Credit(meta Metadata, frameTime, unitTime time.Duration, mode BonusMode) float64
	PPD(meta Metadata, frameTime, unitTime time.Duration, mode BonusMode) float64
}

// ProductionCalculator implements the published quick-return bonus formula:
// multiplier = max(1, sqrt(k * maximumDays / unitDays)) when the unit was
// returned within the preferred deadline, 1 otherwise.
type ProductionCalculator struct{}

var _ Calculator = ProductionCalculator{}

// bonusUnitTime picks the unit time used for the bonus. downloadTime is the
// assigned-to-finished span; frame mode derives it from frame time.
func bonusUnitTime(meta Metadata, frameTime, downloadTime time.Duration, mode BonusMode) time.Duration {
	switch mode {
	case BonusDownloadTime:
		return downloadTime
	case BonusFrameTime:
		return frameTime * time.Duration(meta.Frames)
	default:
		return 0
	}
}

func (ProductionCalculator) BonusMultiplier(meta Metadata, frameTime, unitTime time.Duration, mode BonusMode) float64 {
	if mode == BonusNone || meta.KFactor <= 0 {
		return 1
	}
	t := bonusUnitTime(meta, frameTime, unitTime, mode)
	if t <= 0 {
		return 1
	}
	days := t.Hours() / 24
	if meta.PreferredDays > 0 && days > meta.PreferredDays {
		return 1
	}
	mult := math.Sqrt(meta.KFactor * meta.MaximumDays / days)
	if math.IsNaN(mult) || math.IsInf(mult, 0) || mult < 1 {
		return 1
	}
	return math.Round(mult*100) / 100
}

func (c ProductionCalculator) Credit(meta Metadata, frameTime, unitTime time.Duration, mode BonusMode) float64 {
	if meta.Credit <= 0 {
		return 0
	}
	return meta.Credit * c.BonusMultiplier(meta, frameTime, unitTime, mode)
}

// PPD extrapolates credit over one day of production at the given frame time.
func (c ProductionCalculator) PPD(meta Metadata, frameTime, unitTime time.Duration, mode BonusMode) float64 {
	if frameTime <= 0 || meta.Frames <= 0 {
		return 0
	}
	perUnit := frameTime * time.Duration(meta.Frames)
	unitsPerDay := (24 * time.Hour).Seconds() / perUnit.Seconds()
	return c.Credit(meta, frameTime, unitTime, mode) * unitsPerDay
}
