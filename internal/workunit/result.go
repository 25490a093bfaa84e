package workunit

import (
	"fmt"
	"strconv"
	"strings"
)

// Result is the outcome code a client reports for a unit. The numeric values
// are persisted and must not be reordered.
type Result int

const (
	ResultUnknown Result = iota
	ResultFinishedUnit
	ResultEarlyUnitEnd
	ResultUnstableMachine
	ResultInterrupted
	ResultBadWorkUnit
	ResultCoreOutdated
	ResultGPUMemtestError
	ResultUnknownEnum
)

var resultNames = []string{
	"Unknown",
	"FinishedUnit",
	"EarlyUnitEnd",
	"UnstableMachine",
	"Interrupted",
	"BadWorkUnit",
	"CoreOutdated",
	"GPUMemtestError",
	"UnknownEnum",
}

func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return "Unknown"
	}
	return resultNames[r]
}

// ParseResult accepts a result name (case-insensitive) or its numeric code.
func ParseResult(s string) (Result, error) {
	s = strings.TrimSpace(s)
	for i, name := range resultNames {
		if strings.EqualFold(name, s) {
			return Result(i), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return ResultUnknown, fmt.Errorf("unknown result %q", s)
	}
	return Result(n), nil
}

func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Result) UnmarshalText(b []byte) error {
	v, err := ParseResult(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
