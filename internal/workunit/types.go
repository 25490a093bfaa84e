package workunit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kon-rad/wuhistory/internal/protein"
)

// NoSlotID marks a client that does not expose individual slots.
const NoSlotID = -1

// NoPort marks a client reached without an explicit TCP port.
const NoPort = 0

type Client struct {
	Name   string
	Server string
	Port   int
	GUID   uuid.UUID
}

// PathString returns "server:port" when the port is a valid TCP port and the
// bare server otherwise.
func (c Client) PathString() string {
	if c.Port > 0 && c.Port <= 65535 {
		return c.Server + ":" + strconv.Itoa(c.Port)
	}
	return c.Server
}

// SlotName appends the two-digit slot number used by multi-slot clients.
func SlotName(name string, slotID int) string {
	if slotID < 0 {
		return name
	}
	return fmt.Sprintf("%s Slot %02d", name, slotID)
}

type Frame struct {
	ID       int
	Duration time.Duration
}

// CompletionEvent is a finished or failed unit as reported by a client.
type CompletionEvent struct {
	ProjectID    int
	ProjectRun   int
	ProjectClone int
	ProjectGen   int

	Client   Client
	SlotID   int
	Username string
	Team     int

	CoreVersion float64
	Result      Result
	Assigned    time.Time
	Finished    time.Time

	FramesObserved int
	Frames         map[int]Frame

	Protein *protein.Metadata
}

// LastFrame returns the sample with the highest frame index.
func (e CompletionEvent) LastFrame() (Frame, bool) {
	var (
		last  Frame
		found bool
	)
	for idx, f := range e.Frames {
		if !found || idx > last.ID {
			last = Frame{ID: idx, Duration: f.Duration}
			found = true
		}
	}
	return last, found
}

type SlotType int

const (
	SlotTypeUnknown SlotType = iota
	SlotTypeCPU
	SlotTypeGPU
)

func (t SlotType) String() string {
	switch t {
	case SlotTypeCPU:
		return "CPU"
	case SlotTypeGPU:
		return "GPU"
	default:
		return "Unknown"
	}
}

// ParseSlotType is the inverse of String. Unrecognized names are Unknown.
func ParseSlotType(s string) SlotType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CPU":
		return SlotTypeCPU
	case "GPU":
		return SlotTypeGPU
	default:
		return SlotTypeUnknown
	}
}

func (t SlotType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *SlotType) UnmarshalText(b []byte) error {
	*t = ParseSlotType(string(b))
	return nil
}

var gpuCores = map[string]struct{}{
	"GROGPU2":       {},
	"GROGPU2-MT":    {},
	"ATI-DEV":       {},
	"NVIDIA-DEV":    {},
	"OPENMMGPU":     {},
	"OPENMM_OPENCL": {},
	"ZETA":          {},
	"ZETA_DEV":      {},
	"OPENMM_21":     {},
	"OPENMM_22":     {},
	"OPENMM_23":     {},
	"OPENMM_24":     {},
	"OPENMM_25":     {},
	"OPENMM_26":     {},
	"OPENMM_27":     {},
}

var cpuCores = map[string]struct{}{
	"GROMACS":   {},
	"DGROMACS":  {},
	"GBGROMACS": {},
	"AMBER":     {},
	"GROMACS33": {},
	"GROST":     {},
	"GROSIMT":   {},
	"DGROMACSB": {},
	"DGROMACSC": {},
	"GRO-A4":    {},
	"PROTOMOL":  {},
	"GRO-SMP":   {},
	"GROCVS":    {},
	"GRO-A3":    {},
	"GRO-A5":    {},
	"GRO-A6":    {},
	"GRO-A7":    {},
	"GRO_A8":    {},
	"GRO-A8":    {},
}

// SlotTypeFromCore classifies a core name. Matching is case-insensitive.
func SlotTypeFromCore(core string) SlotType {
	key := strings.ToUpper(strings.TrimSpace(core))
	if key == "" {
		return SlotTypeUnknown
	}
	if _, ok := gpuCores[key]; ok {
		return SlotTypeGPU
	}
	if _, ok := cpuCores[key]; ok {
		return SlotTypeCPU
	}
	return SlotTypeUnknown
}
