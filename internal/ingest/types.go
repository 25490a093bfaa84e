package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kon-rad/wuhistory/internal/protein"
	"github.com/kon-rad/wuhistory/internal/workunit"
)

const (
	QueueCapacity = 512
	MaxBatchSize  = 50
	FlushWindow   = 500 * time.Millisecond
)

// Text limits follow the history column widths.
const (
	maxNameBytes     = 60
	maxPathBytes     = 260
	maxUsernameBytes = 60
)

type Source string

const (
	SourceHTTP   Source = "http"
	SourceFeed   Source = "feed"
	SourceImport Source = "import"
)

// Event is one completion queued for the repository.
type Event struct {
	ID         uuid.UUID
	Source     Source
	ReceivedAt time.Time
	Completion workunit.CompletionEvent
}

var ErrInvalidPayload = errors.New("invalid completion payload")

type ClientPayload struct {
	Name   string    `json:"name"`
	Server string    `json:"server"`
	Port   int       `json:"port"`
	GUID   uuid.UUID `json:"guid"`
}

type FramePayload struct {
	ID              int     `json:"id"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// CompletionPayload is the JSON form of a completion event accepted over
// HTTP, from the feed file and by the importer.
type CompletionPayload struct {
	ProjectID    int `json:"project_id"`
	ProjectRun   int `json:"project_run"`
	ProjectClone int `json:"project_clone"`
	ProjectGen   int `json:"project_gen"`

	Client   ClientPayload `json:"client"`
	SlotID   *int          `json:"slot_id,omitempty"`
	Username string        `json:"username"`
	Team     int           `json:"team"`

	CoreVersion float64         `json:"core_version"`
	Result      workunit.Result `json:"result"`
	Assigned    time.Time       `json:"assigned"`
	Finished    time.Time       `json:"finished"`

	FramesObserved int               `json:"frames_observed"`
	Frames         []FramePayload    `json:"frames,omitempty"`
	Protein        *protein.Metadata `json:"protein,omitempty"`
}

func (p CompletionPayload) Validate() error {
	switch {
	case p.ProjectID <= 0:
		return fmt.Errorf("%w: project_id is required", ErrInvalidPayload)
	case p.ProjectRun < 0 || p.ProjectClone < 0 || p.ProjectGen < 0:
		return fmt.Errorf("%w: project run, clone and gen must not be negative", ErrInvalidPayload)
	case p.Client.Name == "":
		return fmt.Errorf("%w: client.name is required", ErrInvalidPayload)
	case p.Assigned.IsZero():
		return fmt.Errorf("%w: assigned is required", ErrInvalidPayload)
	case !p.Finished.IsZero() && p.Finished.Before(p.Assigned):
		return fmt.Errorf("%w: finished precedes assigned", ErrInvalidPayload)
	}
	for _, f := range p.Frames {
		if f.ID < 0 || f.DurationSeconds < 0 {
			return fmt.Errorf("%w: frame %d is out of range", ErrInvalidPayload, f.ID)
		}
	}
	return nil
}

// Completion converts the payload into the domain event.
func (p CompletionPayload) Completion() workunit.CompletionEvent {
	slotID := workunit.NoSlotID
	if p.SlotID != nil {
		slotID = *p.SlotID
	}
	ev := workunit.CompletionEvent{
		ProjectID:    p.ProjectID,
		ProjectRun:   p.ProjectRun,
		ProjectClone: p.ProjectClone,
		ProjectGen:   p.ProjectGen,
		Client: workunit.Client{
			Name:   TruncateBytes(p.Client.Name, maxNameBytes),
			Server: TruncateBytes(p.Client.Server, maxPathBytes),
			Port:   p.Client.Port,
			GUID:   p.Client.GUID,
		},
		SlotID:         slotID,
		Username:       TruncateBytes(p.Username, maxUsernameBytes),
		Team:           p.Team,
		CoreVersion:    p.CoreVersion,
		Result:         p.Result,
		Assigned:       p.Assigned,
		Finished:       p.Finished,
		FramesObserved: p.FramesObserved,
		Protein:        p.Protein,
	}
	if len(p.Frames) > 0 {
		ev.Frames = make(map[int]workunit.Frame, len(p.Frames))
		for _, f := range p.Frames {
			ev.Frames[f.ID] = workunit.Frame{
				ID:       f.ID,
				Duration: time.Duration(f.DurationSeconds * float64(time.Second)),
			}
		}
	}
	return ev
}

// NewEvent validates p and wraps it for the queue with a fresh event ID.
func NewEvent(p CompletionPayload, source Source) (Event, error) {
	if err := p.Validate(); err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.New(),
		Source:     source,
		ReceivedAt: time.Now().UTC(),
		Completion: p.Completion(),
	}, nil
}

func TryEnqueue(ch chan Event, event Event) bool {
	select {
	case ch <- event:
		return true
	default:
		return false
	}
}
