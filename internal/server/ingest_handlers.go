package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kon-rad/wuhistory/internal/ingest"
)

const maxIngestBodyBytes = 4 << 20

type IngestEnqueuer interface {
	Enqueue(event ingest.Event) bool
}

type IngestHandlers struct {
	enqueuer IngestEnqueuer
}

type ingestResponse struct {
	Accepted int      `json:"accepted"`
	Dropped  int      `json:"dropped,omitempty"`
	EventIDs []string `json:"event_ids"`
}

func NewIngestHandlers(enqueuer IngestEnqueuer) *IngestHandlers {
	return &IngestHandlers{enqueuer: enqueuer}
}

// PostCompletions accepts a single completion object or an array of them.
// Every payload is validated before any is queued.
func (h *IngestHandlers) PostCompletions(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBodyBytes+1))
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	if len(raw) > maxIngestBodyBytes {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var payloads []ingest.CompletionPayload
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &payloads)
	} else {
		var p ingest.CompletionPayload
		err = json.Unmarshal(trimmed, &p)
		payloads = append(payloads, p)
	}
	if err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(payloads) == 0 {
		http.Error(w, "no completions", http.StatusBadRequest)
		return
	}

	events := make([]ingest.Event, 0, len(payloads))
	for _, p := range payloads {
		ev, err := ingest.NewEvent(p, ingest.SourceHTTP)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		events = append(events, ev)
	}

	resp := ingestResponse{EventIDs: make([]string, 0, len(events))}
	for _, ev := range events {
		if !h.enqueuer.Enqueue(ev) {
			resp.Dropped++
			continue
		}
		resp.Accepted++
		resp.EventIDs = append(resp.EventIDs, ev.ID.String())
	}

	if resp.Accepted == 0 {
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}
