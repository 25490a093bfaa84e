package server

import (
	"context"
	"net/http"
	"time"

	"github.com/kon-rad/wuhistory/internal/db"
	"github.com/kon-rad/wuhistory/internal/metrics"
)

type RuntimeSnapshot struct {
	QueueDepth      int64
	EventsReceived  int64
	EventsDropped   int64
	EventsInserted  int64
	EventsDuplicate int64
	FeedLines       int64
	FeedInvalid     int64
	Resources       *metrics.Sample
}

type SnapshotProvider interface {
	Snapshot() RuntimeSnapshot
}

// HealthSource is the part of the repository health reporting reads.
type HealthSource interface {
	Stats() db.HealthStats
	Connected() bool
	GetDatabaseVersion(ctx context.Context) (string, error)
	RequiresUpgrade(ctx context.Context) (bool, error)
}

type HealthResponse struct {
	Status          string   `json:"status"`
	UptimeSeconds   int64    `json:"uptime_seconds"`
	Version         string   `json:"version"`
	DBStatus        string   `json:"db_status"`
	DBSizeBytes     int64    `json:"db_size_bytes"`
	WALSizeBytes    int64    `json:"wal_size_bytes"`
	SchemaVersion   string   `json:"schema_version"`
	HistoryEnabled  bool     `json:"history_enabled"`
	UpgradeRequired bool     `json:"upgrade_required"`
	QueueDepth      int64    `json:"queue_depth"`
	EventsReceived  int64    `json:"events_received"`
	EventsDropped   int64    `json:"events_dropped"`
	EventsInserted  int64    `json:"events_inserted"`
	EventsDuplicate int64    `json:"events_duplicate"`
	FeedLines       int64    `json:"feed_lines"`
	FeedInvalid     int64    `json:"feed_invalid"`
	GeneratedAt     string   `json:"generated_at"`
	Warnings        []string `json:"warnings,omitempty"`

	Resources *metrics.Sample `json:"resources,omitempty"`
}

type HealthHandler struct {
	repo        HealthSource
	startTime   time.Time
	version     string
	snapshotter SnapshotProvider
}

func NewHealthHandler(repo HealthSource, start time.Time, version string, snapshotter SnapshotProvider) *HealthHandler {
	return &HealthHandler{
		repo:        repo,
		startTime:   start,
		version:     version,
		snapshotter: snapshotter,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.snapshotter.Snapshot()
	dbStats := h.repo.Stats()
	schemaVersion, err := h.repo.GetDatabaseVersion(r.Context())

	resp := HealthResponse{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(h.startTime).Seconds()),
		Version:         h.version,
		DBStatus:        dbStats.DBStatus,
		DBSizeBytes:     dbStats.DBSizeBytes,
		WALSizeBytes:    dbStats.WALSize,
		SchemaVersion:   schemaVersion,
		HistoryEnabled:  h.repo.Connected(),
		QueueDepth:      snapshot.QueueDepth,
		EventsReceived:  snapshot.EventsReceived,
		EventsDropped:   snapshot.EventsDropped,
		EventsInserted:  snapshot.EventsInserted,
		EventsDuplicate: snapshot.EventsDuplicate,
		FeedLines:       snapshot.FeedLines,
		FeedInvalid:     snapshot.FeedInvalid,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		Resources:       snapshot.Resources,
	}

	if err != nil {
		resp.Status = "degraded"
		resp.Warnings = append(resp.Warnings, "schema_version_unavailable")
	}
	if resp.HistoryEnabled {
		required, err := h.repo.RequiresUpgrade(r.Context())
		switch {
		case err != nil:
			resp.Status = "degraded"
			resp.Warnings = append(resp.Warnings, "upgrade_check_failed")
		case required:
			resp.UpgradeRequired = true
			resp.Status = "degraded"
			resp.Warnings = append(resp.Warnings, "history_upgrade_required")
		}
	} else {
		resp.Status = "degraded"
		resp.Warnings = append(resp.Warnings, "history_disabled")
	}
	if resp.DBStatus != "ok" {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}
