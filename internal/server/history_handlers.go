package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kon-rad/wuhistory/internal/db"
	"github.com/kon-rad/wuhistory/internal/history"
	"github.com/kon-rad/wuhistory/internal/protein"
	"github.com/kon-rad/wuhistory/internal/queries"
)

type HistoryStore interface {
	Fetch(ctx context.Context, q history.Query, mode protein.BonusMode) ([]history.Record, error)
	Delete(ctx context.Context, id int64) (int64, error)
}

type QueryStore interface {
	Get(name string) (history.Query, bool)
	Names() []string
	Upsert(q history.Query) error
	Remove(name string) error
	Save() error
}

type HistoryHandlers struct {
	repo        HistoryStore
	saved       QueryStore
	defaultMode protein.BonusMode
	logger      *slog.Logger
}

func NewHistoryHandlers(repo HistoryStore, saved QueryStore, defaultMode protein.BonusMode, logger *slog.Logger) *HistoryHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryHandlers{repo: repo, saved: saved, defaultMode: defaultMode, logger: logger}
}

// queryRequest names a saved query or carries one inline. BonusMode
// defaults to the configured mode.
type queryRequest struct {
	Name      string             `json:"name"`
	Query     *history.Query     `json:"query"`
	BonusMode *protein.BonusMode `json:"bonus_mode"`
}

type queryResponse struct {
	Query   string           `json:"query"`
	Mode    string           `json:"bonus_mode"`
	Count   int              `json:"count"`
	Records []history.Record `json:"records"`
}

func (h *HistoryHandlers) PostQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	q := history.SelectAll
	switch {
	case req.Query != nil:
		q = *req.Query
	case req.Name != "":
		saved, ok := h.lookup(req.Name)
		if !ok {
			http.Error(w, "unknown query "+strconv.Quote(req.Name), http.StatusNotFound)
			return
		}
		q = saved
	}
	mode := h.defaultMode
	if req.BonusMode != nil {
		mode = *req.BonusMode
	}

	records, err := h.repo.Fetch(r.Context(), q, mode)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Query:   q.Name,
		Mode:    mode.String(),
		Count:   len(records),
		Records: records,
	})
}

func (h *HistoryHandlers) lookup(name string) (history.Query, bool) {
	if h.saved == nil {
		if name == history.SelectAllName {
			return history.SelectAll, true
		}
		return history.Query{}, false
	}
	return h.saved.Get(name)
}

func (h *HistoryHandlers) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	n, err := h.repo.Delete(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if n == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *HistoryHandlers) ListQueries(w http.ResponseWriter, _ *http.Request) {
	names := []string{history.SelectAllName}
	if h.saved != nil {
		names = h.saved.Names()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"queries": names})
}

func (h *HistoryHandlers) PutQuery(w http.ResponseWriter, r *http.Request) {
	if h.saved == nil {
		http.Error(w, "saved queries disabled", http.StatusNotFound)
		return
	}
	var q history.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.saved.Upsert(q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.saved.Save(); err != nil {
		h.logger.Error("save queries failed", "error", err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandlers) DeleteQuery(w http.ResponseWriter, r *http.Request) {
	if h.saved == nil {
		http.Error(w, "saved queries disabled", http.StatusNotFound)
		return
	}
	err := h.saved.Remove(r.PathValue("name"))
	switch {
	case errors.Is(err, queries.ErrReserved):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, queries.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.saved.Save(); err != nil {
		h.logger.Error("save queries failed", "error", err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandlers) writeStoreError(w http.ResponseWriter, err error) {
	var terr *history.TranslateError
	switch {
	case errors.As(err, &terr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, db.ErrNotConnected), errors.Is(err, db.ErrClosed):
		http.Error(w, "history unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("history request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
