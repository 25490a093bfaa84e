package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// New builds the HTTP server. Nil handler groups are not mounted.
func New(addr string, healthHandler http.HandlerFunc, ingestHandlers *IngestHandlers, historyHandlers *HistoryHandlers) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	if ingestHandlers != nil {
		mux.HandleFunc("POST /v1/completions", ingestHandlers.PostCompletions)
	}
	if historyHandlers != nil {
		mux.HandleFunc("POST /v1/history/query", historyHandlers.PostQuery)
		mux.HandleFunc("DELETE /v1/history/{id}", historyHandlers.DeleteRecord)
		mux.HandleFunc("GET /v1/queries", historyHandlers.ListQueries)
		mux.HandleFunc("PUT /v1/queries", historyHandlers.PutQuery)
		mux.HandleFunc("DELETE /v1/queries/{name}", historyHandlers.DeleteQuery)
	}

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
