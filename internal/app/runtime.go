package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kon-rad/wuhistory/internal/config"
	"github.com/kon-rad/wuhistory/internal/db"
	"github.com/kon-rad/wuhistory/internal/feed"
	"github.com/kon-rad/wuhistory/internal/ingest"
	"github.com/kon-rad/wuhistory/internal/metrics"
	"github.com/kon-rad/wuhistory/internal/queries"
	"github.com/kon-rad/wuhistory/internal/server"
)

type Runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	version    string
	startedAt  time.Time
	repo       *db.Repository
	saved      *queries.Store
	worker     *ingest.Worker
	tailer     *feed.Tailer
	collector  *metrics.Collector
	httpServer *http.Server
	workerDone chan error
	bgCancel   context.CancelFunc
	bgWG       sync.WaitGroup

	// queueMu guards ingestCh against sends after close.
	queueMu     sync.RWMutex
	ingestCh    chan ingest.Event
	queueClosed bool

	eventsReceived atomic.Int64
	eventsDropped  atomic.Int64
}

func New(cfg *config.Config, logger *slog.Logger, version string) *Runtime {
	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		version:   version,
		startedAt: time.Now(),
		ingestCh:  make(chan ingest.Event, ingest.QueueCapacity),
	}
}

// Start opens the store and starts the worker and background loops without
// serving HTTP.
func (r *Runtime) Start(ctx context.Context) error {
	repo, err := OpenRepository(ctx, r.cfg, r.logger, r.cfg.AutoUpgrade)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	r.repo = repo

	journalMode, busyTimeout, foreignKeys, err := r.repo.Pragmas(ctx)
	if err != nil {
		return fmt.Errorf("query sqlite pragmas: %w", err)
	}
	version, err := r.repo.GetDatabaseVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	required, err := r.repo.RequiresUpgrade(ctx)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}
	r.logger.Info("SQLite opened",
		"path", r.cfg.DBPath,
		"journal_mode", journalMode,
		"busy_timeout", busyTimeout,
		"foreign_keys", foreignKeys,
		"schema_version", version,
		"history_enabled", r.repo.Connected(),
		"upgrade_required", required,
	)

	saved, err := queries.Open(r.cfg.QueriesPath)
	if err != nil {
		return fmt.Errorf("open saved queries: %w", err)
	}
	r.saved = saved

	r.workerDone = make(chan error, 1)
	r.worker = ingest.NewWorker(r.logger, r.repo)
	go func() {
		err := r.worker.Run(r.ingestCh)
		if err != nil {
			r.rejectIngest(err)
		}
		r.workerDone <- err
	}()

	r.collector = metrics.NewCollector(r.cfg.MetricsInterval, filepath.Dir(r.cfg.DBPath), r.logger)
	if r.cfg.FeedPath != "" {
		r.tailer = feed.New(r.cfg.FeedPath, r.cfg.FeedPoll, r, r.logger)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	r.bgCancel = bgCancel
	r.startBackgroundLoops(bgCtx)
	return nil
}

// Handler builds the HTTP server over the started runtime.
func (r *Runtime) Handler() *http.Server {
	healthHandler := server.NewHealthHandler(r.repo, r.startedAt, r.version, r)
	ingestHandlers := server.NewIngestHandlers(r)
	historyHandlers := server.NewHistoryHandlers(r.repo, r.saved, r.cfg.Bonus(), r.logger)
	return server.New(":"+r.cfg.Port, healthHandler.ServeHTTP, ingestHandlers, historyHandlers)
}

func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return errors.Join(err, r.Shutdown(context.Background()))
	}
	r.httpServer = r.Handler()

	serverErr := make(chan error, 1)
	go func() {
		r.logger.Info("Listening", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return errors.Join(fmt.Errorf("http server failed: %w", err), r.Shutdown(context.Background()))
		}
		return r.Shutdown(context.Background())
	case <-ctx.Done():
		r.logger.Info("SIGTERM received, shutting down...")
		return r.Shutdown(context.Background())
	}
}

func (r *Runtime) Snapshot() server.RuntimeSnapshot {
	snap := server.RuntimeSnapshot{
		QueueDepth:     int64(len(r.ingestCh)),
		EventsReceived: r.eventsReceived.Load(),
		EventsDropped:  r.eventsDropped.Load(),
	}
	if r.worker != nil {
		ws := r.worker.Stats()
		snap.EventsInserted = ws.Inserted
		snap.EventsDuplicate = ws.Duplicates
	}
	if r.tailer != nil {
		fs := r.tailer.Stats()
		snap.FeedLines = fs.Lines
		snap.FeedInvalid = fs.Invalid
	}
	if r.collector != nil {
		snap.Resources = r.collector.Latest()
	}
	return snap
}

// Shutdown stops HTTP, drains the queue into the store and closes it.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var joined error
	r.logger.Info("Draining ingest channel", "remaining", len(r.ingestCh))

	if r.httpServer != nil {
		httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := r.httpServer.Shutdown(httpCtx); err != nil {
			joined = errors.Join(joined, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if r.bgCancel != nil {
		r.bgCancel()
		done := make(chan struct{})
		go func() {
			r.bgWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			joined = errors.Join(joined, errors.New("background loop shutdown timeout"))
		}
	}

	r.queueMu.Lock()
	if !r.queueClosed {
		close(r.ingestCh)
		r.queueClosed = true
	}
	r.queueMu.Unlock()

	if r.workerDone != nil {
		select {
		case err := <-r.workerDone:
			if err != nil {
				joined = errors.Join(joined, fmt.Errorf("worker shutdown: %w", err))
			}
		case <-time.After(5 * time.Second):
			joined = errors.Join(joined, errors.New("worker drain timeout"))
		}
		r.workerDone = nil
	}

	if r.repo != nil {
		if r.repo.Connected() {
			cpCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := r.repo.Checkpoint(cpCtx); err != nil {
				r.logger.Warn("WAL checkpoint failed", "error", err)
				joined = errors.Join(joined, fmt.Errorf("wal checkpoint: %w", err))
			}
			cancel()
		}
		if err := r.repo.Close(); err != nil {
			joined = errors.Join(joined, fmt.Errorf("db close: %w", err))
		}
	}

	r.logger.Info("Shutdown complete",
		"total_events", r.eventsReceived.Load(),
		"uptime", time.Since(r.startedAt).String(),
	)
	return joined
}

func (r *Runtime) Enqueue(event ingest.Event) bool {
	r.queueMu.RLock()
	defer r.queueMu.RUnlock()
	if r.queueClosed {
		r.eventsDropped.Add(1)
		return false
	}
	if ingest.TryEnqueue(r.ingestCh, event) {
		r.eventsReceived.Add(1)
		return true
	}
	r.eventsDropped.Add(1)
	return false
}

// rejectIngest stops accepting events once the worker has died. Events
// still queued are reported as dropped.
func (r *Runtime) rejectIngest(cause error) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	if r.queueClosed {
		return
	}
	r.queueClosed = true
	lost := int64(len(r.ingestCh))
	r.eventsDropped.Add(lost)
	r.logger.Error("ingest worker stopped; rejecting new events", "error", cause, "queued_events_lost", lost)
}

// Repository exposes the store opened by Start.
func (r *Runtime) Repository() *db.Repository {
	return r.repo
}

func (r *Runtime) startBackgroundLoops(ctx context.Context) {
	r.bgWG.Add(1)
	go func() {
		defer r.bgWG.Done()
		if err := r.collector.Run(ctx); err != nil {
			r.logger.Warn("metrics collector stopped", "error", err)
		}
	}()

	if r.tailer != nil {
		r.bgWG.Add(1)
		go func() {
			defer r.bgWG.Done()
			if err := r.tailer.Run(ctx); err != nil {
				r.logger.Warn("completion feed stopped", "error", err)
			}
		}()
	}

	r.bgWG.Add(1)
	go func() {
		defer r.bgWG.Done()
		ticker := time.NewTicker(r.cfg.WALCheckpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cpCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				_, err := r.repo.CheckpointIfWALExceeds(cpCtx, r.cfg.WALRestartThresholdB)
				cancel()
				if err != nil {
					r.logger.Warn("wal checkpoint loop failed", "error", err)
				}
			}
		}
	}()
}
