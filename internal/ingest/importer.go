package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

const maxLineBytes = 1 << 20

// ImportResult totals an Import run.
type ImportResult struct {
	Files      int   `json:"files"`
	Lines      int64 `json:"lines"`
	Inserted   int64 `json:"inserted"`
	Duplicates int64 `json:"duplicates"`
	Invalid    int64 `json:"invalid"`
}

type Importer struct {
	logger      *slog.Logger
	repo        Inserter
	concurrency int
	// Strict makes a malformed line fail the import instead of being counted
	// and skipped.
	Strict bool
}

func NewImporter(logger *slog.Logger, repo Inserter, concurrency int) *Importer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Importer{logger: logger, repo: repo, concurrency: concurrency}
}

type importCounters struct {
	lines, inserted, duplicates, invalid atomic.Int64
}

// Import reads JSON-lines completion files concurrently and inserts every
// event. Duplicates across and within files are absorbed by the repository.
func (im *Importer) Import(ctx context.Context, paths ...string) (ImportResult, error) {
	var c importCounters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)
	for _, path := range paths {
		g.Go(func() error {
			return im.importFile(gctx, path, &c)
		})
	}
	err := g.Wait()
	res := ImportResult{
		Files:      len(paths),
		Lines:      c.lines.Load(),
		Inserted:   c.inserted.Load(),
		Duplicates: c.duplicates.Load(),
		Invalid:    c.invalid.Load(),
	}
	im.logger.Info("import finished",
		"files", res.Files,
		"lines", res.Lines,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"invalid", res.Invalid,
	)
	return res, err
}

func (im *Importer) importFile(ctx context.Context, path string, c *importCounters) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c.lines.Add(1)

		ev, err := DecodeLine(line, SourceImport)
		if err != nil {
			if im.Strict {
				return fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			c.invalid.Add(1)
			im.logger.Warn("import line skipped", "path", path, "line", lineNo, "error", err)
			continue
		}
		n, err := im.repo.Insert(ctx, ev.Completion)
		if err != nil {
			return fmt.Errorf("%s:%d: insert: %w", path, lineNo, err)
		}
		if n == 0 {
			c.duplicates.Add(1)
		} else {
			c.inserted.Add(n)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}
	return nil
}

// DecodeLine parses one JSON-lines record into a queued event.
func DecodeLine(line []byte, source Source) (Event, error) {
	var p CompletionPayload
	if err := json.Unmarshal(line, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return NewEvent(p, source)
}
