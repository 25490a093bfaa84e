// Package queries persists the user's named history queries as YAML.
package queries

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kon-rad/wuhistory/internal/history"
)

var (
	ErrReserved = errors.New("query name is reserved")
	ErrNoName   = errors.New("query name is required")
	ErrNotFound = errors.New("query not found")
)

const fileVersion = 1

type file struct {
	Version int             `yaml:"version"`
	Queries []history.Query `yaml:"queries"`
}

// Store holds the saved queries. The select-all query is always first and
// cannot be changed or removed.
type Store struct {
	mu      sync.RWMutex
	path    string
	queries []history.Query

	// saveMu is held from snapshot to rename so files land in snapshot order.
	saveMu sync.Mutex
}

// Open loads the store at path. A missing file yields a store holding only
// the select-all query.
func Open(path string) (*Store, error) {
	s := &Store{path: path, queries: []history.Query{history.SelectAll}}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory queries with the file contents.
func (s *Store) Load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.queries = []history.Query{history.SelectAll}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parsing %s: %w", s.path, err)
	}
	if f.Version > fileVersion {
		return fmt.Errorf("parsing %s: unsupported version %d", s.path, f.Version)
	}

	loaded := []history.Query{history.SelectAll}
	seen := map[string]bool{history.SelectAllName: true}
	for i, q := range f.Queries {
		if q.Name == history.SelectAllName {
			continue
		}
		if err := validate(q); err != nil {
			return fmt.Errorf("parsing %s: query %d: %w", s.path, i, err)
		}
		if seen[q.Name] {
			return fmt.Errorf("parsing %s: duplicate query %q", s.path, q.Name)
		}
		seen[q.Name] = true
		loaded = append(loaded, q)
	}

	s.mu.Lock()
	s.queries = loaded
	s.mu.Unlock()
	return nil
}

// Save writes the queries atomically using a temp file and rename.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	f := file{Version: fileVersion, Queries: append([]history.Query(nil), s.queries[1:]...)}
	s.mu.RUnlock()

	raw, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding queries: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create queries dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".queries-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing queries: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing queries: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming queries file: %w", err)
	}
	return nil
}

// Upsert validates q and adds it, replacing a saved query of the same name.
func (s *Store) Upsert(q history.Query) error {
	q.Name = strings.TrimSpace(q.Name)
	if q.Name == "" {
		return ErrNoName
	}
	if q.Name == history.SelectAllName {
		return ErrReserved
	}
	q = normalize(q)
	if err := validate(q); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queries {
		if s.queries[i].Name == q.Name {
			s.queries[i] = q
			return nil
		}
	}
	s.queries = append(s.queries, q)
	return nil
}

func (s *Store) Remove(name string) error {
	if name == history.SelectAllName {
		return ErrReserved
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queries {
		if s.queries[i].Name == name {
			s.queries = append(s.queries[:i], s.queries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

func (s *Store) Get(name string) (history.Query, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.queries {
		if q.Name == name {
			return q, true
		}
	}
	return history.Query{}, false
}

// Names lists the saved query names in order, select-all first.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.queries))
	for i, q := range s.queries {
		out[i] = q.Name
	}
	return out
}

func validate(q history.Query) error {
	if q.Name == "" {
		return ErrNoName
	}
	_, err := history.Translate(q)
	return err
}

// normalize rewrites predicate values into forms that survive a YAML round
// trip unchanged in meaning.
func normalize(q history.Query) history.Query {
	preds := make([]history.Predicate, len(q.Predicates))
	for i, p := range q.Predicates {
		switch v := p.Value.(type) {
		case time.Time:
			p.Value = history.FormatTime(v)
		case time.Duration:
			p.Value = v.String()
		case fmt.Stringer:
			p.Value = v.String()
		}
		preds[i] = p
	}
	q.Predicates = preds
	return q
}
