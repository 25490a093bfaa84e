// Package protein holds project metadata and the production arithmetic
// (credit and points per day) derived from it.
package protein

import (
	"sort"
	"sync"
)

// Metadata is the per-project constant set published by the project server.
type Metadata struct {
	ProjectID     int     `json:"project_id" yaml:"project_id"`
	WorkUnitName  string  `json:"work_unit_name" yaml:"work_unit_name"`
	KFactor       float64 `json:"k_factor" yaml:"k_factor"`
	Core          string  `json:"core" yaml:"core"`
	Frames        int     `json:"frames" yaml:"frames"`
	Atoms         int     `json:"atoms" yaml:"atoms"`
	Credit        float64 `json:"credit" yaml:"credit"`
	PreferredDays float64 `json:"preferred_days" yaml:"preferred_days"`
	MaximumDays   float64 `json:"maximum_days" yaml:"maximum_days"`
}

// IsZero reports whether the metadata carries no production constants.
func (m Metadata) IsZero() bool {
	return m.Frames == 0 && m.Credit == 0 && m.KFactor == 0 && m.PreferredDays == 0 && m.MaximumDays == 0
}

type Service interface {
	Get(projectID int) (Metadata, bool)
}

// Catalog is an in-memory Service safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	items map[int]Metadata
}

func NewCatalog(items ...Metadata) *Catalog {
	c := &Catalog{items: make(map[int]Metadata, len(items))}
	for _, m := range items {
		c.items[m.ProjectID] = m
	}
	return c
}

func (c *Catalog) Get(projectID int) (Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.items[projectID]
	return m, ok
}

func (c *Catalog) Put(m Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[m.ProjectID] = m
}

func (c *Catalog) ProjectIDs() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int, 0, len(c.items))
	for id := range c.items {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
