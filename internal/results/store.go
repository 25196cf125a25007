// Package results keeps run results in memory, bounded by batch pruning.
package results

import (
	"sort"
	"sync"

	"run-sphere/internal/run"
)

// Defaults for the store bounds.
const (
	DefaultMaxEntries = 1000
	DefaultRetain     = 500
)

type entry struct {
	result run.Result
	seq    uint64
}

// Store maps run ids to results. Once more than maxEntries are held,
// PruneIfNeeded keeps only the retain most recently created results.
type Store struct {
	mu         sync.RWMutex
	runs       map[string]entry
	seq        uint64
	maxEntries int
	retain     int
}

// NewStore returns an empty store. Non-positive bounds fall back to defaults.
func NewStore(maxEntries, retain int) *Store {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	if retain < 1 || retain > maxEntries {
		retain = DefaultRetain
		if retain > maxEntries {
			retain = maxEntries
		}
	}
	return &Store{
		runs:       make(map[string]entry),
		maxEntries: maxEntries,
		retain:     retain,
	}
}

// Put stores a copy of res under res.ID.
func (s *Store) Put(res run.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.runs[res.ID] = entry{result: res.Clone(), seq: s.seq}
}

// Get returns a copy of the result stored under id.
func (s *Store) Get(id string) (run.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.runs[id]
	if !ok {
		return run.Result{}, false
	}
	return e.result.Clone(), true
}

// Len returns the number of stored results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// PruneIfNeeded compacts the store when it exceeds its ceiling and returns
// how many results were discarded.
func (s *Store) PruneIfNeeded() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.runs) <= s.maxEntries {
		return 0
	}

	entries := make([]entry, 0, len(s.runs))
	for _, e := range s.runs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.result.CreatedAt.Equal(b.result.CreatedAt) {
			return a.result.CreatedAt.After(b.result.CreatedAt)
		}
		return a.seq > b.seq
	})

	kept := make(map[string]entry, s.retain)
	for _, e := range entries[:s.retain] {
		kept[e.result.ID] = e
	}
	evicted := len(s.runs) - len(kept)
	s.runs = kept
	return evicted
}

// Close drops every stored result.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[string]entry)
}
