// Package catalog holds the candidate tiles available to a mosaic run and
// answers nearest-color queries under a per-candidate reuse limit.
//
// # Usage accounting
//
// Every [Candidate] carries a usage counter owned by its [Catalog]. The
// counter only changes through [Catalog.Nearest], which increments the
// winner's count. A Catalog is not safe for concurrent
// use: Nearest reads and writes counters without locking, and matching is
// expected to run on a single goroutine. Use [Catalog.Clone] to give another
// goroutine its own counters.
//
// # Matching
//
// Nearest is a brute-force scan over all candidates in load order. Ties are
// broken by load order (the first candidate at the minimum distance wins),
// which makes assignment deterministic for a fixed catalog.
package catalog

import (
	"math"

	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/hsv"
)

// Entry describes a candidate to load.
type Entry struct {
	ID     string    // Unique candidate identifier
	Color  hsv.Color // Average color of the pre-resized tile
	Source string    // Where the tile came from (informational)
}

// Candidate is a loaded entry plus its usage count.
type Candidate struct {
	ID     string    `json:"id"`
	Color  hsv.Color `json:"color"`
	Source string    `json:"source,omitempty"`
	Uses   int       `json:"uses"`
}

// Catalog is an ordered set of candidates unique by ID.
type Catalog struct {
	candidates []Candidate
	index      map[string]int
}

// New builds a catalog from entries, preserving their order.
// It rejects empty IDs, duplicate IDs, and colors outside [0,1].
// An empty entry list is allowed; every Nearest query on it fails.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		candidates: make([]Candidate, 0, len(entries)),
		index:      make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if e.ID == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, "entry %d has no id", i)
		}
		if _, dup := c.index[e.ID]; dup {
			return nil, errors.New(errors.ErrCodeInvalidInput, "duplicate candidate id %q", e.ID)
		}
		if !e.Color.Valid() {
			return nil, errors.New(errors.ErrCodeInvalidInput, "candidate %q has color %v outside [0,1]", e.ID, e.Color)
		}
		c.index[e.ID] = len(c.candidates)
		c.candidates = append(c.candidates, Candidate{
			ID:     e.ID,
			Color:  e.Color,
			Source: e.Source,
		})
	}
	return c, nil
}

// Nearest returns the eligible candidate closest to target and records one
// use of it. With limit > 0, candidates already used limit times are
// skipped; limit == 0 disables the reuse constraint.
//
// It fails with NO_ELIGIBLE_CANDIDATE when the catalog is empty or every
// candidate has reached the limit; the caller must raise the limit or add
// candidates. A negative limit is INVALID_CONFIGURATION.
func (c *Catalog) Nearest(target hsv.Color, limit int) (Candidate, error) {
	if limit < 0 {
		return Candidate{}, errors.New(errors.ErrCodeInvalidConfig, "repeat limit must not be negative, got %d", limit)
	}

	best := -1
	bestDist := math.Inf(1)
	for i := range c.candidates {
		cand := &c.candidates[i]
		if limit > 0 && cand.Uses >= limit {
			continue
		}
		if d := hsv.Distance(target, cand.Color); d < bestDist {
			best, bestDist = i, d
		}
	}

	if best < 0 {
		if len(c.candidates) == 0 {
			return Candidate{}, errors.New(errors.ErrCodeNoEligibleCandidate, "catalog is empty")
		}
		return Candidate{}, errors.New(errors.ErrCodeNoEligibleCandidate,
			"all %d candidates reached the repeat limit of %d; raise the limit or add more source images",
			len(c.candidates), limit)
	}

	c.candidates[best].Uses++
	return c.candidates[best], nil
}

// Len returns the number of candidates.
func (c *Catalog) Len() int {
	return len(c.candidates)
}

// Get returns the candidate with the given ID.
func (c *Catalog) Get(id string) (Candidate, bool) {
	i, ok := c.index[id]
	if !ok {
		return Candidate{}, false
	}
	return c.candidates[i], true
}

// Candidates returns a copy of all candidates in load order.
func (c *Catalog) Candidates() []Candidate {
	out := make([]Candidate, len(c.candidates))
	copy(out, c.candidates)
	return out
}

// Clone returns a catalog with the same candidates and independent usage
// counters. Counters start at their current values.
func (c *Catalog) Clone() *Catalog {
	clone := &Catalog{
		candidates: c.Candidates(),
		index:      make(map[string]int, len(c.index)),
	}
	for id, i := range c.index {
		clone.index[id] = i
	}
	return clone
}
