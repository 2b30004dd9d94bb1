// Package rulescache holds the current scoring rules as an immutable,
// atomically-published snapshot, so the Score Engine never observes a
// half-refreshed view while a refresh is in flight.
package rulescache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// OrganismRuleKind distinguishes a priority boost from an outright rejection.
type OrganismRuleKind int

const (
	// Priority contributes Points to phase-1 score.
	Priority OrganismRuleKind = iota
	// Unwanted short-circuits phase-1 to the rejection sentinel.
	Unwanted
)

// KeywordRule is a user-defined relevance token, pre-normalized for
// substring search. Zero weight in a field means "do not score there".
type KeywordRule struct {
	Term              string
	TitleWeight       int
	DescriptionWeight int
	ProductsWeight    int
}

// Snapshot is a coherent, immutable view of the scoring rules at one point
// in time. Never mutate a Snapshot in place — build a new one and publish it.
type Snapshot struct {
	Keywords []KeywordRule
	// OrganismPoints maps organism ID to its priority-rule points.
	OrganismPoints map[int64]int
	// UnwantedOrganisms is the set of organism IDs with an Unwanted rule.
	UnwantedOrganisms map[int64]struct{}
	// NameToID maps a normalized organism name to its ID.
	NameToID map[string]int64
	// SortedNames holds the keys of NameToID in a fixed, deterministic
	// order so "first substring match wins" resolution is reproducible
	// across runs regardless of Go's randomized map iteration order.
	SortedNames []string
}

// ResolveOrganism finds the organism ID for a normalized tender name: exact
// key match first, then the first (in SortedNames order) cache key that
// occurs as a substring of name. ok is false if nothing matches.
func (s *Snapshot) ResolveOrganism(normalizedName string) (id int64, ok bool) {
	if id, ok := s.NameToID[normalizedName]; ok {
		return id, true
	}
	for _, candidate := range s.SortedNames {
		if candidate != "" && strings.Contains(normalizedName, candidate) {
			return s.NameToID[candidate], true
		}
	}
	return 0, false
}

// OrganismLoader fetches the raw rule rows a Refresh needs to build a new
// Snapshot. Implemented by the Repository.
type OrganismLoader interface {
	LoadKeywordRules(ctx context.Context) ([]KeywordRule, error)
	LoadOrganismPriorities(ctx context.Context) (map[int64]int, error)
	LoadUnwantedOrganisms(ctx context.Context) (map[int64]struct{}, error)
	LoadOrganismNames(ctx context.Context) (map[string]int64, error)
}

// Cache holds the current Snapshot behind an atomic pointer so reads never
// block a concurrent refresh and vice versa.
type Cache struct {
	current atomic.Pointer[Snapshot]
	loader  OrganismLoader
}

// New constructs a Cache backed by loader. The cache starts with an empty
// snapshot until the first Refresh.
func New(loader OrganismLoader) *Cache {
	c := &Cache{loader: loader}
	c.current.Store(&Snapshot{
		OrganismPoints:    map[int64]int{},
		UnwantedOrganisms: map[int64]struct{}{},
		NameToID:          map[string]int64{},
	})
	return c
}

// Refresh reads all keywords, organism rules, and organism names from the
// loader, builds a new Snapshot, and publishes it atomically.
func (c *Cache) Refresh(ctx context.Context) error {
	keywords, err := c.loader.LoadKeywordRules(ctx)
	if err != nil {
		return fmt.Errorf("rulescache: load keyword rules: %w", err)
	}
	priorities, err := c.loader.LoadOrganismPriorities(ctx)
	if err != nil {
		return fmt.Errorf("rulescache: load organism priorities: %w", err)
	}
	unwanted, err := c.loader.LoadUnwantedOrganisms(ctx)
	if err != nil {
		return fmt.Errorf("rulescache: load unwanted organisms: %w", err)
	}
	names, err := c.loader.LoadOrganismNames(ctx)
	if err != nil {
		return fmt.Errorf("rulescache: load organism names: %w", err)
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	c.current.Store(&Snapshot{
		Keywords:          keywords,
		OrganismPoints:    priorities,
		UnwantedOrganisms: unwanted,
		NameToID:          names,
		SortedNames:       sorted,
	})
	return nil
}

// Current returns the currently published Snapshot. Safe for concurrent use.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}
