package rulescache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	keywords     []KeywordRule
	priorities   map[int64]int
	unwanted     map[int64]struct{}
	names        map[string]int64
	refreshCalls int
}

func (s *stubLoader) LoadKeywordRules(context.Context) ([]KeywordRule, error) {
	s.refreshCalls++
	return s.keywords, nil
}
func (s *stubLoader) LoadOrganismPriorities(context.Context) (map[int64]int, error) {
	return s.priorities, nil
}
func (s *stubLoader) LoadUnwantedOrganisms(context.Context) (map[int64]struct{}, error) {
	return s.unwanted, nil
}
func (s *stubLoader) LoadOrganismNames(context.Context) (map[string]int64, error) {
	return s.names, nil
}

func TestRefreshPublishesSnapshotAtomically(t *testing.T) {
	loader := &stubLoader{
		keywords:   []KeywordRule{{Term: "compra", TitleWeight: 5}},
		priorities: map[int64]int{1: 10},
		unwanted:   map[int64]struct{}{2: {}},
		names:      map[string]int64{"ministerio a": 1, "muni y": 2},
	}
	cache := New(loader)
	require.Empty(t, cache.Current().Keywords)

	require.NoError(t, cache.Refresh(context.Background()))
	snap := cache.Current()
	require.Len(t, snap.Keywords, 1)
	require.Equal(t, 10, snap.OrganismPoints[1])
	_, unwanted := snap.UnwantedOrganisms[2]
	require.True(t, unwanted)
	require.Equal(t, []string{"ministerio a", "muni y"}, snap.SortedNames)
}

func TestResolveOrganismExactThenSubstring(t *testing.T) {
	snap := &Snapshot{
		NameToID:    map[string]int64{"hospital x": 1, "hospital x central": 2},
		SortedNames: []string{"hospital x", "hospital x central"},
	}
	id, ok := snap.ResolveOrganism("hospital x")
	require.True(t, ok)
	require.Equal(t, int64(1), id)

	id, ok = snap.ResolveOrganism("gran hospital x anexo norte")
	require.True(t, ok)
	require.Equal(t, int64(1), id)

	_, ok = snap.ResolveOrganism("clinica desconocida")
	require.False(t, ok)
}
