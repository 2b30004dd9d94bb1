package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ca-refa/licita-monitor/pkg/rulescache"
)

func TestNormalizeStripsAccentsAndCollapsesSpace(t *testing.T) {
	require.Equal(t, "ministerio de educacion", Normalize("  Ministerio  de Educación "))
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, s := range []string{"Compra Ágil", "  múltiples   espacios  ", "", "Señal"} {
		once := Normalize(s)
		twice := Normalize(once)
		require.Equal(t, once, twice)
	}
}

func snapshotWithKeyword(term string, titleWeight int) *rulescache.Snapshot {
	return &rulescache.Snapshot{
		Keywords:          []rulescache.KeywordRule{{Term: term, TitleWeight: titleWeight}},
		OrganismPoints:    map[int64]int{},
		UnwantedOrganisms: map[int64]struct{}{},
		NameToID:          map[string]int64{},
	}
}

func TestPhase1ColdHarvestScenario(t *testing.T) {
	snap := &rulescache.Snapshot{
		Keywords:          []rulescache.KeywordRule{{Term: "compra", TitleWeight: 5}},
		OrganismPoints:    map[int64]int{1: 10},
		UnwantedOrganisms: map[int64]struct{}{},
		NameToID:          map[string]int64{"ministerio a": 1},
		SortedNames:       []string{"ministerio a"},
	}
	score, trace := Phase1(snap, ListingInput{
		Name:         "Compra X",
		StateText:    "Publicada",
		OrganismName: "Ministerio A",
	})
	require.Equal(t, 15, score)
	require.Len(t, trace, 2)
}

func TestPhase1RejectionDominance(t *testing.T) {
	snap := &rulescache.Snapshot{
		Keywords:          []rulescache.KeywordRule{{Term: "compra", TitleWeight: 5}},
		OrganismPoints:    map[int64]int{},
		UnwantedOrganisms: map[int64]struct{}{2: {}},
		NameToID:          map[string]int64{"muni y": 2},
		SortedNames:       []string{"muni y"},
	}
	score, trace := Phase1(snap, ListingInput{
		Name:         "contains keyword compra",
		StateText:    "Publicada",
		OrganismName: "Muni Y",
	})
	require.Equal(t, -9999, score)
	require.Equal(t, []string{"Organism rejected"}, trace)
}

func TestPhase1SecondCallBonus(t *testing.T) {
	snap := snapshotWithKeyword("nomatch", 5)
	score, trace := Phase1(snap, ListingInput{
		Name:         "Sin coincidencias",
		StateText:    "Publicada - Segundo llamado",
		OrganismName: "Desconocido",
	})
	require.Equal(t, 20, score)
	require.Contains(t, trace, "2° Llamado (+20)")
}

func TestPhase1FloorsAtZeroExceptSentinel(t *testing.T) {
	snap := &rulescache.Snapshot{
		OrganismPoints:    map[int64]int{1: -100},
		UnwantedOrganisms: map[int64]struct{}{},
		NameToID:          map[string]int64{"org": 1},
		SortedNames:       []string{"org"},
	}
	score, _ := Phase1(snap, ListingInput{Name: "x", StateText: "Publicada", OrganismName: "org"})
	require.Equal(t, 0, score)
}

func TestPhase2DecodesProductsAsJSONString(t *testing.T) {
	snap := &rulescache.Snapshot{
		Keywords: []rulescache.KeywordRule{{Term: "guante", ProductsWeight: 7}},
	}
	score, trace := Phase2(snap, DetailInput{
		Description: "sin relacion",
		Products:    `[{"nombre":"Guantes de latex","descripcion":"caja x100"}]`,
	})
	require.Equal(t, 7, score)
	require.Len(t, trace, 1)
}

func TestPhase2DecodesProductsAsStructs(t *testing.T) {
	snap := &rulescache.Snapshot{
		Keywords: []rulescache.KeywordRule{{Term: "mascarilla", DescriptionWeight: 3, ProductsWeight: 4}},
	}
	score, _ := Phase2(snap, DetailInput{
		Description: "Compra de mascarillas N95",
		Products:    []Product{{Name: "Mascarilla", Description: "N95"}},
	})
	require.Equal(t, 7, score)
}

func TestPhase2NeverFloors(t *testing.T) {
	snap := &rulescache.Snapshot{
		Keywords: []rulescache.KeywordRule{{Term: "toxico", DescriptionWeight: -50}},
	}
	score, _ := Phase2(snap, DetailInput{Description: "material toxico", Products: nil})
	require.Equal(t, -50, score)
}

func TestDirtyCheckDeterminism(t *testing.T) {
	snap := snapshotWithKeyword("compra", 5)
	in := ListingInput{Name: "Compra X", StateText: "Publicada", OrganismName: "org"}
	s1, t1 := Phase1(snap, in)
	s2, t2 := Phase1(snap, in)
	require.Equal(t, s1, s2)
	require.Equal(t, t1, t2)
}
