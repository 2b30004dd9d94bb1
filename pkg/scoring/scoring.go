// Package scoring implements the two-phase relevance score. Pure with
// respect to a rulescache.Snapshot: same snapshot + same input always
// yields the same (score, trace).
package scoring

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ca-refa/licita-monitor/pkg/rulescache"
)

// rejectedScore is the sentinel returned when a tender's organism is
// unwanted. It is preserved end-to-end and filters the tender out of
// listings; it is the one value the floor in Phase1 never clamps.
const rejectedScore = -9999

// secondCallBonus is a hardcoded business rule: tenders in their second
// call round are worth a fixed bonus regardless of keyword matches.
const secondCallBonus = 20

// Normalize lower-cases s, strips Unicode combining diacritical marks (NFD
// decomposition followed by category-Mn filtering), and collapses
// whitespace. normalize(normalize(s)) == normalize(s) for all s.
func Normalize(s string) string {
	lower := strings.ToLower(s)
	decomposed := norm.NFD.String(lower)

	var b strings.Builder
	b.Grow(len(decomposed))
	lastWasSpace := false
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			b.WriteRune(' ')
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// ListingInput is the subset of a tender's data available from the listing
// endpoint, used for Phase 1.
type ListingInput struct {
	Name         string
	StateText    string
	OrganismName string
}

// Phase1 scores a tender using only listing-level fields.
func Phase1(snapshot *rulescache.Snapshot, in ListingInput) (int, []string) {
	normalizedName := Normalize(in.Name)
	normalizedState := Normalize(in.StateText)
	normalizedOrg := Normalize(in.OrganismName)

	if id, ok := snapshot.ResolveOrganism(normalizedOrg); ok {
		if _, unwanted := snapshot.UnwantedOrganisms[id]; unwanted {
			return rejectedScore, []string{"Organism rejected"}
		}
	}

	var trace []string
	total := 0

	if id, ok := snapshot.ResolveOrganism(normalizedOrg); ok {
		if points, isPriority := snapshot.OrganismPoints[id]; isPriority && points != 0 {
			total += points
			trace = append(trace, fmt.Sprintf("Organism priority (+%d)", points))
		}
	}

	if strings.Contains(normalizedState, "segundo llamado") {
		total += secondCallBonus
		trace = append(trace, fmt.Sprintf("2° Llamado (+%d)", secondCallBonus))
	}

	for _, kw := range snapshot.Keywords {
		if kw.TitleWeight == 0 {
			continue
		}
		term := Normalize(kw.Term)
		if term != "" && strings.Contains(normalizedName, term) {
			total += kw.TitleWeight
			trace = append(trace, fmt.Sprintf("%q in title (+%d)", kw.Term, kw.TitleWeight))
		}
	}

	if total < 0 {
		total = 0
	}
	return total, trace
}

// DetailInput is the subset of a tender's data available only after a
// detail fetch, used for Phase 2.
type DetailInput struct {
	Description string
	// Products may be a []Product or a JSON-encoded string of the same
	// shape; decodeProducts handles both defensively.
	Products any
}

// Product is one requested line item on a tender's detail payload.
type Product struct {
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
}

// Phase2 scores a tender using detail-level fields. Never floors or caps:
// negative contributions and unbounded positive contributions are both
// legal, and it never rejects (only Phase1 can reject).
func Phase2(snapshot *rulescache.Snapshot, in DetailInput) (int, []string) {
	normalizedDesc := Normalize(in.Description)
	normalizedProducts := Normalize(flattenProducts(decodeProducts(in.Products)))

	var trace []string
	total := 0

	for _, kw := range snapshot.Keywords {
		term := Normalize(kw.Term)
		if term == "" {
			continue
		}
		if kw.DescriptionWeight != 0 && strings.Contains(normalizedDesc, term) {
			total += kw.DescriptionWeight
			trace = append(trace, fmt.Sprintf("%q in description (+%d)", kw.Term, kw.DescriptionWeight))
		}
		if kw.ProductsWeight != 0 && strings.Contains(normalizedProducts, term) {
			total += kw.ProductsWeight
			trace = append(trace, fmt.Sprintf("%q in products (+%d)", kw.Term, kw.ProductsWeight))
		}
	}

	return total, trace
}

// Total combines both phases, as the Orchestrator does once a detail
// record becomes available.
func Total(phase1Score, phase2Score int, phase1Trace, phase2Trace []string) (int, []string) {
	trace := make([]string, 0, len(phase1Trace)+len(phase2Trace))
	trace = append(trace, phase1Trace...)
	trace = append(trace, phase2Trace...)
	return phase1Score + phase2Score, trace
}

// decodeProducts accepts either a []Product or a JSON-encoded string of the
// same shape, matching the upstream's inconsistent detail payload. Any
// decode failure degrades to an empty list.
func decodeProducts(v any) []Product {
	switch p := v.(type) {
	case nil:
		return nil
	case []Product:
		return p
	case string:
		var out []Product
		if err := json.Unmarshal([]byte(p), &out); err != nil {
			return nil
		}
		return out
	case []any:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil
		}
		var out []Product
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// flattenProducts joins each product's "name description" pair with " | "
// for substring search.
func flattenProducts(products []Product) string {
	parts := make([]string, 0, len(products))
	for _, p := range products {
		parts = append(parts, strings.TrimSpace(p.Name+" "+p.Description))
	}
	return strings.Join(parts, " | ")
}
