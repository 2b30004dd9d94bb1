// Package repository is the sole owner of durable state: tenders,
// organisms, sectors, follow-state, and scoring rules.
package repository

import "time"

// activeStateTexts are the state-text values that make a tender eligible
// for the listing sweep and exempt it from the retention sweep.
var activeStateTexts = map[string]struct{}{
	"Publicada":                     {},
	"Publicada - Segundo llamado":  {},
}

func isActiveState(stateText string) bool {
	_, ok := activeStateTexts[stateText]
	return ok
}

// HarvestedTender is one item as returned by the Scraper's list fetch,
// ready for BulkUpsertTenders.
type HarvestedTender struct {
	Code            string
	Name            string
	OrganismName    string
	Amount          *float64
	StateText       string
	StateTag        *int
	BidderCount     *int
	PublicationDate time.Time
	CloseDate       *time.Time
}

// DetailRecord is the normalized shape the Scraper's detail fetch produces.
// Non-nil, non-default fields are conditionally written by UpdateDetail.
type DetailRecord struct {
	Description         *string
	DeliveryAddress      *string
	CloseDate            *time.Time
	CloseDateSecondCall  *time.Time
	Products             any
	StateText            *string
	StateTag             *int
	BidderCount          *int
	DeliveryLeadDays     *int
}

// ScoreUpdate is one row of the chunked BulkUpdateScores write.
type ScoreUpdate struct {
	ID    int64
	Score int
	Trace []string
}

// RecomputeCandidate is the lightweight projection CandidatesForScoreRecompute
// returns: only the fields the Score Engine needs.
type RecomputeCandidate struct {
	ID           int64
	Code         string
	Name         string
	StateText    string
	OrganismName string
	Description  *string
	Products     any
	CurrentScore int
}

// DetailFetchCandidate is a tender queued for enrichment.
type DetailFetchCandidate struct {
	ID           int64
	Code         string
	CurrentScore int
}

// TenderSummary is the projection used by the read-oriented listing/follow
// queries.
type TenderSummary struct {
	ID           int64
	Code         string
	Name         string
	Amount       *float64
	CloseDate    *time.Time
	StateText    string
	Score        int
	OrganismName string
	IsFavorite   bool
	IsBid        bool
	IsHidden     bool
	Note         string
}

// DateRange is min/max publication date, used to bound a listing sweep.
type DateRange struct {
	Min time.Time
	Max time.Time
}

// KeywordRule mirrors rulescache.KeywordRule for CRUD purposes.
type KeywordRule struct {
	ID                int64
	Term              string
	TitleWeight       int
	DescriptionWeight int
	ProductsWeight    int
}

// OrganismRuleKind mirrors rulescache.OrganismRuleKind for CRUD purposes.
type OrganismRuleKind string

const (
	RulePriority OrganismRuleKind = "priority"
	RuleUnwanted OrganismRuleKind = "unwanted"
)

// OrganismRule is a persisted organism rule row.
type OrganismRule struct {
	OrganismID int64
	Kind       OrganismRuleKind
	Points     *int
}

// Organism is a persisted organism row.
type Organism struct {
	ID       int64
	Name     string
	SectorID int64
	IsNew    bool
}
