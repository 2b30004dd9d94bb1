// Package engine coordinates the Scraper, Repository, Rules Cache, and
// scoring package into the coarse operations the Task Runner schedules.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ca-refa/licita-monitor/pkg/repository"
	"github.com/ca-refa/licita-monitor/pkg/rulescache"
	"github.com/ca-refa/licita-monitor/pkg/scoring"
)

// minDetailFetchScore is the floor above which a freshly-scored tender is
// queued for detail enrichment within the same FullHarvest run.
const minDetailFetchScore = 10

// recomputeSafeWindowDays bounds how far before today a candidate sweep is
// allowed to reach back, so a single ancient favorited tender never forces
// a months-long listing crawl.
const recomputeSafeWindowDays = 5

// retentionDays is how long a closed, unfollowed tender survives before the
// maintenance sweep deletes it.
const retentionDays = 30

// detailPoliteness is the pause between consecutive detail fetches in
// SelectiveUpdate's follow/bids phase.
const detailPoliteness = 100 * time.Millisecond

// progressEvery controls how often RecomputeAllScores emits a progress line.
const progressEvery = 500

// Lister fetches listing pages.
type Lister interface {
	FetchList(ctx context.Context, filters ListFilters, progress func(string)) ([]ListedItem, error)
}

// Detailer fetches a single tender's detail payload.
type Detailer interface {
	FetchDetail(ctx context.Context, code string) (map[string]any, error)
	Refresh(ctx context.Context, progress func(string)) error
}

// ListFilters mirrors scraper.ListFilters without importing the scraper
// package's chromedp dependency into the engine's test surface.
type ListFilters struct {
	DateFrom string
	DateTo   string
	MaxPages int
}

// ListedItem is one raw listing row, keyed by the upstream's own field names.
type ListedItem map[string]any

// Store is the subset of *repository.Repository the Orchestrator needs.
type Store interface {
	MarkAllOrganismsSeen(ctx context.Context) error
	BulkUpsertTenders(ctx context.Context, items []repository.HarvestedTender) error
	CandidatesForScoreRecompute(ctx context.Context) ([]repository.RecomputeCandidate, error)
	CandidatesForDetailFetch(ctx context.Context, minScore int) ([]repository.DetailFetchCandidate, error)
	BulkUpdateScores(ctx context.Context, updates []repository.ScoreUpdate) error
	UpdateDetail(ctx context.Context, code string, detail repository.DetailRecord, score int, trace []string) error
	ActiveDateRange(ctx context.Context) (repository.DateRange, error)
	CloseExpiredLocally(ctx context.Context) (int, error)
	SweepOldRecords(ctx context.Context, retentionDays int) (int, error)
	FollowedQuery(ctx context.Context) ([]repository.TenderSummary, error)
	BidQuery(ctx context.Context) ([]repository.TenderSummary, error)
}

// Progress reports textual and percentage progress from a long-running
// phase. Either field may be nil; a nil sink is a no-op.
type Progress struct {
	Text func(string)
	Pct  func(int)
}

func (p Progress) text(s string) {
	if p.Text != nil {
		p.Text(s)
	}
}

func (p Progress) pct(v int) {
	if p.Pct != nil {
		p.Pct(v)
	}
}

// Orchestrator coordinates Scraper, Repository, and Rules Cache into the
// ETL phases the Task Runner exposes as Tasks.
type Orchestrator struct {
	store    Store
	lister   Lister
	detailer Detailer
	rules    *rulescache.Cache
	logger   *slog.Logger
}

// New constructs an Orchestrator.
func New(store Store, lister Lister, detailer Detailer, rules *rulescache.Cache, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: store, lister: lister, detailer: detailer, rules: rules, logger: logger}
}

// FullHarvest runs the full harvest pipeline: mark-seen, fetch, upsert,
// recompute, then enrich the highest-scoring new tenders. Returns the
// number of listing items fetched.
func (o *Orchestrator) FullHarvest(ctx context.Context, dateFrom, dateTo string, maxPages int, progress Progress) (int, error) {
	if err := o.store.MarkAllOrganismsSeen(ctx); err != nil {
		return 0, fmt.Errorf("%w: mark organisms seen: %v", ErrRepositoryTransformFailed, err)
	}

	progress.text("Descargando listado...")
	items, err := o.lister.FetchList(ctx, ListFilters{DateFrom: dateFrom, DateTo: dateTo, MaxPages: maxPages}, progress.Text)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrScrapingListFailed, err)
	}
	if len(items) == 0 {
		progress.text("Sin novedades")
		return 0, nil
	}

	harvested := make([]repository.HarvestedTender, 0, len(items))
	for _, item := range items {
		harvested = append(harvested, toHarvestedTender(item))
	}
	if err := o.store.BulkUpsertTenders(ctx, harvested); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRepositoryTransformFailed, err)
	}

	if err := o.RecomputeAllScores(ctx, progress); err != nil {
		return 0, err
	}

	candidates, err := o.store.CandidatesForDetailFetch(ctx, minDetailFetchScore)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRepositoryLoadFailed, err)
	}
	if len(candidates) > 0 {
		o.enrichDetails(ctx, candidates, progress)
	}

	return len(items), nil
}

// RecomputeAllScores refreshes the rules cache, recomputes every tender's
// score, and writes only the tenders whose score actually changed.
func (o *Orchestrator) RecomputeAllScores(ctx context.Context, progress Progress) error {
	if err := o.rules.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: refresh rules: %v", ErrRecomputeFailed, err)
	}
	snapshot := o.rules.Current()

	candidates, err := o.store.CandidatesForScoreRecompute(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecomputeFailed, err)
	}

	var updates []repository.ScoreUpdate
	total := len(candidates)
	for i, c := range candidates {
		score, trace := recomputeOne(snapshot, c)
		if score != c.CurrentScore {
			updates = append(updates, repository.ScoreUpdate{ID: c.ID, Score: score, Trace: trace})
		}
		if (i+1)%progressEvery == 0 {
			progress.text(fmt.Sprintf("Recalculando puntajes... %d/%d", i+1, total))
		}
		if total > 0 {
			progress.pct((i + 1) * 100 / total)
		}
	}

	if err := o.store.BulkUpdateScores(ctx, updates); err != nil {
		return fmt.Errorf("%w: %v", ErrRecomputeFailed, err)
	}
	return nil
}

func recomputeOne(snapshot *rulescache.Snapshot, c repository.RecomputeCandidate) (int, []string) {
	phase1Score, phase1Trace := scoring.Phase1(snapshot, scoring.ListingInput{
		Name:         c.Name,
		StateText:    c.StateText,
		OrganismName: c.OrganismName,
	})
	if phase1Score == -9999 {
		return phase1Score, phase1Trace
	}

	hasDetail := c.Description != nil && *c.Description != ""
	if !hasDetail {
		return phase1Score, phase1Trace
	}

	phase2Score, phase2Trace := scoring.Phase2(snapshot, scoring.DetailInput{
		Description: *c.Description,
		Products:    c.Products,
	})
	return scoring.Total(phase1Score, phase2Score, phase1Trace, phase2Trace)
}

// SelectiveUpdateScope names one of the scopes a SelectiveUpdate run covers.
type SelectiveUpdateScope string

const (
	ScopeCandidates SelectiveUpdateScope = "candidates"
	ScopeFollow     SelectiveUpdateScope = "follow"
	ScopeBids       SelectiveUpdateScope = "bids"
	ScopeAll        SelectiveUpdateScope = "all"
)

func hasScope(scopes []SelectiveUpdateScope, want SelectiveUpdateScope) bool {
	for _, s := range scopes {
		if s == want || s == ScopeAll {
			return true
		}
	}
	return false
}

// SelectiveUpdate refreshes a bounded window of active listings and/or
// re-enriches followed and bidded tenders, per the requested scopes.
func (o *Orchestrator) SelectiveUpdate(ctx context.Context, scopes []SelectiveUpdateScope, progress Progress) error {
	if hasScope(scopes, ScopeCandidates) {
		if err := o.sweepCandidates(ctx, progress); err != nil {
			return fmt.Errorf("%w: %v", ErrSelectiveUpdateFailed, err)
		}
	}

	if hasScope(scopes, ScopeFollow) || hasScope(scopes, ScopeBids) {
		if err := o.refreshFollowedAndBidded(ctx, scopes, progress); err != nil {
			return fmt.Errorf("%w: %v", ErrSelectiveUpdateFailed, err)
		}
	}

	return nil
}

func (o *Orchestrator) sweepCandidates(ctx context.Context, progress Progress) error {
	dateRange, err := o.store.ActiveDateRange(ctx)
	if err != nil {
		return fmt.Errorf("active date range: %w", err)
	}

	today := time.Now()
	earliestAllowed := today.AddDate(0, 0, -recomputeSafeWindowDays)
	minDate := dateRange.Min
	if minDate.Before(earliestAllowed) {
		minDate = earliestAllowed
	}
	maxDate := dateRange.Max
	if maxDate.Before(today) {
		maxDate = today
	}

	progress.text("Actualizando listado vigente...")
	items, err := o.lister.FetchList(ctx, ListFilters{
		DateFrom: minDate.Format("2006-01-02"),
		DateTo:   maxDate.Format("2006-01-02"),
	}, progress.Text)
	if err != nil {
		return fmt.Errorf("fetch list: %w", err)
	}

	harvested := make([]repository.HarvestedTender, 0, len(items))
	for _, item := range items {
		harvested = append(harvested, toHarvestedTender(item))
	}
	if len(harvested) > 0 {
		if err := o.store.BulkUpsertTenders(ctx, harvested); err != nil {
			return fmt.Errorf("bulk upsert: %w", err)
		}
	}

	closed, err := o.store.CloseExpiredLocally(ctx)
	if err != nil {
		return fmt.Errorf("close expired locally: %w", err)
	}
	o.logger.Info("selective update: closed expired tenders", "count", closed)
	return nil
}

func (o *Orchestrator) refreshFollowedAndBidded(ctx context.Context, scopes []SelectiveUpdateScope, progress Progress) error {
	if err := o.detailer.Refresh(ctx, progress.Text); err != nil {
		o.logger.Warn("selective update: session refresh failed, continuing with existing session", "error", err)
	}

	byID := map[int64]repository.TenderSummary{}
	if hasScope(scopes, ScopeFollow) {
		followed, err := o.store.FollowedQuery(ctx)
		if err != nil {
			return fmt.Errorf("followed query: %w", err)
		}
		for _, t := range followed {
			byID[t.ID] = t
		}
	}
	if hasScope(scopes, ScopeBids) {
		bids, err := o.store.BidQuery(ctx)
		if err != nil {
			return fmt.Errorf("bid query: %w", err)
		}
		for _, t := range bids {
			byID[t.ID] = t
		}
	}

	if err := o.rules.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh rules: %w", err)
	}
	snapshot := o.rules.Current()
	i, total := 0, len(byID)
	for _, t := range byID {
		i++
		progress.text(fmt.Sprintf("Actualizando seguimiento %d/%d...", i, total))

		payload, err := o.detailer.FetchDetail(ctx, t.Code)
		if err != nil {
			o.logger.Warn("selective update: detail fetch failed, skipping", "code", t.Code, "error", err)
			time.Sleep(detailPoliteness)
			continue
		}
		if payload == nil {
			time.Sleep(detailPoliteness)
			continue
		}

		detail := toDetailRecord(payload)
		phase1Score, phase1Trace := scoring.Phase1(snapshot, scoring.ListingInput{
			Name:         t.Name,
			StateText:    t.StateText,
			OrganismName: t.OrganismName,
		})
		desc := ""
		if detail.Description != nil {
			desc = *detail.Description
		}
		phase2Score, phase2Trace := scoring.Phase2(snapshot, scoring.DetailInput{Description: desc, Products: detail.Products})
		total, trace := scoring.Total(phase1Score, phase2Score, phase1Trace, phase2Trace)

		if err := o.store.UpdateDetail(ctx, t.Code, detail, total, trace); err != nil {
			o.logger.Warn("selective update: write detail failed, skipping", "code", t.Code, "error", err)
		}

		time.Sleep(detailPoliteness)
	}

	return nil
}

// MaintenanceSweep closes locally-expired tenders then deletes old,
// unfollowed, non-active ones past the retention window.
func (o *Orchestrator) MaintenanceSweep(ctx context.Context) error {
	closed, err := o.store.CloseExpiredLocally(ctx)
	if err != nil {
		return fmt.Errorf("%w: close expired locally: %v", ErrRepositoryTransformFailed, err)
	}
	deleted, err := o.store.SweepOldRecords(ctx, retentionDays)
	if err != nil {
		return fmt.Errorf("%w: sweep old records: %v", ErrRepositoryTransformFailed, err)
	}
	o.logger.Info("maintenance sweep complete", "closed", closed, "deleted", deleted)
	return nil
}

func (o *Orchestrator) enrichDetails(ctx context.Context, candidates []repository.DetailFetchCandidate, progress Progress) {
	snapshot := o.rules.Current()
	for i, c := range candidates {
		progress.text(fmt.Sprintf("Enriqueciendo detalle %d/%d...", i+1, len(candidates)))

		payload, err := o.detailer.FetchDetail(ctx, c.Code)
		if err != nil {
			o.logger.Warn("detail fetch failed, skipping", "code", c.Code, "error", err)
			continue
		}
		if payload == nil {
			continue
		}

		detail := toDetailRecord(payload)
		desc := ""
		if detail.Description != nil {
			desc = *detail.Description
		}
		phase2Score, phase2Trace := scoring.Phase2(snapshot, scoring.DetailInput{Description: desc, Products: detail.Products})
		score, trace := scoring.Total(c.CurrentScore, phase2Score, nil, phase2Trace)

		if err := o.store.UpdateDetail(ctx, c.Code, detail, score, trace); err != nil {
			o.logger.Warn("update detail failed, skipping", "code", c.Code, "error", err)
		}
	}
}
