package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ca-refa/licita-monitor/pkg/rulescache"
	"github.com/ca-refa/licita-monitor/pkg/scoring"
)

// scoreUpdateChunkSize bounds BulkUpdateScores commits so a transient
// connection failure halfway through a recompute does not lose the chunks
// that already landed.
const scoreUpdateChunkSize = 500

// Repository is the sole owner of durable state.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository over an already-migrated pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// BulkUpsertTenders resolves organism names to IDs (lazily creating unseen
// organisms under the default sector), then upserts the batch keyed by
// tender code. On conflict, only the dynamic fields are overwritten; static
// fields are preserved from the first-seen row.
func (r *Repository) BulkUpsertTenders(ctx context.Context, items []HarvestedTender) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: begin bulk upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	names := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.OrganismName != "" {
			names[item.OrganismName] = struct{}{}
		}
	}
	nameToID, err := r.resolveOrganismIDs(ctx, tx, names)
	if err != nil {
		return fmt.Errorf("repository: resolve organisms: %w", err)
	}

	// Keep only the first occurrence per code within this batch.
	seen := make(map[string]struct{}, len(items))
	ordered := make([]HarvestedTender, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.Code]; dup {
			continue
		}
		seen[item.Code] = struct{}{}
		ordered = append(ordered, item)
	}

	for _, item := range ordered {
		var organismID *int64
		if id, ok := nameToID[item.OrganismName]; ok {
			organismID = &id
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO tenders (code, name, amount, publication_date, close_date, state_text, state_tag, bidder_count, organism_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (code) DO UPDATE SET
				bidder_count = EXCLUDED.bidder_count,
				state_text   = EXCLUDED.state_text,
				state_tag    = EXCLUDED.state_tag,
				close_date   = EXCLUDED.close_date,
				amount       = EXCLUDED.amount
		`, item.Code, item.Name, item.Amount, item.PublicationDate, item.CloseDate, item.StateText, item.StateTag, item.BidderCount, organismID)
		if err != nil {
			return fmt.Errorf("repository: upsert tender %s: %w", item.Code, err)
		}
	}

	return tx.Commit(ctx)
}

// resolveOrganismIDs looks up existing organisms by name and inserts any
// missing ones under the default sector (created if absent), marking them
// new=true.
func (r *Repository) resolveOrganismIDs(ctx context.Context, tx pgx.Tx, names map[string]struct{}) (map[string]int64, error) {
	result := make(map[string]int64, len(names))
	if len(names) == 0 {
		return result, nil
	}

	nameList := make([]string, 0, len(names))
	for name := range names {
		nameList = append(nameList, name)
	}

	rows, err := tx.Query(ctx, `SELECT id, name FROM organisms WHERE name = ANY($1)`, nameList)
	if err != nil {
		return nil, fmt.Errorf("select existing organisms: %w", err)
	}
	func() {
		defer rows.Close()
		for rows.Next() {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err == nil {
				result[name] = id
				delete(names, name)
			}
		}
	}()

	if len(names) == 0 {
		return result, nil
	}

	var sectorID int64
	err = tx.QueryRow(ctx, `SELECT id FROM sectors WHERE name = 'General'`).Scan(&sectorID)
	if err != nil {
		if _, insErr := tx.Exec(ctx, `INSERT INTO sectors (name) VALUES ('General') ON CONFLICT (name) DO NOTHING`); insErr != nil {
			return nil, fmt.Errorf("ensure default sector: %w", insErr)
		}
		if err := tx.QueryRow(ctx, `SELECT id FROM sectors WHERE name = 'General'`).Scan(&sectorID); err != nil {
			return nil, fmt.Errorf("reload default sector: %w", err)
		}
	}

	for name := range names {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO organisms (name, sector_id, is_new) VALUES ($1, $2, TRUE)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, name, sectorID).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert organism %s: %w", name, err)
		}
		result[name] = id
	}

	return result, nil
}

// UpdateDetail writes an enrichment record plus the recomputed total score
// and trace. State text/tag are written only when the detail record
// supplied them.
func (r *Repository) UpdateDetail(ctx context.Context, code string, detail DetailRecord, score int, trace []string) error {
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("repository: marshal trace: %w", err)
	}
	productsJSON, err := json.Marshal(detail.Products)
	if err != nil {
		return fmt.Errorf("repository: marshal products: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: begin update detail: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE tenders SET
			description = $2,
			delivery_address = $3,
			delivery_lead_days = $4,
			close_date_second_call = $5,
			products = $6,
			score = $7,
			trace = $8,
			bidder_count = COALESCE($9, bidder_count),
			state_text = COALESCE($10, state_text),
			state_tag = COALESCE($11, state_tag),
			close_date = COALESCE($12, close_date)
		WHERE code = $1
	`, code, detail.Description, detail.DeliveryAddress, detail.DeliveryLeadDays,
		detail.CloseDateSecondCall, productsJSON, score, traceJSON,
		detail.BidderCount, detail.StateText, detail.StateTag, detail.CloseDate)
	if err != nil {
		return fmt.Errorf("repository: update detail for %s: %w", code, err)
	}

	return tx.Commit(ctx)
}

// BulkUpdateScores writes (id, score, trace) in chunks of 500, each chunk
// committed independently.
func (r *Repository) BulkUpdateScores(ctx context.Context, updates []ScoreUpdate) error {
	for start := 0; start < len(updates); start += scoreUpdateChunkSize {
		end := start + scoreUpdateChunkSize
		if end > len(updates) {
			end = len(updates)
		}
		if err := r.commitScoreChunk(ctx, updates[start:end]); err != nil {
			return fmt.Errorf("repository: score chunk [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (r *Repository) commitScoreChunk(ctx context.Context, chunk []ScoreUpdate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, u := range chunk {
		traceJSON, err := json.Marshal(u.Trace)
		if err != nil {
			return fmt.Errorf("marshal trace for %d: %w", u.ID, err)
		}
		batch.Queue(`UPDATE tenders SET score = $2, trace = $3 WHERE id = $1`, u.ID, u.Score, traceJSON)
	}

	br := tx.SendBatch(ctx, batch)
	for range chunk {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CandidatesForScoreRecompute returns the lightweight projection the Score
// Engine needs to recompute every tender's score.
func (r *Repository) CandidatesForScoreRecompute(ctx context.Context) ([]RecomputeCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.code, t.name, t.state_text, COALESCE(o.name, ''), t.description, t.products, t.score
		FROM tenders t
		LEFT JOIN organisms o ON o.id = t.organism_id
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: candidates for recompute: %w", err)
	}
	defer rows.Close()

	var out []RecomputeCandidate
	for rows.Next() {
		var c RecomputeCandidate
		var productsJSON []byte
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.StateText, &c.OrganismName, &c.Description, &productsJSON, &c.CurrentScore); err != nil {
			return nil, fmt.Errorf("repository: scan recompute candidate: %w", err)
		}
		if len(productsJSON) > 0 {
			c.Products = string(productsJSON)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CandidatesForDetailFetch returns tenders with score >= min and no
// description yet, ordered by ascending close date.
func (r *Repository) CandidatesForDetailFetch(ctx context.Context, minScore int) ([]DetailFetchCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, score FROM tenders
		WHERE score >= $1 AND description IS NULL
		ORDER BY close_date ASC NULLS LAST
	`, minScore)
	if err != nil {
		return nil, fmt.Errorf("repository: candidates for detail fetch: %w", err)
	}
	defer rows.Close()

	var out []DetailFetchCandidate
	for rows.Next() {
		var c DetailFetchCandidate
		if err := rows.Scan(&c.ID, &c.Code, &c.CurrentScore); err != nil {
			return nil, fmt.Errorf("repository: scan detail candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListingQuery returns tenders with score >= min, not in any follow state,
// in the active-listing state set, ordered by descending score.
func (r *Repository) ListingQuery(ctx context.Context, minScore int) ([]TenderSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.code, t.name, t.amount, t.close_date, t.state_text, t.score, COALESCE(o.name, '')
		FROM tenders t
		LEFT JOIN organisms o ON o.id = t.organism_id
		LEFT JOIN follow_states f ON f.tender_id = t.id
		WHERE t.score >= $1
		  AND t.state_text IN ('Publicada', 'Publicada - Segundo llamado')
		  AND COALESCE(f.is_favorite, FALSE) = FALSE
		  AND COALESCE(f.is_bid_submitted, FALSE) = FALSE
		  AND COALESCE(f.is_hidden, FALSE) = FALSE
		ORDER BY t.score DESC
	`, minScore)
	if err != nil {
		return nil, fmt.Errorf("repository: listing query: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// FollowedQuery returns every tender marked favorite (a superset of
// bid-submitted ones, since bid-submitted implies favorite), ordered by
// ascending close date.
func (r *Repository) FollowedQuery(ctx context.Context) ([]TenderSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.code, t.name, t.amount, t.close_date, t.state_text, t.score, COALESCE(o.name, '')
		FROM tenders t
		LEFT JOIN organisms o ON o.id = t.organism_id
		JOIN follow_states f ON f.tender_id = t.id
		WHERE f.is_favorite = TRUE
		ORDER BY t.close_date ASC NULLS LAST
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: followed query: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// BidQuery returns tenders marked bid-submitted, ordered by ascending close.
func (r *Repository) BidQuery(ctx context.Context) ([]TenderSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.code, t.name, t.amount, t.close_date, t.state_text, t.score, COALESCE(o.name, '')
		FROM tenders t
		LEFT JOIN organisms o ON o.id = t.organism_id
		JOIN follow_states f ON f.tender_id = t.id
		WHERE f.is_bid_submitted = TRUE
		ORDER BY t.close_date ASC NULLS LAST
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: bid query: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func scanSummaries(rows pgx.Rows) ([]TenderSummary, error) {
	var out []TenderSummary
	for rows.Next() {
		var s TenderSummary
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Amount, &s.CloseDate, &s.StateText, &s.Score, &s.OrganismName); err != nil {
			return nil, fmt.Errorf("repository: scan tender summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ActiveDateRange returns the min/max publication date among currently
// active, not-yet-managed tenders, used to bound a listing sweep.
func (r *Repository) ActiveDateRange(ctx context.Context) (DateRange, error) {
	var dr DateRange
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MIN(publication_date), CURRENT_DATE), COALESCE(MAX(publication_date), CURRENT_DATE)
		FROM tenders
		WHERE state_text IN ('Publicada', 'Publicada - Segundo llamado')
	`).Scan(&dr.Min, &dr.Max)
	if err != nil {
		return DateRange{}, fmt.Errorf("repository: active date range: %w", err)
	}
	return dr, nil
}

// CloseExpiredLocally forces state_text to "Cerrada" for every tender whose
// state is in the active set and whose close date has passed. Returns the
// affected row count. Tenders already in a terminal state are untouched.
func (r *Repository) CloseExpiredLocally(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenders SET state_text = 'Cerrada'
		WHERE state_text IN ('Publicada', 'Publicada - Segundo llamado')
		  AND close_date < now()
	`)
	if err != nil {
		return 0, fmt.Errorf("repository: close expired locally: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SweepOldRecords deletes tenders whose close date is older than the
// retention window, whose state is not active, and that are not favorited.
// Returns the deleted row count.
func (r *Repository) SweepOldRecords(ctx context.Context, retentionDays int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM tenders t
		WHERE t.close_date < now() - ($1 || ' days')::interval
		  AND t.state_text NOT IN ('Publicada', 'Publicada - Segundo llamado')
		  AND NOT EXISTS (
		      SELECT 1 FROM follow_states f WHERE f.tender_id = t.id AND f.is_favorite = TRUE
		  )
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("repository: sweep old records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkAllOrganismsSeen clears the new flag on every organism. Called at the
// start of every harvest so this run's newly-seen organisms form the next
// "new" cohort.
func (r *Repository) MarkAllOrganismsSeen(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `UPDATE organisms SET is_new = FALSE`)
	if err != nil {
		return fmt.Errorf("repository: mark organisms seen: %w", err)
	}
	return nil
}

// ListOrganisms returns every organism.
func (r *Repository) ListOrganisms(ctx context.Context) ([]Organism, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, sector_id, is_new FROM organisms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("repository: list organisms: %w", err)
	}
	defer rows.Close()

	var out []Organism
	for rows.Next() {
		var o Organism
		if err := rows.Scan(&o.ID, &o.Name, &o.SectorID, &o.IsNew); err != nil {
			return nil, fmt.Errorf("repository: scan organism: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- Follow mutations ---

// SetFavorite upserts the favorite flag on a tender's FollowState.
func (r *Repository) SetFavorite(ctx context.Context, tenderID int64, value bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO follow_states (tender_id, is_favorite) VALUES ($1, $2)
		ON CONFLICT (tender_id) DO UPDATE SET is_favorite = $2
	`, tenderID, value)
	if err != nil {
		return fmt.Errorf("repository: set favorite: %w", err)
	}
	return nil
}

// SetBidSubmitted upserts the bid-submitted flag, auto-enabling favorite.
func (r *Repository) SetBidSubmitted(ctx context.Context, tenderID int64, value bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO follow_states (tender_id, is_bid_submitted, is_favorite)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (tender_id) DO UPDATE SET
			is_bid_submitted = $2,
			is_favorite = CASE WHEN $2 THEN TRUE ELSE follow_states.is_favorite END
	`, tenderID, value)
	if err != nil {
		return fmt.Errorf("repository: set bid submitted: %w", err)
	}
	return nil
}

// SetHidden upserts the hidden flag, disabling favorite and bid-submitted.
func (r *Repository) SetHidden(ctx context.Context, tenderID int64, value bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO follow_states (tender_id, is_hidden, is_favorite, is_bid_submitted)
		VALUES ($1, $2, FALSE, FALSE)
		ON CONFLICT (tender_id) DO UPDATE SET
			is_hidden = $2,
			is_favorite = CASE WHEN $2 THEN FALSE ELSE follow_states.is_favorite END,
			is_bid_submitted = CASE WHEN $2 THEN FALSE ELSE follow_states.is_bid_submitted END
	`, tenderID, value)
	if err != nil {
		return fmt.Errorf("repository: set hidden: %w", err)
	}
	return nil
}

// SetNote upserts a tender's free-text note.
func (r *Repository) SetNote(ctx context.Context, tenderID int64, note string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO follow_states (tender_id, note) VALUES ($1, $2)
		ON CONFLICT (tender_id) DO UPDATE SET note = $2
	`, tenderID, note)
	if err != nil {
		return fmt.Errorf("repository: set note: %w", err)
	}
	return nil
}

// --- Rules CRUD ---

// ListKeywordRules returns every keyword rule.
func (r *Repository) ListKeywordRules(ctx context.Context) ([]KeywordRule, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, term, title_weight, description_weight, products_weight FROM keyword_rules ORDER BY term`)
	if err != nil {
		return nil, fmt.Errorf("repository: list keyword rules: %w", err)
	}
	defer rows.Close()

	var out []KeywordRule
	for rows.Next() {
		var k KeywordRule
		if err := rows.Scan(&k.ID, &k.Term, &k.TitleWeight, &k.DescriptionWeight, &k.ProductsWeight); err != nil {
			return nil, fmt.Errorf("repository: scan keyword rule: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// AddKeywordRule inserts (or updates, by unique term) a keyword rule.
func (r *Repository) AddKeywordRule(ctx context.Context, k KeywordRule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO keyword_rules (term, title_weight, description_weight, products_weight)
		VALUES (lower(trim($1)), $2, $3, $4)
		ON CONFLICT (term) DO UPDATE SET
			title_weight = $2, description_weight = $3, products_weight = $4
	`, k.Term, k.TitleWeight, k.DescriptionWeight, k.ProductsWeight)
	if err != nil {
		return fmt.Errorf("repository: add keyword rule: %w", err)
	}
	return nil
}

// DeleteKeywordRule removes a keyword rule by ID.
func (r *Repository) DeleteKeywordRule(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM keyword_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: delete keyword rule: %w", err)
	}
	return nil
}

// ListOrganismRules returns every organism rule.
func (r *Repository) ListOrganismRules(ctx context.Context) ([]OrganismRule, error) {
	rows, err := r.pool.Query(ctx, `SELECT organism_id, kind, points FROM organism_rules`)
	if err != nil {
		return nil, fmt.Errorf("repository: list organism rules: %w", err)
	}
	defer rows.Close()

	var out []OrganismRule
	for rows.Next() {
		var o OrganismRule
		if err := rows.Scan(&o.OrganismID, &o.Kind, &o.Points); err != nil {
			return nil, fmt.Errorf("repository: scan organism rule: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetOrganismRule upserts the single rule row allowed per organism.
func (r *Repository) SetOrganismRule(ctx context.Context, rule OrganismRule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO organism_rules (organism_id, kind, points) VALUES ($1, $2, $3)
		ON CONFLICT (organism_id) DO UPDATE SET kind = $2, points = $3
	`, rule.OrganismID, rule.Kind, rule.Points)
	if err != nil {
		return fmt.Errorf("repository: set organism rule: %w", err)
	}
	return nil
}

// DeleteOrganismRule removes an organism's rule, if any.
func (r *Repository) DeleteOrganismRule(ctx context.Context, organismID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM organism_rules WHERE organism_id = $1`, organismID)
	if err != nil {
		return fmt.Errorf("repository: delete organism rule: %w", err)
	}
	return nil
}

// --- rulescache.OrganismLoader ---

// LoadKeywordRules implements rulescache.OrganismLoader.
func (r *Repository) LoadKeywordRules(ctx context.Context) ([]rulescache.KeywordRule, error) {
	rows, err := r.ListKeywordRules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rulescache.KeywordRule, 0, len(rows))
	for _, k := range rows {
		out = append(out, rulescache.KeywordRule{
			Term:              k.Term,
			TitleWeight:       k.TitleWeight,
			DescriptionWeight: k.DescriptionWeight,
			ProductsWeight:    k.ProductsWeight,
		})
	}
	return out, nil
}

// LoadOrganismPriorities implements rulescache.OrganismLoader.
func (r *Repository) LoadOrganismPriorities(ctx context.Context) (map[int64]int, error) {
	rules, err := r.ListOrganismRules(ctx)
	if err != nil {
		return nil, err
	}
	out := map[int64]int{}
	for _, rule := range rules {
		if rule.Kind == RulePriority && rule.Points != nil {
			out[rule.OrganismID] = *rule.Points
		}
	}
	return out, nil
}

// LoadUnwantedOrganisms implements rulescache.OrganismLoader.
func (r *Repository) LoadUnwantedOrganisms(ctx context.Context) (map[int64]struct{}, error) {
	rules, err := r.ListOrganismRules(ctx)
	if err != nil {
		return nil, err
	}
	out := map[int64]struct{}{}
	for _, rule := range rules {
		if rule.Kind == RuleUnwanted {
			out[rule.OrganismID] = struct{}{}
		}
	}
	return out, nil
}

// LoadOrganismNames implements rulescache.OrganismLoader, keying each
// organism by its normalized name.
func (r *Repository) LoadOrganismNames(ctx context.Context) (map[string]int64, error) {
	organisms, err := r.ListOrganisms(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(organisms))
	for _, o := range organisms {
		out[scoring.Normalize(o.Name)] = o.ID
	}
	return out, nil
}
