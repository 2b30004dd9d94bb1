// Package scraper acquires an authenticated session against the upstream
// SPA and fetches listing and detail pages as decoded JSON.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ca-refa/licita-monitor/pkg/apiparser"
	"github.com/ca-refa/licita-monitor/pkg/urlbuilder"
)

const (
	listTimeout    = 15 * time.Second
	detailTimeout  = 10 * time.Second
	politenessWait = 500 * time.Millisecond
	maxPagesHard   = 300
)

// Item is one raw tender as returned by the list endpoint, field names
// matching the upstream's own Spanish keys.
type Item map[string]any

// ListFilters bound a list fetch.
type ListFilters struct {
	DateFrom string
	DateTo   string
	MaxPages int // 0 means no cap beyond the hard 300-page limit.
}

// Scraper owns session state and exposes list/detail fetch.
type Scraper struct {
	httpClient  *http.Client
	logger      *slog.Logger
	headless    bool
	fallbackKey string
	session     sessionStore
}

// New constructs a Scraper. fallbackAPIKey is used as the x-api-key header
// for detail fetches when no session has been acquired yet.
func New(logger *slog.Logger, headless bool, fallbackAPIKey string) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		httpClient:  &http.Client{},
		logger:      logger,
		headless:    headless,
		fallbackKey: fallbackAPIKey,
	}
}

// EnsureSession acquires a session if one is not already held. It takes no
// lock: two concurrent callers that both find no session each run a browser
// handshake. In this module the Scraper is only driven from the single task
// the Task Runner allows at a time.
func (s *Scraper) EnsureSession(ctx context.Context, progress func(string)) error {
	if _, ok := s.session.get(); ok {
		return nil
	}
	return s.Refresh(ctx, progress)
}

// Refresh unconditionally re-acquires a session.
func (s *Scraper) Refresh(ctx context.Context, progress func(string)) error {
	sess, err := acquireSession(ctx, s.headless, progress)
	if err != nil {
		return err
	}
	s.session.set(sess)
	return nil
}

// FetchList crawls the paginated listing endpoint to exhaustion (or the
// caller's max-pages cap, or the hard 300-page safety limit), deduplicating
// by code (keep last). Any single page failure halts the crawl but the
// already-collected items are still returned.
func (s *Scraper) FetchList(ctx context.Context, filters ListFilters, progress func(string)) ([]Item, error) {
	if err := s.EnsureSession(ctx, progress); err != nil {
		return nil, err
	}

	var all []Item
	totalPages := 1
	page := 1

	for {
		if filters.MaxPages > 0 && page > filters.MaxPages {
			break
		}
		if totalPages > 0 && page > totalPages {
			break
		}
		if page > maxPagesHard {
			break
		}

		if progress != nil {
			progress(fmt.Sprintf("Descargando página %d...", page))
		}

		url := urlbuilder.ListURL(page, filters.DateFrom, filters.DateTo)
		body, status, err := s.getWithSessionRetry(ctx, url, listTimeout, progress)
		if err != nil {
			s.logger.Warn("list page request failed", "page", page, "error", err)
			break
		}
		if status != http.StatusOK {
			s.logger.Warn("list page returned non-200", "page", page, "status", status)
			break
		}

		meta := apiparser.PaginationMeta(body)
		items := apiparser.Results(body)

		if page == 1 {
			totalPages = meta.TotalPages
			if totalPages == 0 {
				break
			}
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			all = append(all, Item(item))
		}

		page++
		time.Sleep(politenessWait)
	}

	return dedupeByCode(all), nil
}

// FetchDetail fetches a single tender's detail record. Any non-200 response
// or request failure returns (nil, nil): "no detail" is not an error.
func (s *Scraper) FetchDetail(ctx context.Context, code string) (map[string]any, error) {
	body, status, err := s.getWithSessionRetry(ctx, urlbuilder.DetailURL(code), detailTimeout, nil)
	if err != nil || status != http.StatusOK {
		return nil, nil
	}

	payload, ok := apiparser.DetailPayload(body)
	if !ok {
		return nil, nil
	}

	if _, hasState := payload["estado"]; !hasState || payload["estado"] == "" {
		if reason, hasReason := payload["motivo_desierta"]; hasReason && reason != nil && reason != "" {
			payload["estado"] = "Desierta"
		}
	}

	return payload, nil
}

// sessionHeaders returns the current session's headers, falling back to the
// configured API key when no session has been acquired yet (detail fetch
// only — list fetch always has a session by the time it calls this, since
// FetchList calls EnsureSession first).
func (s *Scraper) sessionHeaders() map[string]string {
	if headers, ok := s.session.get(); ok {
		return headers.Headers()
	}
	return map[string]string{
		"x-api-key": s.fallbackKey,
		"accept":    "application/json",
	}
}

// getWithSessionRetry issues the request with the current session headers.
// A 401/403 status or a JSON "auth expired" signal in the body triggers a
// single re-acquire-and-retry of the failing call, per the session refresh
// policy; a second failure is returned as-is.
func (s *Scraper) getWithSessionRetry(ctx context.Context, url string, timeout time.Duration, progress func(string)) ([]byte, int, error) {
	body, status, err := s.get(ctx, url, s.sessionHeaders(), timeout)
	if err != nil {
		return body, status, err
	}
	if !authExpired(status, body) {
		return body, status, nil
	}

	s.logger.Warn("session appears expired, re-acquiring", "url", url, "status", status)
	if rerr := s.Refresh(ctx, progress); rerr != nil {
		return body, status, nil
	}
	return s.get(ctx, url, s.sessionHeaders(), timeout)
}

// authExpired reports whether a response signals an expired/invalid
// session: HTTP 401/403, or a JSON "auth expired" message in the body.
func authExpired(status int, body []byte) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	return apiparser.AuthExpired(body)
}

func (s *Scraper) get(ctx context.Context, url string, headers map[string]string, timeout time.Duration) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func dedupeByCode(items []Item) []Item {
	byCode := make(map[string]Item, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		code, _ := item["codigo"].(string)
		if code == "" {
			code, _ = item["id"].(string)
		}
		if _, seen := byCode[code]; !seen {
			order = append(order, code)
		}
		byCode[code] = item
	}
	out := make([]Item, 0, len(order))
	for _, code := range order {
		out = append(out, byCode[code])
	}
	return out
}
