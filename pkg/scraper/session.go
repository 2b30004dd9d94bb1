package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	entryURL  = "https://buscador.mercadopublico.cl/compra-agil"
	apiMarker = "api.buscador"
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

// Session is the captured credential set a scrape call authenticates with.
type Session struct {
	Authorization string
	APIKey        string
	UserAgent     string
	Accept        string
	Referer       string
}

// Headers returns the session as an HTTP header map.
func (s Session) Headers() map[string]string {
	return map[string]string{
		"authorization": s.Authorization,
		"x-api-key":     s.APIKey,
		"user-agent":    s.UserAgent,
		"accept":        s.Accept,
		"referer":       s.Referer,
	}
}

// sessionStore holds the current Session under a mutex. A re-acquire
// replaces it; readers copy it without blocking a concurrent re-acquire
// that isn't yet holding the lock to write.
type sessionStore struct {
	mu      sync.Mutex
	current Session
	has     bool
}

func (s *sessionStore) get() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.has
}

func (s *sessionStore) set(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
	s.has = true
}

// acquireSession drives a real (optionally headless) browser to the SPA,
// intercepts the first request to the API host that carries auth headers,
// and returns the captured session. It takes no lock, and neither does
// Scraper.Refresh or Scraper.EnsureSession: concurrent callers each run
// their own browser handshake.
func acquireSession(ctx context.Context, headless bool, progress func(string)) (Session, error) {
	if progress != nil {
		progress("Obteniendo token de acceso...")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoSandbox,
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	navCtx, cancelNav := context.WithTimeout(browserCtx, 45*time.Second)
	defer cancelNav()

	var captured sessionStore
	chromedp.ListenTarget(browserCtx, func(ev any) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok || !strings.Contains(req.Request.URL, apiMarker) {
			return
		}
		auth, hasAuth := req.Request.Headers["authorization"]
		if !hasAuth {
			return
		}
		apiKey, _ := req.Request.Headers["x-api-key"].(string)
		authStr, _ := auth.(string)
		captured.set(Session{
			Authorization: authStr,
			APIKey:        apiKey,
			UserAgent:     userAgent,
			Accept:        "application/json",
			Referer:       "https://buscador.mercadopublico.cl/",
		})
	})

	if err := chromedp.Run(navCtx,
		network.Enable(),
		chromedp.Navigate(entryURL),
	); err != nil {
		return Session{}, fmt.Errorf("%w: navigate: %v", ErrSessionAcquisitionFailed, err)
	}

	for i := 0; i < 15; i++ {
		if _, ok := captured.get(); ok {
			break
		}
		time.Sleep(time.Second)
	}

	if _, ok := captured.get(); !ok {
		// Best-effort: force a search so the SPA issues its first API call.
		clickCtx, cancelClick := context.WithTimeout(browserCtx, 2*time.Second)
		_ = chromedp.Run(clickCtx, chromedp.Click(`button[aria-label="Buscar"]`, chromedp.ByQuery))
		cancelClick()
		time.Sleep(3 * time.Second)
	}

	sess, ok := captured.get()
	if !ok {
		return Session{}, fmt.Errorf("%w: token not found after wait", ErrSessionAcquisitionFailed)
	}
	return sess, nil
}
