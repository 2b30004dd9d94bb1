// licita-monitor harvests "compra ágil" tender listings, scores them
// against operator-defined rules, and exposes the results through a local
// HTTP API plus a wall-clock scheduler.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/ca-refa/licita-monitor/pkg/api"
	"github.com/ca-refa/licita-monitor/pkg/config"
	"github.com/ca-refa/licita-monitor/pkg/database"
	"github.com/ca-refa/licita-monitor/pkg/engine"
	"github.com/ca-refa/licita-monitor/pkg/repository"
	"github.com/ca-refa/licita-monitor/pkg/rulescache"
	"github.com/ca-refa/licita-monitor/pkg/scheduler"
	"github.com/ca-refa/licita-monitor/pkg/scraper"
	"github.com/ca-refa/licita-monitor/pkg/taskrunner"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: could not load .env file: %v", err)
		log.Printf("Continuing with existing environment variables...")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbClient.Close()
	log.Println("Connected to PostgreSQL database; migrations applied")

	repo := repository.New(dbClient.Pool)
	rules := rulescache.New(repo)
	if err := rules.Refresh(ctx); err != nil {
		log.Fatalf("Failed to load initial rules snapshot: %v", err)
	}

	rawScraper := scraper.New(slog.Default(), cfg.Headless, cfg.APIKeyFallback)
	lister := &listerAdapter{scraper: rawScraper}
	detailer := &detailerAdapter{scraper: rawScraper}

	orchestrator := engine.New(repo, lister, detailer, rules, slog.Default())
	runner := taskrunner.New(slog.Default())

	dispatcher := &taskDispatcher{runner: runner, orchestrator: orchestrator}

	sched := scheduler.New(cfg.SettingsPath, dispatcher, slog.Default())
	sched.Start(ctx)
	defer sched.Stop()

	server := api.NewServer(dbClient, dispatcher, repo, rules)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	runner.Wait()
	log.Println("Shutdown complete")
}

// listerAdapter bridges *scraper.Scraper to engine.Lister, converting
// between the package-local Item/ListedItem types (identical underlying
// shape, kept distinct so engine's tests never need chromedp).
type listerAdapter struct {
	scraper *scraper.Scraper
}

func (a *listerAdapter) FetchList(ctx context.Context, filters engine.ListFilters, progress func(string)) ([]engine.ListedItem, error) {
	items, err := a.scraper.FetchList(ctx, scraper.ListFilters{
		DateFrom: filters.DateFrom,
		DateTo:   filters.DateTo,
		MaxPages: filters.MaxPages,
	}, progress)
	if err != nil {
		return nil, err
	}
	out := make([]engine.ListedItem, len(items))
	for i, item := range items {
		out[i] = engine.ListedItem(item)
	}
	return out, nil
}

// detailerAdapter bridges *scraper.Scraper to engine.Detailer.
type detailerAdapter struct {
	scraper *scraper.Scraper
}

func (a *detailerAdapter) FetchDetail(ctx context.Context, code string) (map[string]any, error) {
	return a.scraper.FetchDetail(ctx, code)
}

func (a *detailerAdapter) Refresh(ctx context.Context, progress func(string)) error {
	return a.scraper.Refresh(ctx, progress)
}

// taskDispatcher adapts the Task Runner + ETL Orchestrator to the
// scheduler.Dispatcher and api.Dispatcher interfaces, naming the four
// coarse operations the Task Runner schedules one at a time.
type taskDispatcher struct {
	runner       *taskrunner.Runner
	orchestrator *engine.Orchestrator
}

const (
	taskFullHarvest     = "full-harvest"
	taskRecomputeScores = "recompute-scores"
	taskSelectiveUpdate = "selective-update"
	taskMaintenance     = "maintenance-sweep"
)

func (d *taskDispatcher) Busy() bool { return d.runner.Busy() }

func (d *taskDispatcher) CurrentTask() (string, bool) { return d.runner.Name() }

func (d *taskDispatcher) DispatchTask(ctx context.Context, name string) error {
	switch name {
	case taskFullHarvest:
		return d.submit(ctx, name, func(ctx context.Context, text taskrunner.ProgressText, pct taskrunner.ProgressPct) error {
			yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
			_, err := d.orchestrator.FullHarvest(ctx, yesterday, yesterday, 0, engine.Progress{Text: text, Pct: pct})
			return err
		})
	case taskRecomputeScores:
		return d.submit(ctx, name, func(ctx context.Context, text taskrunner.ProgressText, pct taskrunner.ProgressPct) error {
			return d.orchestrator.RecomputeAllScores(ctx, engine.Progress{Text: text, Pct: pct})
		})
	case taskSelectiveUpdate:
		return d.submit(ctx, name, func(ctx context.Context, text taskrunner.ProgressText, pct taskrunner.ProgressPct) error {
			return d.orchestrator.SelectiveUpdate(ctx, []engine.SelectiveUpdateScope{engine.ScopeAll}, engine.Progress{Text: text, Pct: pct})
		})
	case taskMaintenance:
		return d.submit(ctx, name, func(ctx context.Context, text taskrunner.ProgressText, pct taskrunner.ProgressPct) error {
			return d.orchestrator.MaintenanceSweep(ctx)
		})
	default:
		return errors.New("taskdispatcher: unknown task " + name)
	}
}

func (d *taskDispatcher) submit(ctx context.Context, name string, task taskrunner.Task) error {
	return d.runner.Submit(ctx, name, task, taskrunner.Hooks{
		OnError: func(err error) { slog.Error("task failed", "name", name, "error", err) },
	})
}

// DispatchAutoExtract implements scheduler.Dispatcher.
func (d *taskDispatcher) DispatchAutoExtract(ctx context.Context) error {
	return d.DispatchTask(ctx, taskFullHarvest)
}

// DispatchAutoUpdate implements scheduler.Dispatcher.
func (d *taskDispatcher) DispatchAutoUpdate(ctx context.Context) error {
	return d.DispatchTask(ctx, taskSelectiveUpdate)
}

func init() {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
