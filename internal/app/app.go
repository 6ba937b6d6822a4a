package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"smart-diet-planner/internal/auth"
	"smart-diet-planner/internal/config"
	"smart-diet-planner/internal/database"
	"smart-diet-planner/internal/history"
	"smart-diet-planner/internal/llm"
	"smart-diet-planner/internal/metrics"
	"smart-diet-planner/internal/notify"
	"smart-diet-planner/internal/planner"
	"smart-diet-planner/internal/session"
	"smart-diet-planner/internal/storage"
	"smart-diet-planner/internal/tracker"
	"smart-diet-planner/internal/web"
)

// App holds the application's dependencies.
type App struct {
	cfg          *config.Config
	db           *database.DB
	textGen      llm.TextGenerator
	metricsStore *metrics.Store
	limiter      *web.RateLimiter
	handler      http.Handler
}

// New builds every component from cfg. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg}

	docs, err := storage.NewDocumentStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	a.db, err = database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.metricsStore = metrics.NewStore(a.db.SQL)

	a.textGen, err = llm.NewTextGenerator(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create text generator: %w", err)
	}

	plans := planner.NewPlanRepository(docs)
	summaries := tracker.NewSummaryRepository(docs)

	sessions, err := session.NewManager(cfg.SessionSecret, cfg.SessionTTL, cfg.CookieSecure, plans)
	if err != nil {
		a.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	a.limiter = web.NewRateLimiter(cfg.GenerateRatePerMinute)

	a.handler, err = web.NewRouter(&web.Deps{
		Users:     auth.NewStore(docs),
		Plans:     plans,
		Generator: planner.NewGenerator(a.textGen),
		Tracker:   tracker.NewTracker(summaries, cfg.Location),
		History:   history.NewService(summaries),
		Sessions:  sessions,
		Limiter:   a.limiter,
		Ledger:    a.metricsStore,
		Recorder:  metrics.NewCollector(registry, cfg.DataDir),
		Gatherer:  registry,
		Notifier:  notify.New(cfg.TelegramBotToken, cfg.TelegramAdminChatID),
		DataDir:   cfg.DataDir,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Handler returns the HTTP handler of the web interface.
func (a *App) Handler() http.Handler {
	return a.handler
}

// CleanupMetrics removes usage records older than days.
func (a *App) CleanupMetrics(ctx context.Context, days int) (int64, error) {
	affected, err := a.metricsStore.Cleanup(ctx, days)
	if err != nil {
		return 0, err
	}
	slog.Info("old usage records removed", slog.Int64("rows", affected), slog.Int("retention_days", days))
	return affected, nil
}

// PrintUsage writes the per-day token usage of the last days days to w.
func (a *App) PrintUsage(ctx context.Context, w io.Writer, days int) error {
	usage, err := a.metricsStore.GetDailyUsage(ctx, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Token usage, last %d days\n", days)
	if len(usage) == 0 {
		fmt.Fprintln(w, "No provider calls recorded.")
		return nil
	}
	fmt.Fprintf(w, "%-12s %8s %10s %12s\n", "DATE", "CALLS", "PROMPT", "COMPLETION")
	for _, u := range usage {
		fmt.Fprintf(w, "%-12s %8d %10d %12d\n", u.Date, u.TotalExecution, u.TotalPrompt, u.TotalCompletion)
	}
	return nil
}

// Close releases the provider client, the rate limiter and the database.
func (a *App) Close() error {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if c, ok := a.textGen.(llm.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close text generator", slog.String("error", err.Error()))
		}
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
