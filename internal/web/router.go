package web

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"smart-diet-planner/internal/auth"
	"smart-diet-planner/internal/history"
	"smart-diet-planner/internal/metrics"
	"smart-diet-planner/internal/notify"
	"smart-diet-planner/internal/planner"
	"smart-diet-planner/internal/session"
	"smart-diet-planner/internal/tracker"
)

// Deps groups what NewRouter needs.
type Deps struct {
	Users     *auth.Store
	Plans     *planner.PlanRepository
	Generator *planner.Generator
	Tracker   *tracker.Tracker
	History   *history.Service
	Sessions  *session.Manager
	Limiter   *RateLimiter

	Ledger   UsageLedger
	Recorder metrics.Recorder
	Gatherer prometheus.Gatherer
	Notifier notify.Notifier

	DataDir string
	Logger  *slog.Logger
}

// NewRouter wires every route of the planner.
//
// Middleware order:
//
//	Recovery → Session → Logging
//
// Pages below the login routes also require a signed-in user; plan
// generation is additionally rate limited per user.
func NewRouter(deps *Deps) (http.Handler, error) {
	h, err := NewHandler(deps)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(deps.Sessions.Middleware)
	r.Use(NewLoggingMiddleware(logger))

	r.Get("/health", h.Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Get("/login", h.LoginPage)
	r.Post("/login", h.Login)
	r.Post("/signup", h.Signup)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(session.RequireUser("/login"))

		r.Get("/", h.Dashboard)
		r.Post("/track", h.Track)
		r.Post("/track/save", h.SaveToday)

		r.Get("/plan/new", h.PlanForm)
		if deps.Limiter != nil {
			r.With(deps.Limiter.Middleware(h.RateLimited)).Post("/plan", h.CreatePlan)
		} else {
			r.Post("/plan", h.CreatePlan)
		}
	})

	return r, nil
}
