package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"smart-diet-planner/internal/auth"
	"smart-diet-planner/internal/history"
	"smart-diet-planner/internal/metrics"
	"smart-diet-planner/internal/notify"
	"smart-diet-planner/internal/planner"
	"smart-diet-planner/internal/session"
	"smart-diet-planner/internal/shared"
	"smart-diet-planner/internal/tracker"
)

// UsageLedger stores per-call token usage.
type UsageLedger interface {
	RecordMeta(ctx context.Context, meta shared.AgentMeta) error
}

// Handler serves the HTML pages of the planner.
type Handler struct {
	users     *auth.Store
	plans     *planner.PlanRepository
	generator *planner.Generator
	tracker   *tracker.Tracker
	history   *history.Service
	sessions  *session.Manager
	ledger    UsageLedger
	recorder  metrics.Recorder
	notifier  notify.Notifier
	dataDir   string
	pages     pages
}

type pageView struct {
	User   string
	Error  string
	Notice string
}

type loginView struct {
	pageView
	Email string
}

type planFormView struct {
	pageView
	Profile    planner.Profile
	Goals      []string
	Genders    []string
	Diets      []string
	Activities []string
	HasPlan    bool
}

type mealRow struct {
	Index    int
	Meal     planner.Meal
	Eaten    bool
	Quantity float64
}

type dashboardView struct {
	pageView
	Days    []string
	Summary tracker.Summary
	Rows    []mealRow
	History []tracker.Record
	Chart   chartView
}

// NewHandler creates a new Handler from deps.
func NewHandler(deps *Deps) (*Handler, error) {
	p, err := parsePages("login", "plan_form", "dashboard")
	if err != nil {
		return nil, err
	}
	h := &Handler{
		users:     deps.Users,
		plans:     deps.Plans,
		generator: deps.Generator,
		tracker:   deps.Tracker,
		history:   deps.History,
		sessions:  deps.Sessions,
		ledger:    deps.Ledger,
		recorder:  deps.Recorder,
		notifier:  deps.Notifier,
		dataDir:   deps.DataDir,
		pages:     p,
	}
	if h.recorder == nil {
		h.recorder = metrics.Noop{}
	}
	if h.notifier == nil {
		h.notifier = notify.Noop{}
	}
	return h, nil
}

// LoginPage renders the login and signup forms.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if session.FromContext(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.pages.render(w, http.StatusOK, "login", loginView{})
}

// Login verifies the submitted credentials and starts a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	ok, err := h.users.Verify(r.Context(), email, r.FormValue("password"))
	if err != nil {
		slog.Error("failed to verify credentials", slog.String("error", err.Error()))
		h.pages.render(w, http.StatusInternalServerError, "login", loginView{pageView: pageView{Error: "Login is unavailable, please try again."}, Email: email})
		return
	}
	if !ok {
		h.recorder.RecordAuth(metrics.AuthLoginFailed)
		h.pages.render(w, http.StatusUnauthorized, "login", loginView{pageView: pageView{Error: "Invalid credentials"}, Email: email})
		return
	}

	if err := h.sessions.Issue(w, email); err != nil {
		slog.Error("failed to issue session", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.recorder.RecordAuth(metrics.AuthLoginOK)
	slog.Info("user logged in", slog.String("user_id", email))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Signup creates an account. The user still has to log in afterwards.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	created, err := h.users.Register(r.Context(), email, r.FormValue("password"))
	switch {
	case errors.Is(err, auth.ErrEmptyUserID):
		h.pages.render(w, http.StatusBadRequest, "login", loginView{pageView: pageView{Error: "Email is required"}})
	case err != nil:
		slog.Error("failed to register user", slog.String("error", err.Error()))
		h.pages.render(w, http.StatusInternalServerError, "login", loginView{pageView: pageView{Error: "Sign up is unavailable, please try again."}})
	case !created:
		h.recorder.RecordAuth(metrics.AuthSignupConflict)
		h.pages.render(w, http.StatusConflict, "login", loginView{pageView: pageView{Error: "User already exists"}})
	default:
		h.recorder.RecordAuth(metrics.AuthSignupOK)
		slog.Info("user registered", slog.String("user_id", email))
		h.pages.render(w, http.StatusOK, "login", loginView{pageView: pageView{Notice: "Account created. Login now."}, Email: email})
	}
}

// Logout ends the session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.End(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// PlanForm renders the profile form.
func (h *Handler) PlanForm(w http.ResponseWriter, r *http.Request) {
	st := session.FromContext(r.Context())
	h.renderPlanForm(w, http.StatusOK, st, defaultProfile(), "")
}

// CreatePlan generates a plan from the submitted profile and stores it.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	st := session.FromContext(r.Context())
	profile, err := profileFromForm(r)
	if err != nil {
		h.renderPlanForm(w, http.StatusBadRequest, st, profile, err.Error())
		return
	}

	res, err := h.generator.Generate(r.Context(), profile)
	h.recordUsage(r.Context(), res.Metas)
	if err != nil {
		h.planFailed(w, r, st, profile, err)
		return
	}

	if err := h.plans.Save(r.Context(), st.UserID, res.Plan); err != nil {
		slog.Error("failed to save plan", slog.String("user_id", st.UserID), slog.String("error", err.Error()))
		h.renderPlanForm(w, http.StatusInternalServerError, st, profile, "The plan could not be saved, please try again.")
		return
	}
	h.recorder.RecordGeneration(metrics.OutcomeSuccess)
	http.Redirect(w, r, "/?generated=1", http.StatusSeeOther)
}

func (h *Handler) planFailed(w http.ResponseWriter, r *http.Request, st *session.State, profile planner.Profile, err error) {
	switch {
	case errors.Is(err, planner.ErrInvalidProfile):
		h.renderPlanForm(w, http.StatusBadRequest, st, profile, err.Error())
		return
	case errors.Is(err, planner.ErrInvalidPlan):
		h.recorder.RecordGeneration(metrics.OutcomeInvalidPlan)
	default:
		h.recorder.RecordGeneration(metrics.OutcomeFailed)
	}

	slog.Error("diet generation failed",
		slog.String("user_id", st.UserID),
		slog.String("error", err.Error()),
	)
	if nerr := h.notifier.Notify(r.Context(), notify.GenerationFailedAlert(st.UserID, err)); nerr != nil {
		slog.Warn("failed to send admin alert", slog.String("error", nerr.Error()))
	}
	h.renderPlanForm(w, http.StatusBadGateway, st, profile, "Diet generation failed, please try again.")
}

// RateLimited renders the plan form with a retry message.
func (h *Handler) RateLimited(w http.ResponseWriter, r *http.Request) {
	h.recorder.RecordGeneration(metrics.OutcomeRateLimited)
	st := session.FromContext(r.Context())
	profile, _ := profileFromForm(r)
	h.renderPlanForm(w, http.StatusTooManyRequests, st, profile, "Too many plan requests, please wait a minute and try again.")
}

func (h *Handler) recordUsage(ctx context.Context, metas []shared.AgentMeta) {
	for _, m := range metas {
		h.recorder.RecordGenerationAttempt(m.Failed, m.Latency)
		if h.ledger != nil {
			if err := h.ledger.RecordMeta(ctx, m); err != nil {
				slog.Warn("failed to record usage", slog.String("error", err.Error()))
			}
		}
		if alert := notify.ContextBloatAlert(m); alert != "" {
			if err := h.notifier.Notify(ctx, alert); err != nil {
				slog.Warn("failed to send admin alert", slog.String("error", err.Error()))
			}
		}
	}
}

func (h *Handler) renderPlanForm(w http.ResponseWriter, status int, st *session.State, profile planner.Profile, errMsg string) {
	h.pages.render(w, status, "plan_form", planFormView{
		pageView:   pageView{User: st.UserID, Error: errMsg},
		Profile:    profile,
		Goals:      planner.Goals,
		Genders:    planner.Genders,
		Diets:      planner.Diets,
		Activities: planner.Activities,
		HasPlan:    st.HasPlan(),
	})
}

// Dashboard shows the selected day, the history table and the chart.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	st := session.FromContext(r.Context())
	if !st.HasPlan() {
		http.Redirect(w, r, "/plan/new", http.StatusSeeOther)
		return
	}
	notice := ""
	if r.URL.Query().Get("generated") != "" {
		notice = "Diet generated successfully"
	}
	h.renderDashboard(w, r, http.StatusOK, h.selectDay(st.Plan, r.URL.Query().Get("day")), nil, pageView{Notice: notice})
}

// Track recomputes the summary from the submitted intakes.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	st := session.FromContext(r.Context())
	if !st.HasPlan() {
		http.Redirect(w, r, "/plan/new", http.StatusSeeOther)
		return
	}
	day := h.selectDay(st.Plan, r.FormValue("day"))
	h.renderDashboard(w, r, http.StatusOK, day, intakesFromForm(r, len(st.Plan[day])), pageView{})
}

// SaveToday stores today's summary computed from the submitted intakes.
func (h *Handler) SaveToday(w http.ResponseWriter, r *http.Request) {
	st := session.FromContext(r.Context())
	if !st.HasPlan() {
		http.Redirect(w, r, "/plan/new", http.StatusSeeOther)
		return
	}
	day := h.selectDay(st.Plan, r.FormValue("day"))
	intakes := intakesFromForm(r, len(st.Plan[day]))

	s, err := h.tracker.Summarize(st.Plan, day, intakes)
	if err != nil {
		h.renderDashboard(w, r, http.StatusBadRequest, day, intakes, pageView{Error: err.Error()})
		return
	}
	if _, err := h.tracker.SaveToday(r.Context(), st.UserID, day, s.Planned, s.Consumed); err != nil {
		status := http.StatusInternalServerError
		msg := "The summary could not be saved, please try again."
		if errors.Is(err, tracker.ErrNotToday) {
			status = http.StatusBadRequest
			msg = "Only today's summary can be saved."
		} else {
			slog.Error("failed to save summary", slog.String("user_id", st.UserID), slog.String("error", err.Error()))
		}
		h.renderDashboard(w, r, status, day, intakes, pageView{Error: msg})
		return
	}
	h.recorder.RecordSummarySaved()
	h.renderDashboard(w, r, http.StatusOK, day, intakes, pageView{Notice: "Saved"})
}

func (h *Handler) renderDashboard(w http.ResponseWriter, r *http.Request, status int, day string, intakes []tracker.Intake, pv pageView) {
	st := session.FromContext(r.Context())
	pv.User = st.UserID

	s, err := h.tracker.Summarize(st.Plan, day, intakes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.history.Records(r.Context(), st.UserID)
	if err != nil {
		slog.Error("failed to load history", slog.String("user_id", st.UserID), slog.String("error", err.Error()))
	}

	rows := make([]mealRow, len(s.Meals))
	for i, m := range s.Meals {
		rows[i] = mealRow{Index: i, Meal: m, Quantity: tracker.DefaultQuantity}
		if i < len(intakes) {
			rows[i].Eaten = intakes[i].Eaten
			rows[i].Quantity = intakes[i].Quantity
		}
	}

	h.pages.render(w, status, "dashboard", dashboardView{
		pageView: pv,
		Days:     st.Plan.Days(),
		Summary:  s,
		Rows:     rows,
		History:  records,
		Chart:    newChartView(history.BuildChart(records)),
	})
}

// selectDay returns requested when it is in plan, else today when planned,
// else the first planned day.
func (h *Handler) selectDay(plan planner.WeeklyPlan, requested string) string {
	if _, ok := plan[requested]; ok {
		return requested
	}
	if _, today := h.tracker.Today(); plan[today] != nil {
		return today
	}
	if days := plan.Days(); len(days) > 0 {
		return days[0]
	}
	return requested
}

// Health reports liveness and a runtime snapshot.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"system": metrics.GetSysHealth(h.dataDir),
	})
}

func defaultProfile() planner.Profile {
	return planner.Profile{
		Goal:     planner.Goals[0],
		Age:      21,
		Height:   "170",
		Weight:   70,
		Gender:   planner.Genders[0],
		Diet:     planner.Diets[0],
		Activity: planner.Activities[0],
	}
}

func profileFromForm(r *http.Request) (planner.Profile, error) {
	p := planner.Profile{
		Goal:     r.FormValue("goal"),
		Height:   strings.TrimSpace(r.FormValue("height")),
		Gender:   r.FormValue("gender"),
		Diet:     r.FormValue("diet"),
		Activity: r.FormValue("activity"),
	}

	age, err := strconv.Atoi(strings.TrimSpace(r.FormValue("age")))
	if err != nil {
		return p, fmt.Errorf("%w: age must be a whole number", planner.ErrInvalidProfile)
	}
	p.Age = age

	weight, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("weight")), 64)
	if err != nil {
		return p, fmt.Errorf("%w: weight must be a number", planner.ErrInvalidProfile)
	}
	p.Weight = weight

	return p, p.Validate()
}

// intakesFromForm reads eaten_<i> and qty_<i> for n meals. A missing or
// unparsable quantity falls back to the default.
func intakesFromForm(r *http.Request, n int) []tracker.Intake {
	intakes := make([]tracker.Intake, n)
	for i := range intakes {
		q := tracker.DefaultQuantity
		if raw := strings.TrimSpace(r.FormValue(fmt.Sprintf("qty_%d", i))); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				q = v
			}
		}
		intakes[i] = tracker.Intake{
			Eaten:    r.FormValue(fmt.Sprintf("eaten_%d", i)) != "",
			Quantity: tracker.ClampQuantity(q),
		}
	}
	return intakes
}
