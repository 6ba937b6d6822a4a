package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus"

	"smart-diet-planner/internal/auth"
	"smart-diet-planner/internal/history"
	"smart-diet-planner/internal/llm"
	"smart-diet-planner/internal/metrics"
	"smart-diet-planner/internal/planner"
	"smart-diet-planner/internal/session"
	"smart-diet-planner/internal/shared"
	"smart-diet-planner/internal/storage"
	"smart-diet-planner/internal/tracker"
)

type MockTextGenerator struct {
	content string
	err     error
	calls   int
}

func (m *MockTextGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	m.calls++
	if m.err != nil {
		return llm.ContentResponse{}, m.err
	}
	return llm.ContentResponse{
		Content: m.content,
		Usage:   shared.TokenUsage{PromptTokens: 120, CompletionTokens: 600, Model: "mock"},
	}, nil
}

type mockLedger struct {
	metas []shared.AgentMeta
}

func (m *mockLedger) RecordMeta(ctx context.Context, meta shared.AgentMeta) error {
	m.metas = append(m.metas, meta)
	return nil
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockNotifier) Notify(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
	return nil
}

const generatedPlan = `{"plan": {"Monday": [{"dish": "Poha", "standard_quantity": "1 plate", "calories": "250 kcal"}], "Tuesday": [{"meal": "Oats", "kcal": 300}]}}`

type testEnv struct {
	handler  http.Handler
	users    *auth.Store
	plans    *planner.PlanRepository
	tracker  *tracker.Tracker
	sessions *session.Manager
	textGen  *MockTextGenerator
	ledger   *mockLedger
	notifier *mockNotifier
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T, ratePerMinute int) *testEnv {
	t.Helper()
	docs, err := storage.NewDocumentStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create document store: %v", err)
	}

	env := &testEnv{
		users:    auth.NewStore(docs),
		plans:    planner.NewPlanRepository(docs),
		textGen:  &MockTextGenerator{content: generatedPlan},
		ledger:   &mockLedger{},
		notifier: &mockNotifier{},
		registry: prometheus.NewRegistry(),
	}
	summaries := tracker.NewSummaryRepository(docs)
	env.tracker = tracker.NewTracker(summaries, time.Local)
	env.sessions, err = session.NewManager("test-secret", time.Hour, false, env.plans)
	if err != nil {
		t.Fatalf("Failed to create session manager: %v", err)
	}

	deps := &Deps{
		Users:     env.users,
		Plans:     env.plans,
		Generator: planner.NewGenerator(env.textGen),
		Tracker:   env.tracker,
		History:   history.NewService(summaries),
		Sessions:  env.sessions,
		Ledger:    env.ledger,
		Recorder:  metrics.NewCollector(env.registry, t.TempDir()),
		Gatherer:  env.registry,
		Notifier:  env.notifier,
		DataDir:   t.TempDir(),
	}
	if ratePerMinute > 0 {
		deps.Limiter = NewRateLimiter(ratePerMinute)
		t.Cleanup(deps.Limiter.Stop)
	}

	env.handler, err = NewRouter(deps)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, form url.Values, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if userID != "" {
		token, err := e.sessions.Token(userID)
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func parseDoc(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}
	return doc
}

// fullWeekPlan has today's weekday in it whatever day the test runs.
func fullWeekPlan() planner.WeeklyPlan {
	plan := planner.WeeklyPlan{}
	for _, d := range planner.Weekdays {
		plan[d] = []planner.Meal{
			{Dish: d + " breakfast", StandardQuantity: "1 bowl", Calories: 200},
			{Dish: d + " dinner", StandardQuantity: "1 plate", Calories: 300},
		}
	}
	return plan
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, 0)

	t.Run("LoginPage", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/login", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		doc := parseDoc(t, rec)
		if doc.Find(`#login form[action="/login"]`).Length() != 1 || doc.Find(`#signup form[action="/signup"]`).Length() != 1 {
			t.Error("Expected login and signup forms")
		}
	})

	t.Run("SignupTwice", func(t *testing.T) {
		form := url.Values{"email": {"a@x.com"}, "password": {"pw"}}
		rec := env.do(t, http.MethodPost, "/signup", form, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if got := parseDoc(t, rec).Find(".notice").Text(); !strings.Contains(got, "Account created") {
			t.Errorf("Expected account created notice, got %q", got)
		}

		form.Set("password", "other")
		rec = env.do(t, http.MethodPost, "/signup", form, "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("Expected 409, got %d", rec.Code)
		}
		if got := parseDoc(t, rec).Find(".error").Text(); got != "User already exists" {
			t.Errorf("Expected conflict message, got %q", got)
		}

		ok, err := env.users.Verify(context.Background(), "a@x.com", "pw")
		if err != nil || !ok {
			t.Errorf("Expected original credentials to remain, got %v %v", ok, err)
		}
	})

	t.Run("SignupEmptyEmail", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/signup", url.Values{"email": {"  "}, "password": {"pw"}}, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("LoginWrongPassword", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/login", url.Values{"email": {"a@x.com"}, "password": {"nope"}}, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("Expected 401, got %d", rec.Code)
		}
		if got := parseDoc(t, rec).Find(".error").Text(); got != "Invalid credentials" {
			t.Errorf("Expected invalid credentials, got %q", got)
		}
	})

	t.Run("LoginSuccess", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/login", url.Values{"email": {"a@x.com"}, "password": {"pw"}}, "")
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
			t.Fatalf("Expected redirect to /, got %d %q", rec.Code, rec.Header().Get("Location"))
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Name != session.CookieName {
			t.Fatalf("Expected session cookie, got %+v", cookies)
		}
		userID, err := env.sessions.Parse(cookies[0].Value)
		if err != nil || userID != "a@x.com" {
			t.Errorf("Expected session for a@x.com, got %q %v", userID, err)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/logout", nil, "a@x.com")
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
			t.Errorf("Expected redirect to /login, got %d", rec.Code)
		}
		if !strings.Contains(rec.Header().Get("Set-Cookie"), "Max-Age=0") {
			t.Errorf("Expected cleared cookie, got %q", rec.Header().Get("Set-Cookie"))
		}
	})

	t.Run("ReplayAfterLogout", func(t *testing.T) {
		token, err := env.sessions.Token("a@x.com")
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		send := func(method, target string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(method, target, nil)
			req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			return rec
		}

		send(http.MethodPost, "/logout")
		rec := send(http.MethodGet, "/plan/new")
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
			t.Errorf("Expected replayed token to be rejected, got %d %q", rec.Code, rec.Header().Get("Location"))
		}
	})
}

func TestProtectedRoutes(t *testing.T) {
	env := newTestEnv(t, 0)

	t.Run("AnonymousRedirectsToLogin", func(t *testing.T) {
		for _, target := range []string{"/", "/plan/new"} {
			rec := env.do(t, http.MethodGet, target, nil, "")
			if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
				t.Errorf("%s: expected redirect to /login, got %d %q", target, rec.Code, rec.Header().Get("Location"))
			}
		}
	})

	t.Run("NoPlanRedirectsToForm", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/", nil, "new@x.com")
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/plan/new" {
			t.Errorf("Expected redirect to /plan/new, got %d %q", rec.Code, rec.Header().Get("Location"))
		}
	})

	t.Run("LoggedInSkipsLoginPage", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/login", nil, "new@x.com")
		if rec.Code != http.StatusSeeOther {
			t.Errorf("Expected redirect, got %d", rec.Code)
		}
	})
}

func planForm() url.Values {
	return url.Values{
		"goal":     {"Lose"},
		"age":      {"21"},
		"height":   {"170"},
		"weight":   {"70"},
		"gender":   {"Male"},
		"diet":     {"Veg"},
		"activity": {"Medium"},
	}
}

func TestCreatePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		env := newTestEnv(t, 0)

		rec := env.do(t, http.MethodGet, "/plan/new", nil, "a@x.com")
		doc := parseDoc(t, rec)
		if doc.Find(`select[name="goal"] option`).Length() != 3 || doc.Find(`input[name="age"]`).AttrOr("value", "") != "21" {
			t.Error("Expected plan form with defaults")
		}

		rec = env.do(t, http.MethodPost, "/plan", planForm(), "a@x.com")
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("Expected redirect, got %d: %s", rec.Code, rec.Body.String())
		}

		plan, err := env.plans.Get(ctx, "a@x.com")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if plan["Monday"][0].Calories != 250 || plan["Tuesday"][0].Dish != "Oats" {
			t.Errorf("Unexpected stored plan %+v", plan)
		}
		if len(env.ledger.metas) != 1 {
			t.Errorf("Expected 1 usage record, got %d", len(env.ledger.metas))
		}
	})

	t.Run("InvalidProfile", func(t *testing.T) {
		env := newTestEnv(t, 0)
		form := planForm()
		form.Set("age", "200")

		rec := env.do(t, http.MethodPost, "/plan", form, "a@x.com")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
		if env.textGen.calls != 0 {
			t.Errorf("Expected no provider call, got %d", env.textGen.calls)
		}
		if got := parseDoc(t, rec).Find(".error").Text(); !strings.Contains(got, "age") {
			t.Errorf("Expected age error, got %q", got)
		}
	})

	t.Run("GenerationFailureAlertsAdmin", func(t *testing.T) {
		env := newTestEnv(t, 0)
		env.textGen.err = errors.New("provider down")

		rec := env.do(t, http.MethodPost, "/plan", planForm(), "a@x.com")
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("Expected 502, got %d", rec.Code)
		}
		if env.textGen.calls != planner.DefaultMaxAttempts {
			t.Errorf("Expected %d provider calls, got %d", planner.DefaultMaxAttempts, env.textGen.calls)
		}
		if len(env.notifier.messages) != 1 || !strings.Contains(env.notifier.messages[0], "provider down") {
			t.Errorf("Expected one admin alert, got %v", env.notifier.messages)
		}
		plan, _ := env.plans.Get(ctx, "a@x.com")
		if plan != nil {
			t.Errorf("Expected no plan stored, got %+v", plan)
		}
		if got := parseDoc(t, rec).Find(`input[name="height"]`).AttrOr("value", ""); got != "170" {
			t.Errorf("Expected form to keep submitted values, got height %q", got)
		}
	})

	t.Run("RateLimited", func(t *testing.T) {
		env := newTestEnv(t, 1)

		if rec := env.do(t, http.MethodPost, "/plan", planForm(), "a@x.com"); rec.Code != http.StatusSeeOther {
			t.Fatalf("Expected first request through, got %d", rec.Code)
		}
		rec := env.do(t, http.MethodPost, "/plan", planForm(), "a@x.com")
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("Expected 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Error("Expected Retry-After header")
		}
		if env.textGen.calls != 1 {
			t.Errorf("Expected 1 provider call, got %d", env.textGen.calls)
		}
		if rec := env.do(t, http.MethodPost, "/plan", planForm(), "b@x.com"); rec.Code != http.StatusSeeOther {
			t.Errorf("Expected another user to be unaffected, got %d", rec.Code)
		}
	})
}

func TestDashboardAndTracking(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	if err := env.plans.Save(ctx, "a@x.com", fullWeekPlan()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	date, today := env.tracker.Today()
	other := "Monday"
	if today == other {
		other = "Tuesday"
	}

	t.Run("DefaultsToToday", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/", nil, "a@x.com")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		doc := parseDoc(t, rec)
		if got := doc.Find(`select[name="day"] option[selected]`).Text(); got != today {
			t.Errorf("Expected %s selected, got %q", today, got)
		}
		if doc.Find("tr.meal").Length() != 2 {
			t.Errorf("Expected 2 meal rows, got %d", doc.Find("tr.meal").Length())
		}
		if got := doc.Find("#planned strong").Text(); got != "500" {
			t.Errorf("Expected planned 500, got %q", got)
		}
		if !strings.Contains(doc.Find("#history").Text(), "No history yet") {
			t.Error("Expected empty history message")
		}
	})

	t.Run("OtherDayIsReadOnly", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/?day="+other, nil, "a@x.com")
		doc := parseDoc(t, rec)
		if doc.Find(`input[name="eaten_0"]`).Length() != 0 {
			t.Error("Expected no intake inputs on another day")
		}
		if doc.Find(`button[formaction="/track/save"]`).Length() != 0 {
			t.Error("Expected no save button on another day")
		}
	})

	t.Run("Track", func(t *testing.T) {
		form := url.Values{"day": {today}, "eaten_0": {"on"}, "qty_0": {"1.5"}, "qty_1": {"1"}}
		rec := env.do(t, http.MethodPost, "/track", form, "a@x.com")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		doc := parseDoc(t, rec)
		if got := doc.Find("#consumed strong").Text(); got != "300" {
			t.Errorf("Expected consumed 300, got %q", got)
		}
		if got := doc.Find("#remaining strong").Text(); got != "200" {
			t.Errorf("Expected remaining 200, got %q", got)
		}
		if _, ok := doc.Find(`input[name="eaten_0"]`).Attr("checked"); !ok {
			t.Error("Expected eaten checkbox to stay checked")
		}
		if doc.Find("#complete").Length() != 0 {
			t.Error("Expected day not complete")
		}
	})

	t.Run("SaveTodayOverwrites", func(t *testing.T) {
		first := url.Values{"day": {today}, "eaten_0": {"on"}, "qty_0": {"1"}}
		if rec := env.do(t, http.MethodPost, "/track/save", first, "a@x.com"); rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		second := url.Values{"day": {today}, "eaten_0": {"on"}, "qty_0": {"1"}, "eaten_1": {"on"}, "qty_1": {"1"}}
		rec := env.do(t, http.MethodPost, "/track/save", second, "a@x.com")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		doc := parseDoc(t, rec)
		if got := doc.Find(".notice").First().Text(); got != "Saved" {
			t.Errorf("Expected saved notice, got %q", got)
		}
		if doc.Find("#complete").Length() != 1 {
			t.Error("Expected perfect day notice")
		}
		rows := doc.Find("tr.record")
		if rows.Length() != 1 {
			t.Fatalf("Expected 1 history row, got %d", rows.Length())
		}
		if got := rows.Find("td").First().Text(); got != date {
			t.Errorf("Expected record dated %s, got %q", date, got)
		}
		if doc.Find("#chart text.label").Length() != 1 {
			t.Errorf("Expected 1 chart point, got %d", doc.Find("#chart text.label").Length())
		}
	})

	t.Run("SaveOtherDayRejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/track/save", url.Values{"day": {other}}, "a@x.com")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		System metrics.SysHealth `json:"system"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body.Status != "ok" || body.System.Goroutines == 0 {
		t.Errorf("Unexpected health %+v", body)
	}

	env.do(t, http.MethodPost, "/login", url.Values{"email": {"ghost@x.com"}, "password": {"pw"}}, "")
	rec = env.do(t, http.MethodGet, "/metrics", nil, "")
	if !strings.Contains(rec.Body.String(), `diet_planner_auth_total{outcome="login_failed"} 1`) {
		t.Errorf("Expected login failure counter in metrics output")
	}
}
