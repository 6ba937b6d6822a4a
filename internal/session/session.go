package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"smart-diet-planner/internal/planner"
)

// CookieName is the name of the session cookie.
const CookieName = "diet_session"

const issuer = "smart-diet-planner"

// ErrInvalidToken is returned when a session token fails verification.
var ErrInvalidToken = errors.New("invalid session token")

// PlanLoader returns the stored plan for a user.
type PlanLoader interface {
	Get(ctx context.Context, userID string) (planner.WeeklyPlan, error)
}

// State is the per-request session of a signed-in user.
type State struct {
	UserID string
	Plan   planner.WeeklyPlan
}

// HasPlan reports whether the user has a stored plan.
func (s *State) HasPlan() bool {
	return s != nil && len(s.Plan) > 0
}

type contextKey struct{}

// FromContext returns the session injected by Middleware, or nil for anonymous requests.
func FromContext(ctx context.Context) *State {
	st, _ := ctx.Value(contextKey{}).(*State)
	return st
}

// WithState returns a copy of ctx carrying st.
func WithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, contextKey{}, st)
}

// Manager issues and verifies signed session cookies.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	plans  PlanLoader
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> expiry
}

// NewManager creates a new Manager. An empty secret is replaced by random
// bytes, so sessions do not survive a restart.
func NewManager(secret string, ttl time.Duration, secure bool, plans PlanLoader) (*Manager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		slog.Warn("SESSION_SECRET not set, using a random per-process secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		secret:  key,
		ttl:     ttl,
		secure:  secure,
		plans:   plans,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}, nil
}

// Token signs a session token for userID.
func (m *Manager) Token(userID string) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	})
	return token.SignedString(m.secret)
}

// Parse verifies tokenString and returns its user id.
func (m *Manager) Parse(tokenString string) (string, error) {
	claims, err := m.parseClaims(tokenString)
	if err != nil {
		return "", err
	}
	if m.isRevoked(claims.ID) {
		return "", fmt.Errorf("%w: session ended", ErrInvalidToken)
	}
	return claims.Subject, nil
}

func (m *Manager) parseClaims(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(m.now),
	)
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Revoke invalidates tokenString until it would have expired anyway.
// Tokens that fail verification are ignored.
func (m *Manager) Revoke(tokenString string) {
	claims, err := m.parseClaims(tokenString)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.revoked {
		if !exp.After(now) {
			delete(m.revoked, id)
		}
	}
	m.revoked[claims.ID] = claims.ExpiresAt.Time
}

// Revoked returns the number of tokens currently on the revocation list.
func (m *Manager) Revoked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.revoked)
}

func (m *Manager) isRevoked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[id]
	return ok
}

// Issue starts a session for userID by setting the session cookie.
func (m *Manager) Issue(w http.ResponseWriter, userID string) error {
	token, err := m.Token(userID)
	if err != nil {
		return fmt.Errorf("failed to sign session token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// End revokes the token carried by r and expires the cookie.
func (m *Manager) End(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		m.Revoke(cookie.Value)
	}
	m.Clear(w)
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware reads the session cookie and injects a *State into the request
// context. Requests without a valid cookie pass through anonymously.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := m.Parse(cookie.Value)
		if err != nil {
			slog.Debug("discarding session cookie", slog.String("error", err.Error()))
			m.Clear(w)
			next.ServeHTTP(w, r)
			return
		}

		st := &State{UserID: userID}
		if m.plans != nil {
			plan, err := m.plans.Get(r.Context(), userID)
			if err != nil {
				slog.Error("failed to load plan for session",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			st.Plan = plan
		}
		next.ServeHTTP(w, r.WithContext(WithState(r.Context(), st)))
	})
}

// RequireUser redirects anonymous requests to loginPath.
func RequireUser(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if FromContext(r.Context()) == nil {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
