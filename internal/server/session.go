package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/shared"
)

// stateTTL is how long a login attempt may take between the redirect to Google and the callback.
const stateTTL = 10 * time.Minute

// SessionManager issues and resolves login cookies backed by the sessions table.
type SessionManager struct {
	sessions *repositories.SessionRepository
	users    *repositories.UserRepository
	cookie   string
	ttl      time.Duration
	secure   bool
	now      func() time.Time
}

func NewSessionManager(store *repositories.Store, cfg shared.ServerConfig) *SessionManager {
	cookie := cfg.CookieName
	if cookie == "" {
		cookie = "ytlink_session"
	}
	ttl := cfg.SessionTTL.Duration
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &SessionManager{
		sessions: store.Sessions,
		users:    store.Users,
		cookie:   cookie,
		ttl:      ttl,
		secure:   cfg.SecureCookies,
		now:      time.Now,
	}
}

func (m *SessionManager) stateCookie() string { return m.cookie + "_state" }

func (m *SessionManager) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  m.now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *SessionManager) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Start logs userID in by storing a new session and setting its cookie.
// accountID records the channel the user linked to log in and may be empty.
func (m *SessionManager) Start(w http.ResponseWriter, userID, accountID string) error {
	token, err := shared.RandomToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &models.Session{Token: token, UserID: userID, AccountID: accountID, ExpiresAt: m.now().Add(m.ttl)}
	if err := m.sessions.Create(session); err != nil {
		return err
	}
	m.set(w, m.cookie, token, m.ttl)
	return nil
}

// Load returns the user of the request's session, or [shared.ErrNotAuthenticated].
func (m *SessionManager) Load(r *http.Request) (*models.User, error) {
	c, err := r.Cookie(m.cookie)
	if err != nil || c.Value == "" {
		return nil, shared.ErrNotAuthenticated
	}

	session, err := m.sessions.Get(c.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}
	user, err := m.users.Get(session.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}
	return user, nil
}

// Destroy deletes the request's session and expires its cookie.
func (m *SessionManager) Destroy(w http.ResponseWriter, r *http.Request) error {
	m.clear(w, m.cookie)
	c, err := r.Cookie(m.cookie)
	if err != nil {
		return nil
	}
	return m.sessions.Delete(c.Value)
}

// IssueState creates an OAuth state value and remembers it in a short-lived cookie.
func (m *SessionManager) IssueState(w http.ResponseWriter) (string, error) {
	state, err := shared.RandomToken(24)
	if err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	m.set(w, m.stateCookie(), state, stateTTL)
	return state, nil
}

// VerifyState checks the callback's state parameter against the cookie set by [SessionManager.IssueState].
// The cookie is single use.
func (m *SessionManager) VerifyState(w http.ResponseWriter, r *http.Request) error {
	c, err := r.Cookie(m.stateCookie())
	m.clear(w, m.stateCookie())
	if err != nil || c.Value == "" {
		return fmt.Errorf("%w: missing state cookie", shared.ErrInvalidState)
	}

	got := r.URL.Query().Get("state")
	if subtle.ConstantTimeCompare([]byte(got), []byte(c.Value)) != 1 {
		return fmt.Errorf("%w: state mismatch", shared.ErrInvalidState)
	}
	return nil
}
