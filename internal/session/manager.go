package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"securesign/pkg/domain"
)

// State describes the session lifecycle. A manager starts in
// StateLoading until Restore has run; every operation then leaves it
// either authenticated or unauthenticated, never in between.
type State string

const (
	StateLoading         State = "LOADING"
	StateAuthenticated   State = "AUTHENTICATED"
	StateUnauthenticated State = "UNAUTHENTICATED"
)

var (
	// ErrNotAuthenticated is returned by operations requiring a live session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidToken is returned when a bearer token fails validation.
	ErrInvalidToken = errors.New("invalid token")
)

// Manager owns the current session: token, profile and state. Restores
// a persisted token at startup and clears it the moment any validation
// step fails, so a stale token is never retried.
type Manager struct {
	mu     sync.RWMutex
	auth   Authenticator
	tokens *TokenStore
	secret []byte
	leeway time.Duration

	state State
	token string
	user  domain.User
}

// NewManager builds a manager in the LOADING state. secret may be nil,
// in which case token validation always goes through the auth service.
func NewManager(auth Authenticator, tokens *TokenStore, secret []byte, leeway time.Duration) *Manager {
	return &Manager{
		auth:   auth,
		tokens: tokens,
		secret: secret,
		leeway: leeway,
		state:  StateLoading,
	}
}

// Restore attempts to resume the session from a persisted token. Any
// failure along the way, including a network error, discards the token
// and lands in UNAUTHENTICATED; restore never errors out the startup.
func (m *Manager) Restore() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.tokens.Load()
	if err != nil || token == "" {
		m.becomeUnauthenticatedLocked()
		return m.state
	}
	if len(m.secret) > 0 {
		if _, err := m.verifyLocal(token); err != nil {
			m.becomeUnauthenticatedLocked()
			return m.state
		}
	}
	ok, err := m.auth.CheckToken(token)
	if err != nil || !ok {
		m.becomeUnauthenticatedLocked()
		return m.state
	}
	user, err := m.auth.Me(token)
	if err != nil {
		m.becomeUnauthenticatedLocked()
		return m.state
	}
	m.token = token
	m.user = user
	m.state = StateAuthenticated
	return m.state
}

// Login exchanges credentials for a session and returns the issued
// token with the profile. On success the token is persisted for later
// restore. Callers that need the token must use the returned value, not
// Token(): another login may have replaced the manager's session by the
// time they read it.
func (m *Manager) Login(email, password string) (string, domain.User, error) {
	token, user, err := m.auth.Login(email, password)
	if err != nil {
		return "", domain.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.user = user
	m.state = StateAuthenticated
	if err := m.tokens.Save(token); err != nil {
		return token, user, fmt.Errorf("persist token: %w", err)
	}
	return token, user, nil
}

// Register creates an account and immediately logs in with the same
// credentials.
func (m *Manager) Register(name, email, password string) (string, domain.User, error) {
	if err := m.auth.Register(name, email, password); err != nil {
		return "", domain.User{}, err
	}
	return m.Login(email, password)
}

// Logout discards the session locally. No remote call is made.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.becomeUnauthenticatedLocked()
	return nil
}

// Current returns the session state and, when authenticated, the profile.
func (m *Manager) Current() (State, domain.User) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.user
}

// Token returns the active bearer token, or ErrNotAuthenticated.
func (m *Manager) Token() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateAuthenticated {
		return "", ErrNotAuthenticated
	}
	return m.token, nil
}

// Authenticate validates an incoming bearer token and resolves it to a
// user. With a shared secret configured the claims are checked locally;
// otherwise the auth service is asked.
func (m *Manager) Authenticate(token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrInvalidToken
	}
	if len(m.secret) > 0 {
		return m.verifyLocal(token)
	}
	ok, err := m.auth.CheckToken(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("check token: %w", err)
	}
	if !ok {
		return domain.User{}, ErrInvalidToken
	}
	user, err := m.auth.Me(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve token: %w", err)
	}
	return user, nil
}

// LoginHistory lists the session user's recent login attempts.
func (m *Manager) LoginHistory() ([]domain.LoginHistoryEntry, error) {
	token, err := m.Token()
	if err != nil {
		return nil, err
	}
	return m.auth.LoginHistory(token)
}

// UpdateProfile changes name and organization on the session profile.
func (m *Manager) UpdateProfile(name, organization string) (domain.User, error) {
	token, err := m.Token()
	if err != nil {
		return domain.User{}, err
	}
	if err := m.auth.UpdateProfile(token, name, organization); err != nil {
		return domain.User{}, err
	}
	user, err := m.auth.Me(token)
	if err != nil {
		return domain.User{}, err
	}
	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
	return user, nil
}

// UpdatePassword rotates the session user's password.
func (m *Manager) UpdatePassword(current, next string) error {
	token, err := m.Token()
	if err != nil {
		return err
	}
	return m.auth.UpdatePassword(token, current, next)
}

// verifyLocal checks the token signature and expiry against the shared
// secret and extracts the profile from the claims.
func (m *Manager) verifyLocal(token string) (domain.User, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(m.leeway),
		jwt.WithExpirationRequired(),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return domain.User{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return domain.User{ID: sub, Email: email, Name: name}, nil
}

func (m *Manager) becomeUnauthenticatedLocked() {
	m.token = ""
	m.user = domain.User{}
	m.state = StateUnauthenticated
	_ = m.tokens.Clear()
}
