package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"porter/internal/api"
	"porter/internal/domain"
	"porter/internal/repository"
)

// AuthAPI is the backend surface the session manager depends on.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*api.AuthResult, error)
	Register(ctx context.Context, profile domain.Profile) (*api.AuthResult, error)
	Me(ctx context.Context, token string) (*domain.User, error)
}

// Ensure the backend client implements AuthAPI.
var _ AuthAPI = (*api.Client)(nil)

var errTokenExpired = errors.New("stored token expired")

// Verification is the startup identity check for one token value.
type Verification struct {
	token         string
	done          chan struct{}
	once          sync.Once
	authenticated bool
}

func newVerification(token string) *Verification {
	return &Verification{token: token, done: make(chan struct{})}
}

func resolvedVerification(authenticated bool) *Verification {
	v := newVerification("")
	v.finish(authenticated)
	return v
}

func (v *Verification) finish(authenticated bool) {
	v.once.Do(func() {
		v.authenticated = authenticated
		close(v.done)
	})
}

// Done is closed once the verification has resolved.
func (v *Verification) Done() <-chan struct{} {
	return v.done
}

// Wait blocks until the verification resolves or ctx is done. It reports
// whether the session ended up authenticated.
func (v *Verification) Wait(ctx context.Context) (bool, error) {
	select {
	case <-v.done:
		return v.authenticated, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// SessionManager owns the authenticated identity of the running client.
//
// Every identity change bumps a generation counter. Asynchronous results are
// applied only if the generation they were issued under is still current, so a
// verification reply that lands after logout is dropped. Login and register
// replies are tagged with the logout count and dropped if the user logged out
// while they were in flight. Credential store calls happen under the session
// lock so the persisted token never diverges from the in-memory one.
type SessionManager struct {
	store         repository.CredentialRepository
	auth          AuthAPI
	verifyTimeout time.Duration

	mu           sync.Mutex
	token        string
	user         *domain.User
	resolving    bool
	expiresAt    time.Time
	generation   uint64
	logouts      uint64
	verification *Verification
	listeners    []func()

	now func() time.Time
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(store repository.CredentialRepository, auth AuthAPI, verifyTimeout time.Duration) *SessionManager {
	if verifyTimeout <= 0 {
		verifyTimeout = 10 * time.Second
	}
	return &SessionManager{
		store:         store,
		auth:          auth,
		verifyTimeout: verifyTimeout,
		now:           time.Now,
	}
}

// OnIdentityChange registers fn to run after every login, registration,
// logout or verification outcome. fn is called without the session lock held.
func (m *SessionManager) OnIdentityChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Initialize restores a persisted session. Without a stored token the session
// resolves unauthenticated immediately and no network call is made. Otherwise
// the token is verified in the background; the returned Verification resolves
// when that check completes. A second call for the same token returns the
// same Verification instead of verifying again.
func (m *SessionManager) Initialize(ctx context.Context) *Verification {
	token, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("[SESSION] failed to load stored token, starting signed out: %v", err)
		}
		token = ""
	}

	m.mu.Lock()

	if token == "" {
		authenticated := m.user != nil
		m.mu.Unlock()
		return resolvedVerification(authenticated)
	}

	if m.verification != nil && m.verification.token == token {
		v := m.verification
		m.mu.Unlock()
		return v
	}

	if m.token == token && m.user != nil {
		m.mu.Unlock()
		return resolvedVerification(true)
	}

	m.generation++
	gen := m.generation
	m.token = token
	m.user = nil
	m.resolving = true
	m.expiresAt = tokenExpiry(token)
	v := newVerification(token)
	m.verification = v
	m.mu.Unlock()

	go m.verify(v, gen)
	return v
}

func (m *SessionManager) verify(v *Verification, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), m.verifyTimeout)
	defer cancel()

	var (
		user *domain.User
		err  error
	)
	if exp := tokenExpiry(v.token); !exp.IsZero() && !m.now().Before(exp) {
		err = errTokenExpired
	} else {
		user, err = m.auth.Me(ctx, v.token)
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		log.Printf("[SESSION] discarding verification result for a superseded token")
		v.finish(false)
		return
	}

	if err != nil || user == nil {
		if err == nil {
			err = errors.New("empty identity")
		}
		log.Printf("[SESSION] stored token rejected, signing out: %v", err)
		clearCtx, clearCancel := context.WithTimeout(context.Background(), m.verifyTimeout)
		m.clearLocked(clearCtx)
		clearCancel()
		listeners := m.listenersLocked()
		m.mu.Unlock()

		v.finish(false)
		notify(listeners)
		return
	}

	m.user = user
	m.resolving = false
	listeners := m.listenersLocked()
	m.mu.Unlock()

	log.Printf("[SESSION] restored session for user %s (%s)", user.ID, user.Role)
	v.finish(true)
	notify(listeners)
}

// Login authenticates with email and password.
func (m *SessionManager) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return newValidationError("email", "Email is required")
	}
	if password == "" {
		return newValidationError("password", "Password is required")
	}

	issued := m.logoutCount()
	res, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return authErrorFrom(err)
	}
	return m.establish(ctx, issued, res)
}

// Register creates an account. The backend signs the new user in.
func (m *SessionManager) Register(ctx context.Context, profile domain.Profile) error {
	profile.Name = strings.TrimSpace(profile.Name)
	profile.Email = strings.TrimSpace(profile.Email)
	profile.Phone = strings.TrimSpace(profile.Phone)

	switch {
	case profile.Name == "":
		return newValidationError("name", "Name is required")
	case profile.Email == "":
		return newValidationError("email", "Email is required")
	case profile.Phone == "":
		return newValidationError("phone", "Phone is required")
	case profile.Password == "":
		return newValidationError("password", "Password is required")
	case !profile.Role.Valid():
		return newValidationError("role", "Role must be %q or %q", domain.RoleCustomer, domain.RolePorter)
	}

	issued := m.logoutCount()
	res, err := m.auth.Register(ctx, profile)
	if err != nil {
		return authErrorFrom(err)
	}
	return m.establish(ctx, issued, res)
}

func (m *SessionManager) logoutCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logouts
}

// establish applies a sign-in reply unless the user logged out after the
// request was issued.
func (m *SessionManager) establish(ctx context.Context, issued uint64, res *api.AuthResult) error {
	if res == nil || res.Token == "" {
		return &AuthError{Message: GenericErrorMessage}
	}

	user := res.User

	m.mu.Lock()
	if issued != m.logouts {
		m.mu.Unlock()
		log.Printf("[SESSION] discarding sign-in reply for %s: signed out while it was in flight", user.ID)
		return &AuthError{Message: "You signed out before signing in finished.", Err: ErrStaleSession}
	}
	if err := m.store.Save(ctx, res.Token); err != nil {
		log.Printf("[SESSION] failed to persist token, session will not survive restart: %v", err)
	}
	m.generation++
	m.token = res.Token
	m.user = &user
	m.resolving = false
	m.expiresAt = tokenExpiry(res.Token)
	pending := m.verification
	m.verification = nil
	listeners := m.listenersLocked()
	m.mu.Unlock()

	if pending != nil {
		pending.finish(false)
	}
	log.Printf("[SESSION] signed in as %s (%s)", user.ID, user.Role)
	notify(listeners)
	return nil
}

// Logout clears the session locally. It makes no network call. When already
// signed out it only cancels sign-ins still in flight.
func (m *SessionManager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.logouts++
	if m.token == "" && m.user == nil && !m.resolving {
		m.mu.Unlock()
		return
	}
	m.clearLocked(ctx)
	listeners := m.listenersLocked()
	m.mu.Unlock()

	log.Printf("[SESSION] signed out")
	notify(listeners)
}

// Expire signs out if token is still the current session token. It reports
// whether the session was cleared.
func (m *SessionManager) Expire(ctx context.Context, token string) bool {
	m.mu.Lock()
	if token == "" || token != m.token {
		m.mu.Unlock()
		return false
	}
	m.clearLocked(ctx)
	listeners := m.listenersLocked()
	m.mu.Unlock()

	log.Printf("[SESSION] token rejected by backend, signed out")
	notify(listeners)
	return true
}

// clearLocked resets the session and the persisted token. m.mu must be held.
func (m *SessionManager) clearLocked(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		log.Printf("[SESSION] failed to clear stored token: %v", err)
	}
	m.generation++
	m.token = ""
	m.user = nil
	m.resolving = false
	m.expiresAt = time.Time{}
	if m.verification != nil {
		m.verification.finish(false)
		m.verification = nil
	}
}

func (m *SessionManager) listenersLocked() []func() {
	return append([]func(){}, m.listeners...)
}

// Snapshot returns a copy of the current session state.
func (m *SessionManager) Snapshot() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := domain.Session{
		Token:     m.token,
		Resolving: m.resolving,
		ExpiresAt: m.expiresAt,
	}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

// Token returns the current bearer token, or "" when signed out.
func (m *SessionManager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// User returns a copy of the signed-in user, or nil.
func (m *SessionManager) User() *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Pending returns the in-flight verification, or nil when none is running.
func (m *SessionManager) Pending() *Verification {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.resolving {
		return nil
	}
	return m.verification
}

func notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}

// tokenExpiry reads the exp claim of a JWT without verifying it. Tokens that
// are not JWTs, or carry no exp, yield the zero time.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func authErrorFrom(err error) *AuthError {
	msg := GenericErrorMessage
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &AuthError{Message: msg, StatusCode: api.StatusCode(err), Err: err}
}
