package tests

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"porter/internal/api"
	"porter/internal/domain"
	"porter/internal/service"
)

var (
	customer = domain.User{ID: "cust-1", Name: "Asha", Email: "asha@example.com", Phone: "9000000001", Role: domain.RoleCustomer}
	porter   = domain.User{ID: "port-1", Name: "Ravi", Email: "ravi@example.com", Phone: "9000000002", Role: domain.RolePorter}
)

func waitVerification(t *testing.T, v *service.Verification) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok, err := v.Wait(ctx)
	if err != nil {
		t.Fatalf("verification did not resolve: %v", err)
	}
	return ok
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "cust-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

// ──────────────────────────────────────────────
// 1. STARTUP VERIFICATION
// ──────────────────────────────────────────────

func TestSessionInitialize_NoStoredToken_ResolvesWithoutNetwork(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("")
	auth := NewMockAuthAPI()
	sessions := service.NewSessionManager(store, auth, time.Second)

	v := sessions.Initialize(context.Background())
	if waitVerification(t, v) {
		t.Error("expected unauthenticated session")
	}

	snap := sessions.Snapshot()
	if snap.Resolving || snap.User != nil || snap.Token != "" {
		t.Errorf("expected empty session, got %+v", snap)
	}
	if got := atomic.LoadInt32(&auth.MeCallCount); got != 0 {
		t.Errorf("expected no identity call, got %d", got)
	}
}

func TestSessionInitialize_ValidToken_RestoresUser(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("tok-1")
	auth := NewMockAuthAPI()
	auth.AddToken("tok-1", customer)
	auth.MeGate = make(chan struct{})
	sessions := service.NewSessionManager(store, auth, time.Second)

	v := sessions.Initialize(context.Background())
	<-auth.MeStarted

	snap := sessions.Snapshot()
	if !snap.Resolving {
		t.Error("expected session to be resolving while verification runs")
	}
	if snap.User != nil {
		t.Error("expected no user before verification completes")
	}
	if sessions.Pending() != v {
		t.Error("expected Pending to return the running verification")
	}

	close(auth.MeGate)
	if !waitVerification(t, v) {
		t.Fatal("expected authenticated session")
	}

	snap = sessions.Snapshot()
	if snap.Resolving {
		t.Error("expected resolving to be false after verification")
	}
	if snap.User == nil || snap.User.ID != customer.ID {
		t.Errorf("expected user %s, got %+v", customer.ID, snap.User)
	}
	if sessions.Pending() != nil {
		t.Error("expected no pending verification")
	}
}

func TestSessionInitialize_RejectedToken_ClearsStore(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("tok-revoked")
	auth := NewMockAuthAPI()
	sessions := service.NewSessionManager(store, auth, time.Second)

	var changes int32
	sessions.OnIdentityChange(func() { atomic.AddInt32(&changes, 1) })

	if waitVerification(t, sessions.Initialize(context.Background())) {
		t.Fatal("expected unauthenticated session")
	}

	snap := sessions.Snapshot()
	if snap.Token != "" || snap.User != nil || snap.Resolving {
		t.Errorf("expected cleared session, got %+v", snap)
	}
	if store.Stored() != "" {
		t.Errorf("expected stored token to be removed, got %q", store.Stored())
	}
	if atomic.LoadInt32(&changes) != 1 {
		t.Errorf("expected one identity change, got %d", changes)
	}
}

func TestSessionInitialize_ExpiredToken_FailsWithoutNetwork(t *testing.T) {
	t.Parallel()

	expired := signedToken(t, time.Now().Add(-time.Hour))
	store := NewMockCredentialRepository(expired)
	auth := NewMockAuthAPI()
	auth.AddToken(expired, customer)
	sessions := service.NewSessionManager(store, auth, time.Second)

	if waitVerification(t, sessions.Initialize(context.Background())) {
		t.Fatal("expected expired token to be rejected")
	}
	if got := atomic.LoadInt32(&auth.MeCallCount); got != 0 {
		t.Errorf("expected no identity call for expired token, got %d", got)
	}
	if store.Stored() != "" {
		t.Error("expected expired token to be removed from the store")
	}
}

func TestSessionInitialize_UnexpiredJWT_ExposesExpiry(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, exp)
	store := NewMockCredentialRepository(token)
	auth := NewMockAuthAPI()
	auth.AddToken(token, customer)
	sessions := service.NewSessionManager(store, auth, time.Second)

	if !waitVerification(t, sessions.Initialize(context.Background())) {
		t.Fatal("expected authenticated session")
	}
	if got := sessions.Snapshot().ExpiresAt; !got.Equal(exp) {
		t.Errorf("expected expiry %v, got %v", exp, got)
	}
}

func TestSessionInitialize_SameTokenTwice_VerifiesOnce(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("tok-1")
	auth := NewMockAuthAPI()
	auth.AddToken("tok-1", customer)
	auth.MeGate = make(chan struct{})
	sessions := service.NewSessionManager(store, auth, time.Second)

	first := sessions.Initialize(context.Background())
	second := sessions.Initialize(context.Background())
	if first != second {
		t.Error("expected the same verification for the same token")
	}

	close(auth.MeGate)
	waitVerification(t, first)

	// Already verified: no further network call.
	waitVerification(t, sessions.Initialize(context.Background()))

	if got := atomic.LoadInt32(&auth.MeCallCount); got != 1 {
		t.Errorf("expected exactly one identity call, got %d", got)
	}
}

func TestSessionInitialize_StoreLoadFailure_StartsSignedOut(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("tok-1")
	store.LoadError = errors.New("disk unavailable")
	auth := NewMockAuthAPI()
	sessions := service.NewSessionManager(store, auth, time.Second)

	if waitVerification(t, sessions.Initialize(context.Background())) {
		t.Error("expected unauthenticated session")
	}
	if atomic.LoadInt32(&auth.MeCallCount) != 0 {
		t.Error("expected no identity call")
	}
}

// ──────────────────────────────────────────────
// 2. STALE RESULTS
// ──────────────────────────────────────────────

func TestSession_VerificationAfterLogout_DoesNotRestoreUser(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("tok-1")
	auth := NewMockAuthAPI()
	auth.AddToken("tok-1", customer)
	auth.MeGate = make(chan struct{})
	sessions := service.NewSessionManager(store, auth, time.Second)

	v := sessions.Initialize(context.Background())
	<-auth.MeStarted

	sessions.Logout(context.Background())
	close(auth.MeGate)

	if waitVerification(t, v) {
		t.Error("expected superseded verification to report unauthenticated")
	}

	// Give the verifier a chance to apply a stale result.
	time.Sleep(20 * time.Millisecond)

	snap := sessions.Snapshot()
	if snap.User != nil || snap.Token != "" {
		t.Errorf("expected session to stay signed out, got %+v", snap)
	}
	if store.Stored() != "" {
		t.Error("expected stored token to stay cleared")
	}
}

func TestSession_LoginDuringVerification_KeepsLoggedInUser(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("tok-old")
	auth := NewMockAuthAPI()
	auth.MeGate = make(chan struct{})
	auth.LoginToken = "tok-new"
	auth.LoginUser = porter
	sessions := service.NewSessionManager(store, auth, time.Second)

	v := sessions.Initialize(context.Background())
	<-auth.MeStarted

	if err := sessions.Login(context.Background(), porter.Email, "secret"); err != nil {
		t.Fatalf("expected login to succeed, got: %v", err)
	}

	// The old token is unknown to the backend; its rejection must not sign
	// out the new session.
	close(auth.MeGate)
	waitVerification(t, v)
	time.Sleep(20 * time.Millisecond)

	snap := sessions.Snapshot()
	if snap.User == nil || snap.User.ID != porter.ID {
		t.Fatalf("expected porter to stay signed in, got %+v", snap.User)
	}
	if snap.Token != "tok-new" || store.Stored() != "tok-new" {
		t.Errorf("expected new token in memory and store, got %q / %q", snap.Token, store.Stored())
	}
}

func TestSession_LoginReplyAfterLogout_Dropped(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("")
	auth := NewMockAuthAPI()
	auth.LoginToken = "tok-late"
	auth.LoginUser = customer
	auth.LoginGate = make(chan struct{})
	sessions := service.NewSessionManager(store, auth, time.Second)

	var changes int32
	sessions.OnIdentityChange(func() { atomic.AddInt32(&changes, 1) })

	done := make(chan error, 1)
	go func() {
		done <- sessions.Login(context.Background(), customer.Email, "secret")
	}()
	<-auth.LoginStarted

	// Already signed out, but it still cancels the sign-in in flight.
	sessions.Logout(context.Background())
	close(auth.LoginGate)

	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("login did not return")
	}

	if !errors.Is(err, service.ErrStaleSession) {
		t.Errorf("expected ErrStaleSession, got %v", err)
	}
	var authErr *service.AuthError
	if !errors.As(err, &authErr) {
		t.Errorf("expected AuthError, got %T", err)
	}

	snap := sessions.Snapshot()
	if snap.User != nil || snap.Token != "" {
		t.Errorf("expected session to stay signed out, got %+v", snap)
	}
	if atomic.LoadInt32(&store.SaveCallCount) != 0 || store.Stored() != "" {
		t.Errorf("expected nothing persisted, got %q", store.Stored())
	}
	if atomic.LoadInt32(&changes) != 0 {
		t.Errorf("expected no identity change, got %d", changes)
	}

	// A fresh login afterwards works normally.
	if err := sessions.Login(context.Background(), customer.Email, "secret"); err != nil {
		t.Fatalf("expected second login to succeed, got: %v", err)
	}
	if !sessions.Snapshot().Authenticated() || store.Stored() != "tok-late" {
		t.Error("expected second login to sign in and persist")
	}
}

func TestSession_RegisterReplyAfterLogout_Dropped(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("")
	auth := NewMockAuthAPI()
	auth.LoginToken = "tok-late"
	auth.LoginGate = make(chan struct{})
	sessions := service.NewSessionManager(store, auth, time.Second)

	done := make(chan error, 1)
	go func() {
		done <- sessions.Register(context.Background(), domain.Profile{
			Name: "Ravi", Email: "ravi@example.com", Phone: "9000000002", Password: "secret", Role: domain.RolePorter,
		})
	}()
	<-auth.LoginStarted

	sessions.Logout(context.Background())
	close(auth.LoginGate)

	if err := <-done; !errors.Is(err, service.ErrStaleSession) {
		t.Errorf("expected ErrStaleSession, got %v", err)
	}
	if sessions.Snapshot().Authenticated() || store.Stored() != "" {
		t.Error("expected session to stay signed out with nothing persisted")
	}
}

func TestSession_LoginDuringFailingVerification_SignsIn(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("tok-revoked")
	auth := NewMockAuthAPI()
	auth.MeGate = make(chan struct{})
	auth.LoginGate = make(chan struct{})
	auth.LoginToken = "tok-new"
	auth.LoginUser = customer
	sessions := service.NewSessionManager(store, auth, time.Second)

	v := sessions.Initialize(context.Background())
	<-auth.MeStarted

	done := make(chan error, 1)
	go func() {
		done <- sessions.Login(context.Background(), customer.Email, "secret")
	}()
	<-auth.LoginStarted

	// The stored token is rejected while the login is in flight.
	close(auth.MeGate)
	if waitVerification(t, v) {
		t.Fatal("expected revoked token to be rejected")
	}

	close(auth.LoginGate)
	if err := <-done; err != nil {
		t.Fatalf("expected login to succeed, got: %v", err)
	}

	snap := sessions.Snapshot()
	if snap.User == nil || snap.User.ID != customer.ID || store.Stored() != "tok-new" {
		t.Errorf("expected new session signed in and persisted, got %+v / %q", snap.User, store.Stored())
	}
}

// ──────────────────────────────────────────────
// 3. LOGIN / REGISTER / LOGOUT
// ──────────────────────────────────────────────

func TestSessionLogin_Success_PersistsToken(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("")
	auth := NewMockAuthAPI()
	auth.LoginToken = "tok-1"
	auth.LoginUser = customer
	sessions := service.NewSessionManager(store, auth, time.Second)

	var changes int32
	sessions.OnIdentityChange(func() { atomic.AddInt32(&changes, 1) })

	if err := sessions.Login(context.Background(), "  asha@example.com ", "secret"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	snap := sessions.Snapshot()
	if !snap.Authenticated() {
		t.Fatal("expected authenticated session")
	}
	if snap.User.Role != domain.RoleCustomer {
		t.Errorf("expected role customer, got %s", snap.User.Role)
	}
	if store.Stored() != "tok-1" {
		t.Errorf("expected token persisted, got %q", store.Stored())
	}
	if u := sessions.User(); u == nil || u.ID != customer.ID {
		t.Errorf("expected user %s, got %+v", customer.ID, u)
	}
	if atomic.LoadInt32(&changes) != 1 {
		t.Errorf("expected one identity change, got %d", changes)
	}
}

func TestSessionLogin_Failure_SurfacesMessage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "server detail",
			err:     &api.Error{StatusCode: http.StatusUnauthorized, Message: "Incorrect email or password"},
			wantMsg: "Incorrect email or password",
		},
		{
			name:    "no detail",
			err:     &api.Error{StatusCode: http.StatusInternalServerError},
			wantMsg: service.GenericErrorMessage,
		},
		{
			name:    "transport failure",
			err:     errors.New("connection refused"),
			wantMsg: service.GenericErrorMessage,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := NewMockCredentialRepository("")
			auth := NewMockAuthAPI()
			auth.LoginError = tc.err
			sessions := service.NewSessionManager(store, auth, time.Second)

			err := sessions.Login(context.Background(), "asha@example.com", "wrong")
			var authErr *service.AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected AuthError, got %v", err)
			}
			if authErr.Message != tc.wantMsg {
				t.Errorf("expected message %q, got %q", tc.wantMsg, authErr.Message)
			}
			if sessions.Snapshot().Authenticated() {
				t.Error("expected session to stay unauthenticated")
			}
			if atomic.LoadInt32(&store.SaveCallCount) != 0 {
				t.Error("expected nothing persisted")
			}
		})
	}
}

func TestSessionLogin_MissingFields_NoNetworkCall(t *testing.T) {
	t.Parallel()

	auth := NewMockAuthAPI()
	sessions := service.NewSessionManager(NewMockCredentialRepository(""), auth, time.Second)

	for _, in := range [][2]string{{"", "secret"}, {"   ", "secret"}, {"asha@example.com", ""}} {
		err := sessions.Login(context.Background(), in[0], in[1])
		var vErr *service.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("expected ValidationError for %q, got %v", in, err)
		}
	}
	if atomic.LoadInt32(&auth.LoginCallCount) != 0 {
		t.Error("expected no login call")
	}
}

func TestSessionLogin_StoreSaveFailure_StillSignedIn(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("")
	store.SaveError = errors.New("read-only filesystem")
	auth := NewMockAuthAPI()
	auth.LoginToken = "tok-1"
	auth.LoginUser = customer
	sessions := service.NewSessionManager(store, auth, time.Second)

	if err := sessions.Login(context.Background(), customer.Email, "secret"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !sessions.Snapshot().Authenticated() {
		t.Error("expected authenticated session")
	}
}

func TestSessionRegister_Validation(t *testing.T) {
	t.Parallel()

	valid := domain.Profile{Name: "Asha", Email: "asha@example.com", Phone: "9000000001", Password: "secret", Role: domain.RoleCustomer}

	testCases := []struct {
		name      string
		mutate    func(p *domain.Profile)
		wantField string
	}{
		{name: "missing name", mutate: func(p *domain.Profile) { p.Name = " " }, wantField: "name"},
		{name: "missing email", mutate: func(p *domain.Profile) { p.Email = "" }, wantField: "email"},
		{name: "missing phone", mutate: func(p *domain.Profile) { p.Phone = "" }, wantField: "phone"},
		{name: "missing password", mutate: func(p *domain.Profile) { p.Password = "" }, wantField: "password"},
		{name: "unknown role", mutate: func(p *domain.Profile) { p.Role = "admin" }, wantField: "role"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			auth := NewMockAuthAPI()
			sessions := service.NewSessionManager(NewMockCredentialRepository(""), auth, time.Second)

			profile := valid
			tc.mutate(&profile)

			err := sessions.Register(context.Background(), profile)
			var vErr *service.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tc.wantField {
				t.Errorf("expected field %s, got %s", tc.wantField, vErr.Field)
			}
			if atomic.LoadInt32(&auth.RegisterCallCount) != 0 {
				t.Error("expected no register call")
			}
		})
	}
}

func TestSessionRegister_Porter_SignsIn(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("")
	auth := NewMockAuthAPI()
	auth.LoginToken = "tok-porter"
	sessions := service.NewSessionManager(store, auth, time.Second)

	err := sessions.Register(context.Background(), domain.Profile{
		Name: "Ravi", Email: "ravi@example.com", Phone: "9000000002", Password: "secret", Role: domain.RolePorter,
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	snap := sessions.Snapshot()
	if snap.User == nil || snap.User.Role != domain.RolePorter {
		t.Fatalf("expected porter session, got %+v", snap.User)
	}
	if store.Stored() != "tok-porter" {
		t.Errorf("expected token persisted, got %q", store.Stored())
	}
}

func TestSessionRegister_DuplicateEmail_SurfacesMessage(t *testing.T) {
	t.Parallel()

	auth := NewMockAuthAPI()
	auth.RegisterError = &api.Error{StatusCode: http.StatusBadRequest, Message: "Email already registered"}
	sessions := service.NewSessionManager(NewMockCredentialRepository(""), auth, time.Second)

	err := sessions.Register(context.Background(), domain.Profile{
		Name: "Asha", Email: "asha@example.com", Phone: "9000000001", Password: "secret", Role: domain.RoleCustomer,
	})
	if err == nil || err.Error() != "Email already registered" {
		t.Errorf("expected server message, got %v", err)
	}
}

func TestSessionLogout_Idempotent(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("")
	auth := NewMockAuthAPI()
	auth.LoginToken = "tok-1"
	auth.LoginUser = customer
	sessions := service.NewSessionManager(store, auth, time.Second)

	var changes int32
	sessions.OnIdentityChange(func() { atomic.AddInt32(&changes, 1) })

	// Signed out already: nothing happens.
	sessions.Logout(context.Background())
	if atomic.LoadInt32(&store.ClearCallCount) != 0 || atomic.LoadInt32(&changes) != 0 {
		t.Error("expected logout while signed out to be a no-op")
	}

	if err := sessions.Login(context.Background(), customer.Email, "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	sessions.Logout(context.Background())
	sessions.Logout(context.Background())

	if sessions.Snapshot().Authenticated() {
		t.Error("expected signed out session")
	}
	if store.Stored() != "" {
		t.Error("expected stored token cleared")
	}
	if got := atomic.LoadInt32(&store.ClearCallCount); got != 1 {
		t.Errorf("expected one clear, got %d", got)
	}
	// login + one effective logout
	if got := atomic.LoadInt32(&changes); got != 2 {
		t.Errorf("expected two identity changes, got %d", got)
	}
}

func TestSessionExpire_OnlyCurrentToken(t *testing.T) {
	t.Parallel()

	store := NewMockCredentialRepository("")
	auth := NewMockAuthAPI()
	auth.LoginToken = "tok-1"
	auth.LoginUser = customer
	sessions := service.NewSessionManager(store, auth, time.Second)

	if err := sessions.Login(context.Background(), customer.Email, "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if sessions.Expire(context.Background(), "tok-other") {
		t.Error("expected expiry of a foreign token to be ignored")
	}
	if !sessions.Snapshot().Authenticated() {
		t.Fatal("expected session to survive foreign expiry")
	}

	if !sessions.Expire(context.Background(), "tok-1") {
		t.Error("expected current token to expire")
	}
	if sessions.Snapshot().Authenticated() || store.Stored() != "" {
		t.Error("expected session and store cleared")
	}
}
