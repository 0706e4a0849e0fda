package tests

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"porter/internal/api"
	"porter/internal/domain"
	"porter/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK CREDENTIAL REPOSITORY
// ──────────────────────────────────────────────

// MockCredentialRepository is an in-memory repository.CredentialRepository.
type MockCredentialRepository struct {
	mu    sync.Mutex
	token string

	// Counters for verification
	SaveCallCount  int32
	LoadCallCount  int32
	ClearCallCount int32

	// Error injection
	SaveError  error
	LoadError  error
	ClearError error
}

// NewMockCredentialRepository creates a repository holding token ("" for none).
func NewMockCredentialRepository(token string) *MockCredentialRepository {
	return &MockCredentialRepository{token: token}
}

func (m *MockCredentialRepository) Save(ctx context.Context, token string) error {
	atomic.AddInt32(&m.SaveCallCount, 1)
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MockCredentialRepository) Load(ctx context.Context) (string, error) {
	atomic.AddInt32(&m.LoadCallCount, 1)
	if m.LoadError != nil {
		return "", m.LoadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", repository.ErrNotFound
	}
	return m.token, nil
}

func (m *MockCredentialRepository) Clear(ctx context.Context) error {
	atomic.AddInt32(&m.ClearCallCount, 1)
	if m.ClearError != nil {
		return m.ClearError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// Stored returns the persisted token for test assertions.
func (m *MockCredentialRepository) Stored() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// ──────────────────────────────────────────────
// MOCK AUTH API
// ──────────────────────────────────────────────

// MockAuthAPI is a mock implementation of service.AuthAPI.
type MockAuthAPI struct {
	mu    sync.Mutex
	users map[string]domain.User // token -> user

	// Counters for verification
	LoginCallCount    int32
	RegisterCallCount int32
	MeCallCount       int32

	// Error injection
	LoginError    error
	RegisterError error
	MeError       error

	// LoginToken is the token handed out by Login and Register.
	LoginToken string
	LoginUser  domain.User

	// MeGate, when set, blocks Me until it is closed.
	MeGate chan struct{}
	// MeStarted is closed when the first Me call begins.
	MeStarted chan struct{}
	meOnce    sync.Once

	// LoginGate, when set, blocks Login and Register until it is closed.
	LoginGate chan struct{}
	// LoginStarted is closed when the first Login or Register call begins.
	LoginStarted chan struct{}
	loginOnce    sync.Once
}

// NewMockAuthAPI creates a new mock auth API.
func NewMockAuthAPI() *MockAuthAPI {
	return &MockAuthAPI{
		users:     make(map[string]domain.User),
		MeStarted:    make(chan struct{}),
		LoginStarted: make(chan struct{}),
	}
}

// AddToken makes token resolve to user in Me.
func (m *MockAuthAPI) AddToken(token string, user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[token] = user
}

func (m *MockAuthAPI) Login(ctx context.Context, email, password string) (*api.AuthResult, error) {
	atomic.AddInt32(&m.LoginCallCount, 1)
	if err := m.waitLoginGate(ctx); err != nil {
		return nil, err
	}
	if m.LoginError != nil {
		return nil, m.LoginError
	}
	m.AddToken(m.LoginToken, m.LoginUser)
	return &api.AuthResult{Token: m.LoginToken, User: m.LoginUser}, nil
}

func (m *MockAuthAPI) Register(ctx context.Context, profile domain.Profile) (*api.AuthResult, error) {
	atomic.AddInt32(&m.RegisterCallCount, 1)
	if err := m.waitLoginGate(ctx); err != nil {
		return nil, err
	}
	if m.RegisterError != nil {
		return nil, m.RegisterError
	}
	user := domain.User{
		ID:    "new-user",
		Name:  profile.Name,
		Email: profile.Email,
		Phone: profile.Phone,
		Role:  profile.Role,
	}
	m.AddToken(m.LoginToken, user)
	return &api.AuthResult{Token: m.LoginToken, User: user}, nil
}

func (m *MockAuthAPI) waitLoginGate(ctx context.Context) error {
	m.loginOnce.Do(func() { close(m.LoginStarted) })
	return waitGate(ctx, m.LoginGate)
}

func (m *MockAuthAPI) Me(ctx context.Context, token string) (*domain.User, error) {
	atomic.AddInt32(&m.MeCallCount, 1)
	m.meOnce.Do(func() { close(m.MeStarted) })

	if err := waitGate(ctx, m.MeGate); err != nil {
		return nil, err
	}
	if m.MeError != nil {
		return nil, m.MeError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[token]
	if !ok {
		return nil, &api.Error{StatusCode: http.StatusUnauthorized, Message: "Invalid token"}
	}
	return &user, nil
}

// ──────────────────────────────────────────────
// MOCK RIDE API
// ──────────────────────────────────────────────

// MockRideAPI is a mock implementation of service.RideAPI that behaves like
// the backend: it keeps rides server-side and applies status updates.
type MockRideAPI struct {
	mu      sync.Mutex
	rides   []domain.Ride
	porters []domain.User

	// Counters for verification
	MyRidesCallCount      int32
	RequestRideCallCount  int32
	UpdateStatusCallCount int32

	// Error injection
	MyRidesError     error
	RequestRideError error
	UpdateError      error

	// MyRidesGate and RequestRideGate, when set, block the call until closed.
	// The matching Started channel is closed when the first call begins.
	MyRidesGate        chan struct{}
	MyRidesStarted     chan struct{}
	RequestRideGate    chan struct{}
	RequestRideStarted chan struct{}
	myRidesOnce        sync.Once
	requestRideOnce    sync.Once

	// RequestRideResult is returned by RequestRide.
	RequestRideResult *domain.Ride

	LastToken          string
	LastIdempotencyKey string
}

// NewMockRideAPI creates a mock ride API holding rides.
func NewMockRideAPI(rides ...domain.Ride) *MockRideAPI {
	return &MockRideAPI{
		rides:              rides,
		MyRidesStarted:     make(chan struct{}),
		RequestRideStarted: make(chan struct{}),
	}
}

// SetRideStatus changes a ride server-side, as the dispatcher would.
func (m *MockRideAPI) SetRideStatus(id string, status domain.RideStatus, porterName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rides {
		if m.rides[i].ID == id {
			m.rides[i].Status = status
			if porterName != "" {
				m.rides[i].PorterName = porterName
			}
		}
	}
}

// AddPorter adds an available porter.
func (m *MockRideAPI) AddPorter(p domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.porters = append(m.porters, p)
}

func (m *MockRideAPI) MyRides(ctx context.Context, token string) ([]domain.Ride, error) {
	atomic.AddInt32(&m.MyRidesCallCount, 1)
	m.myRidesOnce.Do(func() { close(m.MyRidesStarted) })
	if err := waitGate(ctx, m.MyRidesGate); err != nil {
		return nil, err
	}
	if m.MyRidesError != nil {
		return nil, m.MyRidesError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastToken = token
	return append([]domain.Ride(nil), m.rides...), nil
}

func (m *MockRideAPI) RequestRide(ctx context.Context, token, pickup, destination, idempotencyKey string) (*domain.Ride, error) {
	atomic.AddInt32(&m.RequestRideCallCount, 1)
	m.requestRideOnce.Do(func() { close(m.RequestRideStarted) })
	if err := waitGate(ctx, m.RequestRideGate); err != nil {
		return nil, err
	}
	if m.RequestRideError != nil {
		return nil, m.RequestRideError
	}
	if m.RequestRideResult == nil {
		return nil, errors.New("mock: no ride configured")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastToken = token
	m.LastIdempotencyKey = idempotencyKey
	ride := *m.RequestRideResult
	m.rides = append(m.rides, ride)
	return &ride, nil
}

func (m *MockRideAPI) UpdateRideStatus(ctx context.Context, token, rideID string, status domain.RideStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastToken = token
	for i := range m.rides {
		if m.rides[i].ID == rideID {
			m.rides[i].Status = status
			return nil
		}
	}
	return &api.Error{StatusCode: http.StatusNotFound, Message: "Ride not found"}
}

func (m *MockRideAPI) AvailablePorters(ctx context.Context, token string) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.User(nil), m.porters...), nil
}

// waitGate blocks until gate is closed or ctx is done. A nil gate never blocks.
func waitGate(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
