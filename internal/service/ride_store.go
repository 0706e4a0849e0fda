package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"porter/internal/api"
	"porter/internal/domain"
)

// RideAPI is the backend surface the ride store depends on.
type RideAPI interface {
	MyRides(ctx context.Context, token string) ([]domain.Ride, error)
	RequestRide(ctx context.Context, token, pickup, destination, idempotencyKey string) (*domain.Ride, error)
	UpdateRideStatus(ctx context.Context, token, rideID string, status domain.RideStatus) error
	AvailablePorters(ctx context.Context, token string) ([]domain.User, error)
}

// Sessions is the part of the session manager the ride store reads.
type Sessions interface {
	Snapshot() domain.Session
	Token() string
	Expire(ctx context.Context, token string) bool
	OnIdentityChange(fn func())
}

// Ensure concrete types implement interfaces.
var (
	_ RideAPI  = (*api.Client)(nil)
	_ Sessions = (*SessionManager)(nil)
)

// RideStore holds the current user's rides.
//
// Consistency policy: the store never edits a ride locally. The list is only
// ever replaced wholesale by FetchMine or extended with the server's own
// response to RequestRide. After a successful status change the store
// refetches everything instead of patching the changed ride, because porter
// assignment and timestamps are decided by the backend. Do not turn this into
// a partial merge.
type RideStore struct {
	sessions Sessions
	rides    RideAPI
	notifier *NotificationService

	mu   sync.Mutex
	list []domain.Ride
}

// NewRideStore creates a new RideStore and subscribes it to identity changes,
// which discard the cached list.
func NewRideStore(sessions Sessions, rides RideAPI, notifier *NotificationService) *RideStore {
	s := &RideStore{
		sessions: sessions,
		rides:    rides,
		notifier: notifier,
	}
	sessions.OnIdentityChange(s.Reset)
	return s
}

// Reset discards the cached list and the notices derived from it.
func (s *RideStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.list = nil
	if s.notifier != nil {
		s.notifier.Clear()
	}
}

// Rides returns a copy of the cached list, newest first.
func (s *RideStore) Rides() []domain.Ride {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Ride(nil), s.list...)
}

// FetchMine replaces the cached list with the backend's view of the current
// user's rides. Without a session it returns an empty list and makes no call.
func (s *RideStore) FetchMine(ctx context.Context) ([]domain.Ride, error) {
	session := s.sessions.Snapshot()
	token := session.Token
	if token == "" {
		log.Printf("[RIDES] skipping fetch: not authenticated")
		return []domain.Ride{}, nil
	}

	rides, err := s.rides.MyRides(ctx, token)
	if err != nil {
		s.expireOnUnauthorized(ctx, token, err)
		log.Printf("[RIDES] failed to fetch rides: %v", err)
		return nil, rideErrorFrom(err)
	}
	sortNewestFirst(rides)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions.Token() != token {
		log.Printf("[RIDES] discarding ride list fetched for a previous session")
		return nil, &RideError{Message: GenericErrorMessage, Err: ErrStaleSession}
	}
	prev := s.list
	s.list = rides

	// Notices are recorded under s.mu so a concurrent Reset cannot interleave.
	if s.notifier != nil {
		var role domain.Role
		if session.User != nil {
			role = session.User.Role
		}
		s.notifier.NotifyTransitions(ctx, role, prev, rides)
	}
	return append([]domain.Ride(nil), rides...), nil
}

// RequestRide asks the backend for a porter between two locations. The
// server's response is put at the head of the list.
func (s *RideStore) RequestRide(ctx context.Context, pickup, destination string) (domain.Ride, error) {
	session := s.sessions.Snapshot()
	if session.Token == "" || session.User == nil {
		return domain.Ride{}, &RideError{Message: "Please log in to continue.", Err: ErrNotAuthenticated}
	}
	if session.User.Role != domain.RoleCustomer {
		return domain.Ride{}, &RideError{Message: "Only customers can request rides.", Err: ErrCustomerOnly}
	}

	pickup = strings.TrimSpace(pickup)
	destination = strings.TrimSpace(destination)
	if pickup == "" {
		return domain.Ride{}, newValidationError("pickup_location", "Pickup location is required")
	}
	if destination == "" {
		return domain.Ride{}, newValidationError("destination", "Destination is required")
	}

	ride, err := s.rides.RequestRide(ctx, session.Token, pickup, destination, uuid.New().String())
	if err != nil {
		s.expireOnUnauthorized(ctx, session.Token, err)
		log.Printf("[RIDES] ride request failed: %v", err)
		return domain.Ride{}, rideErrorFrom(err)
	}
	if ride == nil {
		return domain.Ride{}, &RideError{Message: GenericErrorMessage}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions.Token() != session.Token {
		log.Printf("[RIDES] ride %s created for a previous session, not caching it", ride.ID)
		return *ride, nil
	}

	list := make([]domain.Ride, 0, len(s.list)+1)
	list = append(list, *ride)
	for _, r := range s.list {
		if r.ID != ride.ID {
			list = append(list, r)
		}
	}
	s.list = list

	log.Printf("[RIDES] ride %s requested: %s -> %s", ride.ID, ride.PickupLocation, ride.Destination)
	return *ride, nil
}

// UpdateStatus moves a ride to a new status. The transition is checked
// against the cached ride and the current role before anything is sent; a
// rejected transition leaves the list untouched. On success the whole list is
// refetched.
func (s *RideStore) UpdateStatus(ctx context.Context, rideID string, status domain.RideStatus) error {
	session := s.sessions.Snapshot()
	if session.Token == "" || session.User == nil {
		return &RideError{Message: "Please log in to continue.", Err: ErrNotAuthenticated}
	}

	ride, ok := s.find(rideID)
	if !ok {
		return &RideError{Message: "Ride not found.", Err: ErrRideNotFound}
	}

	if !CanTransition(session.User.Role, ride.Status, status) {
		return &RideError{
			Message: fmt.Sprintf("Cannot change ride from %s to %s.", ride.Status, status),
			Err:     ErrTransitionNotAllowed,
		}
	}

	if err := s.rides.UpdateRideStatus(ctx, session.Token, rideID, status); err != nil {
		s.expireOnUnauthorized(ctx, session.Token, err)
		log.Printf("[RIDES] status update for ride %s failed: %v", rideID, err)
		return rideErrorFrom(err)
	}

	log.Printf("[RIDES] ride %s moved %s -> %s", rideID, ride.Status, status)

	// The change is committed on the backend; a failed resync only means the
	// list is stale until the next fetch.
	if _, err := s.FetchMine(ctx); err != nil {
		log.Printf("[RIDES] resync after status update failed: %v", err)
	}
	return nil
}

// Actions returns the statuses the current user may move ride to.
func (s *RideStore) Actions(ride domain.Ride) []domain.RideStatus {
	session := s.sessions.Snapshot()
	if session.User == nil {
		return nil
	}
	return AllowedTargets(session.User.Role, ride.Status)
}

// AvailablePorters lists porters currently accepting requests.
func (s *RideStore) AvailablePorters(ctx context.Context) ([]domain.User, error) {
	token := s.sessions.Token()
	porters, err := s.rides.AvailablePorters(ctx, token)
	if err != nil {
		s.expireOnUnauthorized(ctx, token, err)
		return nil, rideErrorFrom(err)
	}
	return porters, nil
}

func (s *RideStore) find(rideID string) (domain.Ride, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.list {
		if r.ID == rideID {
			return r, true
		}
	}
	return domain.Ride{}, false
}

func (s *RideStore) expireOnUnauthorized(ctx context.Context, token string, err error) {
	if api.IsUnauthorized(err) {
		s.sessions.Expire(ctx, token)
	}
}

func sortNewestFirst(rides []domain.Ride) {
	sort.SliceStable(rides, func(i, j int) bool {
		return rides[i].CreatedAt.After(rides[j].CreatedAt)
	})
}

func rideErrorFrom(err error) *RideError {
	msg := GenericErrorMessage
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &RideError{Message: msg, StatusCode: api.StatusCode(err), Err: err}
}
