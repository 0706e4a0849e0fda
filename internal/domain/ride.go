package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested  RideStatus = "requested"
	RideStatusAssigned   RideStatus = "assigned"
	RideStatusInProgress RideStatus = "in_progress"
	RideStatusCompleted  RideStatus = "completed"
)

// rideStatusLegacyPending is what older backends report for a fresh request.
const rideStatusLegacyPending RideStatus = "pending"

// rideLifecycle lists statuses in the only order a ride may pass through them.
var rideLifecycle = []RideStatus{
	RideStatusRequested,
	RideStatusAssigned,
	RideStatusInProgress,
	RideStatusCompleted,
}

// NormalizeRideStatus maps backend spellings onto the lifecycle statuses.
// Unknown values are returned unchanged.
func NormalizeRideStatus(s string) RideStatus {
	status := RideStatus(s)
	if status == rideStatusLegacyPending {
		return RideStatusRequested
	}
	return status
}

// Rank returns the position of s in the lifecycle, or -1 if s is unknown.
func (s RideStatus) Rank() int {
	for i, st := range rideLifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

// Known reports whether s is part of the lifecycle.
func (s RideStatus) Known() bool {
	return s.Rank() >= 0
}

// Next returns the status directly after s. ok is false for the terminal
// status and for unknown statuses.
func (s RideStatus) Next() (next RideStatus, ok bool) {
	r := s.Rank()
	if r < 0 || r == len(rideLifecycle)-1 {
		return "", false
	}
	return rideLifecycle[r+1], true
}

// Advances reports whether to is the immediate successor of s.
// Backward and skip transitions never advance.
func (s RideStatus) Advances(to RideStatus) bool {
	next, ok := s.Next()
	return ok && next == to
}

// Ride represents a porter request as seen by the current user.
type Ride struct {
	ID             string
	CustomerID     string
	PickupLocation string
	Destination    string
	Status         RideStatus
	PorterID       string
	PorterName     string
	PorterPhone    string
	CreatedAt      time.Time
	AssignedAt     time.Time
	CompletedAt    time.Time
}

// HasPorter reports whether the backend has assigned a porter.
func (r Ride) HasPorter() bool {
	return r.PorterName != "" || r.PorterID != ""
}
