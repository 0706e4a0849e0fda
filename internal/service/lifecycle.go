package service

import "porter/internal/domain"

// Transition is a status change a role may initiate from this client.
type Transition struct {
	Role domain.Role
	From domain.RideStatus
	To   domain.RideStatus
}

// allowedTransitions is the full set of status changes the client offers.
// Customers create rides in the requested status through RequestRide, and
// requested -> assigned is performed by the backend; neither appears here.
var allowedTransitions = []Transition{
	{Role: domain.RolePorter, From: domain.RideStatusAssigned, To: domain.RideStatusInProgress},
	{Role: domain.RolePorter, From: domain.RideStatusInProgress, To: domain.RideStatusCompleted},
}

// CanTransition reports whether role may move a ride from one status to another.
func CanTransition(role domain.Role, from, to domain.RideStatus) bool {
	if !from.Advances(to) {
		return false
	}
	for _, t := range allowedTransitions {
		if t.Role == role && t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses role may move a ride in status from to.
func AllowedTargets(role domain.Role, from domain.RideStatus) []domain.RideStatus {
	var targets []domain.RideStatus
	for _, t := range allowedTransitions {
		if t.Role == role && t.From == from && from.Advances(t.To) {
			targets = append(targets, t.To)
		}
	}
	return targets
}
