package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"porter/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationPorterAssigned NotificationType = "PORTER_ASSIGNED"
	NotificationRideStarted    NotificationType = "RIDE_STARTED"
	NotificationRideCompleted  NotificationType = "RIDE_COMPLETED"
)

const defaultNotificationLimit = 20

// Notification describes a status change observed between two refetches.
type Notification struct {
	Type      NotificationType
	RideID    string
	Title     string
	Message   string
	CreatedAt time.Time
}

// NotificationService turns server-side status changes, which the client only
// sees on refetch, into user-facing notices. It keeps the most recent ones for
// the main view.
type NotificationService struct {
	mu     sync.Mutex
	recent []Notification
	limit  int
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService() *NotificationService {
	return &NotificationService{limit: defaultNotificationLimit}
}

// NotifyTransitions compares two consecutive ride lists and reports every
// ride whose status moved forward, worded for a user with role.
func (s *NotificationService) NotifyTransitions(ctx context.Context, role domain.Role, prev, next []domain.Ride) []Notification {
	if len(prev) == 0 {
		return nil
	}

	before := make(map[string]domain.RideStatus, len(prev))
	for _, r := range prev {
		before[r.ID] = r.Status
	}

	var out []Notification
	for _, r := range next {
		old, ok := before[r.ID]
		if !ok || old == r.Status || r.Status.Rank() <= old.Rank() {
			continue
		}
		n, ok := notificationFor(role, r)
		if !ok {
			continue
		}
		s.send(ctx, n)
		out = append(out, n)
	}
	return out
}

// Recent returns the retained notifications, newest first.
func (s *NotificationService) Recent() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, len(s.recent))
	for i, n := range s.recent {
		out[len(s.recent)-1-i] = n
	}
	return out
}

// Clear drops retained notifications.
func (s *NotificationService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = nil
}

func notificationFor(role domain.Role, r domain.Ride) (Notification, bool) {
	if role == domain.RolePorter {
		return porterNotificationFor(r)
	}

	n := Notification{RideID: r.ID, CreatedAt: time.Now()}

	switch r.Status {
	case domain.RideStatusAssigned:
		n.Type = NotificationPorterAssigned
		n.Title = "Porter Assigned"
		if r.PorterName != "" {
			n.Message = fmt.Sprintf("%s has been assigned to carry your luggage from %s", r.PorterName, r.PickupLocation)
		} else {
			n.Message = fmt.Sprintf("A porter has been assigned to your request from %s", r.PickupLocation)
		}
	case domain.RideStatusInProgress:
		n.Type = NotificationRideStarted
		n.Title = "On The Way"
		n.Message = fmt.Sprintf("Your ride to %s is in progress", r.Destination)
	case domain.RideStatusCompleted:
		n.Type = NotificationRideCompleted
		n.Title = "Ride Completed"
		n.Message = fmt.Sprintf("Your ride to %s has been completed", r.Destination)
	default:
		return Notification{}, false
	}
	return n, true
}

// porterNotificationFor words a status change for the porter carrying the ride.
func porterNotificationFor(r domain.Ride) (Notification, bool) {
	n := Notification{RideID: r.ID, CreatedAt: time.Now()}

	switch r.Status {
	case domain.RideStatusAssigned:
		n.Type = NotificationPorterAssigned
		n.Title = "New Assignment"
		n.Message = fmt.Sprintf("You have been assigned to carry luggage from %s to %s", r.PickupLocation, r.Destination)
	case domain.RideStatusInProgress:
		n.Type = NotificationRideStarted
		n.Title = "Ride Started"
		n.Message = fmt.Sprintf("Ride to %s is in progress", r.Destination)
	case domain.RideStatusCompleted:
		n.Type = NotificationRideCompleted
		n.Title = "Ride Completed"
		n.Message = fmt.Sprintf("Ride to %s has been completed", r.Destination)
	default:
		return Notification{}, false
	}
	return n, true
}

func (s *NotificationService) send(ctx context.Context, notification Notification) {
	log.Printf("[NOTIFICATION] Type=%s, Ride=%s, Title=%s, Message=%s",
		notification.Type, notification.RideID, notification.Title, notification.Message)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, notification)
	if len(s.recent) > s.limit {
		s.recent = s.recent[len(s.recent)-s.limit:]
	}
}
