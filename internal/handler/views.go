package handler

import (
	"time"

	"porter/internal/domain"
	"porter/internal/service"
)

// UserResponse is the view of a user.
type UserResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	IsAvailable bool   `json:"is_available,omitempty"`
}

// RideResponse is the view of a ride, including the actions the current
// user may take on it.
type RideResponse struct {
	ID             string   `json:"id"`
	PickupLocation string   `json:"pickup_location"`
	Destination    string   `json:"destination"`
	Status         string   `json:"status"`
	PorterName     string   `json:"porter_name,omitempty"`
	PorterPhone    string   `json:"porter_phone,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
	CompletedAt    string   `json:"completed_at,omitempty"`
	Actions        []string `json:"actions"`
}

// NotificationResponse is the view of an observed status change.
type NotificationResponse struct {
	Type      string `json:"type"`
	RideID    string `json:"ride_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// MainViewResponse is the protected main view.
type MainViewResponse struct {
	User          UserResponse           `json:"user"`
	Rides         []RideResponse         `json:"rides"`
	Notifications []NotificationResponse `json:"notifications"`
	ExpiresAt     string                 `json:"session_expires_at,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

func toUserResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Phone:       u.Phone,
		Role:        string(u.Role),
		IsAvailable: u.IsAvailable,
	}
}

func toRideResponse(r domain.Ride, actions []domain.RideStatus) RideResponse {
	resp := RideResponse{
		ID:             r.ID,
		PickupLocation: r.PickupLocation,
		Destination:    r.Destination,
		Status:         string(r.Status),
		PorterName:     r.PorterName,
		PorterPhone:    r.PorterPhone,
		CreatedAt:      formatTime(r.CreatedAt),
		CompletedAt:    formatTime(r.CompletedAt),
		Actions:        make([]string, 0, len(actions)),
	}
	for _, a := range actions {
		resp.Actions = append(resp.Actions, string(a))
	}
	return resp
}

func toNotificationResponses(ns []service.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, NotificationResponse{
			Type:      string(n.Type),
			RideID:    n.RideID,
			Title:     n.Title,
			Message:   n.Message,
			CreatedAt: formatTime(n.CreatedAt),
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
