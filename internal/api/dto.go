package api

import (
	"strings"
	"time"

	"porter/internal/domain"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// CreateRideRequest is the body of POST /rides/request.
type CreateRideRequest struct {
	PickupLocation string `json:"pickup_location"`
	Destination    string `json:"destination"`
}

// TokenResponse is returned by login and registration.
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type,omitempty"`
	User        UserResponse `json:"user"`
}

// UserResponse is the backend's user representation.
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	IsAvailable bool   `json:"is_available"`
}

// RideResponse is the backend's ride representation.
type RideResponse struct {
	ID             string  `json:"id"`
	CustomerID     string  `json:"customer_id,omitempty"`
	PickupLocation string  `json:"pickup_location"`
	Destination    string  `json:"destination"`
	PorterID       *string `json:"porter_id,omitempty"`
	PorterName     *string `json:"porter_name,omitempty"`
	PorterPhone    *string `json:"porter_phone,omitempty"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
	AssignedAt     *string `json:"assigned_at,omitempty"`
	CompletedAt    *string `json:"completed_at,omitempty"`
}

// AuthResult is a successful login or registration.
type AuthResult struct {
	Token string
	User  domain.User
}

func (u UserResponse) toDomain() domain.User {
	return domain.User{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Phone:       u.Phone,
		Role:        domain.Role(strings.ToLower(u.Role)),
		IsAvailable: u.IsAvailable,
	}
}

func (r RideResponse) toDomain() domain.Ride {
	return domain.Ride{
		ID:             r.ID,
		CustomerID:     r.CustomerID,
		PickupLocation: r.PickupLocation,
		Destination:    r.Destination,
		Status:         domain.NormalizeRideStatus(r.Status),
		PorterID:       deref(r.PorterID),
		PorterName:     deref(r.PorterName),
		PorterPhone:    deref(r.PorterPhone),
		CreatedAt:      parseTime(r.CreatedAt),
		AssignedAt:     parseTime(deref(r.AssignedAt)),
		CompletedAt:    parseTime(deref(r.CompletedAt)),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// timeLayouts covers RFC 3339 and the zone-less ISO form the backend emits.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTime parses a backend timestamp. Zone-less values are UTC.
// Unparseable or empty values yield the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
