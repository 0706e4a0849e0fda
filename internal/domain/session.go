package domain

import "time"

// Session is a point-in-time view of the client's authentication state.
type Session struct {
	Token     string
	User      *User
	Resolving bool
	ExpiresAt time.Time // zero when the token carries no readable expiry
}

// Authenticated reports whether the session has a verified identity.
func (s Session) Authenticated() bool {
	return s.User != nil
}
