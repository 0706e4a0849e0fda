// Package access decides whether a view may be shown for a session.
package access

import "porter/internal/domain"

// Route paths known to the gate.
const (
	PathMain     = "/"
	PathLogin    = "/login"
	PathRegister = "/register"
)

// Decision is the outcome of a gate check.
type Decision struct {
	Admit      bool
	RedirectTo string
}

// Admit admits only sessions with a verified user; everything else is sent
// to the login view.
func Admit(session domain.Session) Decision {
	if session.User != nil {
		return Decision{Admit: true}
	}
	return Decision{RedirectTo: PathLogin}
}

// Public reports whether path is reachable without a session.
func Public(path string) bool {
	return path == PathLogin || path == PathRegister
}
