package domain

// Role determines which ride actions a user may perform.
type Role string

const (
	RoleCustomer Role = "customer"
	RolePorter   Role = "porter"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RolePorter
}

// User represents the authenticated party as returned by the backend.
type User struct {
	ID          string
	Name        string
	Email       string
	Phone       string
	Role        Role
	IsAvailable bool
}

// Profile is the registration payload for a new account.
type Profile struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     Role
}
