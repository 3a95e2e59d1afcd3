package domain

// Role is the caller role asserted by the identity provider.
type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Staff reports whether the role may scan and cancel tickets.
func (r Role) Staff() bool {
	return r == RoleSeller || r == RoleAdmin
}
