package table

// UserContext represents the authenticated user, set by auth middleware.
// Authorize predicates and row callbacks receive it; it may be nil for
// unauthenticated requests.
type UserContext struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole checks whether the user has a specific role.
func (u *UserContext) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks whether the user has the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.HasRole("admin")
}
