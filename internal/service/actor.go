package service

import "github.com/classora/classroom-api/internal/models"

// Actor identifies the authenticated caller of a service operation. Services
// trust the identity and only check role or ownership.
type Actor struct {
	ID   uint
	Role string
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// IsStaff reports whether the actor is faculty or admin.
func (a Actor) IsStaff() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleFaculty
}

// IsStudent reports whether the actor holds the student role.
func (a Actor) IsStudent() bool {
	return a.Role == models.RoleStudent
}
