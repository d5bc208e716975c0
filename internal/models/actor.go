package models

import (
	"github.com/google/uuid"
)

// RoleAdmin grants access to every booking and to the admin endpoints
const RoleAdmin = "admin"

// Actor is the authenticated caller of a workflow operation
type Actor struct {
	UserID    uuid.UUID
	Email     string
	Roles     []string
	IPAddress string
	UserAgent string
}

// SystemActor is used by background jobs that act on behalf of the platform
var SystemActor = Actor{
	Email: "system",
	Roles: []string{RoleAdmin},
}

// HasRole reports whether the actor carries the given role
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor is an administrator
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// CanAccessBooking reports whether the actor owns the booking or is an admin
func (a Actor) CanAccessBooking(b *Booking) bool {
	if b == nil {
		return false
	}
	return a.IsAdmin() || (a.UserID != uuid.Nil && b.OwnerUserID == a.UserID)
}
