package authz

import (
	"errors"

	"teamboard/internal/models"
)

var (
	// ErrForbidden means the actor's role may not perform the operation at all.
	ErrForbidden = errors.New("forbidden")
	// ErrNotOwner means the actor is neither a manager nor the task's assignee.
	ErrNotOwner = errors.New("not authorized for this task")
)

func IsManager(role models.Role) bool {
	return role == models.RoleManager
}

// CanManage is the manager-only gate shared by create, delete and the admin reads.
func CanManage(actor models.Actor) error {
	if !IsManager(actor.Role) {
		return ErrForbidden
	}
	return nil
}
