package ports

import (
	"context"

	"github.com/google/uuid"
)

// UserInfo is the minimal user data the leads domain needs to address an owner.
type UserInfo struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
}

// UserProvider resolves owners for notices. The directory is maintained by the
// identity system; the leads domain only reads it.
type UserProvider interface {
	// GetUserByID returns basic user info. Returns error if user not found.
	GetUserByID(ctx context.Context, userID uuid.UUID) (UserInfo, error)
}

// UserExistenceChecker verifies reassignment targets without exposing user data.
type UserExistenceChecker interface {
	// UserExists returns true if a user with the given ID exists.
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
}
