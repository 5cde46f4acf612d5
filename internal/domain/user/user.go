package user

import (
	"context"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
)

// ErrNotFound is returned when no user matches the given login id.
var ErrNotFound = apperr.New(apperr.ErrNotFound, "user not found")

// User is an account that places orders and owns points and coupons.
type User struct {
	ID      int64
	LoginID string
	Email   string
}

// Finder resolves the caller's login id into a user.
type Finder interface {
	FindByLoginID(ctx context.Context, loginID string) (*User, error)
}

// Repository adds account creation. Creating a user also opens a point
// balance at zero.
type Repository interface {
	Finder
	Create(ctx context.Context, u *User) error
}
