package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func (r Role) rank() int {
	switch r {
	case RoleCustomer:
		return 1
	case RoleStaff:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

func (r Role) Valid() bool { return r.rank() > 0 }

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.rank() >= min.rank()
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UserFilter struct {
	Role  Role
	Query string
	PageRequest
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, f UserFilter) ([]User, int, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	SetRole(ctx context.Context, id uuid.UUID, role Role) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	CountActiveAdmins(ctx context.Context) (int, error)
}
