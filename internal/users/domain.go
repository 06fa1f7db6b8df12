package users

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shoeshop/shoeshop/internal/platform/httpx"
	"github.com/shoeshop/shoeshop/internal/roles"
	"github.com/shoeshop/shoeshop/internal/shared"
)

// Domain errors. Request-shape errors wrap httpx sentinels so handlers can map them.
var (
	ErrEmptyBatch        = fmt.Errorf("%w: no user IDs provided", httpx.ErrValidation)
	ErrForbidden         = fmt.Errorf("%w: only the first registered user can become the initial store owner", httpx.ErrForbidden)
	ErrNotSelf           = fmt.Errorf("%w: you can only modify your own profile", httpx.ErrForbidden)
	ErrNotFound          = fmt.Errorf("%w: user", httpx.ErrNotFound)
	ErrDuplicateUsername = fmt.Errorf("%w: username already taken", httpx.ErrDuplicate)
	ErrNoChanges         = errors.New("users: nothing to update")
)

// User represents a storefront account together with its role flags.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PhoneNumber  string `json:"phone_number"`
	Sex          string `json:"sex"`
	PasswordHash string `json:"-"`
	IsActive     bool   `json:"is_active"`
	roles.Flags
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// StoreOwnerRecord marks the formal registration of a store owner.
type StoreOwnerRecord struct {
	ID        int64
	UserID    int64
	CreatedAt time.Time
}

// StaffSummary is the directory projection of a staff member.
type StaffSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// StaffQuery filters the staff directory. An empty RoleKey lists every staff member.
type StaffQuery struct {
	RoleKey  string
	Page     int
	PageSize int
}

// StaffFilter is the storage level staff filter; roles.None means any role.
type StaffFilter struct {
	Role   roles.Role
	Limit  int
	Offset int
}

// Page is one page of a listing.
type Page[T any] struct {
	shared.Pagination
	Results []T `json:"results"`
}

// ProfileUpdate carries the self-service profile fields. Nil fields are untouched.
type ProfileUpdate struct {
	Username    *string `json:"username" validate:"omitempty,min=1,max=150"`
	Email       *string `json:"email" validate:"omitempty,email"`
	FirstName   *string `json:"first_name" validate:"omitempty,max=150"`
	LastName    *string `json:"last_name" validate:"omitempty,max=150"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,e164"`
	Sex         *string `json:"sex" validate:"omitempty,oneof=MALE FEMALE"`
}

// Empty reports whether no field is set.
func (p ProfileUpdate) Empty() bool {
	return p.Username == nil && p.Email == nil && p.FirstName == nil &&
		p.LastName == nil && p.PhoneNumber == nil && p.Sex == nil
}

// RoleChange describes one committed role mutation.
type RoleChange struct {
	Action   Action
	ActorID  int64
	UserID   int64
	Username string
	Email    string
	Role     roles.Descriptor
	// Bootstrap marks the first store owner claiming the seat.
	Bootstrap bool
	At        time.Time
}
