package rbac

import (
	"context"

	"github.com/shoeshop/shoeshop/internal/roles"
)

// GrantSource supplies the facts capabilities are derived from.
type GrantSource interface {
	RoleFlags(ctx context.Context, userID int64) (roles.Flags, error)
	StoreOwnerExists(ctx context.Context) (bool, error)
}

// Grants describes what an actor may do.
type Grants struct {
	UserID       int64    `json:"user_id"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities"`
}
