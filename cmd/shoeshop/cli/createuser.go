// Package cli holds the operational subcommands of the shoeshop binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shoeshop/shoeshop/internal/auth"
	"github.com/shoeshop/shoeshop/internal/platform/httpx"
)

// AccountCreator stores new accounts.
type AccountCreator interface {
	CreateAccount(ctx context.Context, account auth.NewAccount) (int64, error)
}

// CreateUserOptions defines the flags of the createuser command.
type CreateUserOptions struct {
	Account auth.NewAccount
	Stdout  io.Writer
	Stderr  io.Writer
}

// CreateUserCommand creates one account and prints its ID. The first account created
// on a fresh database gets ID 1 and may then claim the store owner seat.
func CreateUserCommand(ctx context.Context, creator AccountCreator, opts CreateUserOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	id, err := creator.CreateAccount(ctx, opts.Account)
	switch {
	case err == nil:
	case errors.Is(err, httpx.ErrValidation):
		_, _ = fmt.Fprintf(opts.Stderr, "createuser: %v\n", err)
		return 2
	case errors.Is(err, httpx.ErrDuplicate):
		_, _ = fmt.Fprintf(opts.Stderr, "createuser: username %q already exists\n", opts.Account.Username)
		return 1
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "createuser: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "created user %s with id %d\n", opts.Account.Username, id)
	return 0
}
