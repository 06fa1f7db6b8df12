package rbac

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shoeshop/shoeshop/internal/roles"
	"github.com/shoeshop/shoeshop/internal/shared"
)

// Service derives capabilities from role flags.
type Service struct {
	source   GrantSource
	registry *roles.Registry
	owners   singleflight.Group
}

// NewService constructs a Service reading from source.
func NewService(source GrantSource, registry *roles.Registry) *Service {
	if registry == nil {
		registry = roles.NewRegistry()
	}
	return &Service{source: source, registry: registry}
}

// EffectivePermissions returns deduplicated capability names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	grants, err := s.Grants(ctx, userID)
	if err != nil {
		return nil, err
	}
	return grants.Capabilities, nil
}

// Grants loads the role flags of userID and the bootstrap state concurrently.
func (s *Service) Grants(ctx context.Context, userID int64) (Grants, error) {
	var (
		flags       roles.Flags
		ownerExists bool
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		flags, err = s.source.RoleFlags(ctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		ownerExists, err = s.storeOwnerExists(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Grants{}, err
	}
	return Grants{
		UserID:       userID,
		Role:         s.registry.Key(flags.Primary()),
		Capabilities: capabilities(flags, ownerExists),
	}, nil
}

// storeOwnerExists collapses concurrent checks into one query.
func (s *Service) storeOwnerExists(ctx context.Context) (bool, error) {
	ch := s.owners.DoChan("store_owner_exists", func() (interface{}, error) {
		return s.source.StoreOwnerExists(ctx)
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

func capabilities(flags roles.Flags, ownerExists bool) []string {
	caps := make([]string, 0, 3)
	if flags.StoreOwner {
		caps = append(caps, shared.CapStoreOwner)
	}
	if flags.StoreManager {
		caps = append(caps, shared.CapStoreManager)
	}
	if !ownerExists {
		caps = append(caps, shared.CapBootstrapStoreOwner)
	}
	sort.Strings(caps)
	return caps
}
