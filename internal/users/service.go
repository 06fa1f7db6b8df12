package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shoeshop/shoeshop/internal/platform/httpx"
	"github.com/shoeshop/shoeshop/internal/roles"
	"github.com/shoeshop/shoeshop/internal/shared"
)

// DefaultBootstrapUserID is the only account allowed to claim the first store owner seat.
const DefaultBootstrapUserID int64 = 1

// Store holds the operations that may run inside a transaction.
type Store interface {
	FindByIDs(ctx context.Context, ids []int64) ([]User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	SetRoleFlag(ctx context.Context, id int64, role roles.Descriptor, value bool) error
	StoreOwnerExists(ctx context.Context) (bool, error)
	// CreateStoreOwnerRecord reports false when the user already had a record.
	CreateStoreOwnerRecord(ctx context.Context, userID int64) (bool, error)
	DeleteStoreOwnerRecord(ctx context.Context, userID int64) error
}

// Repository defines data access methods for users.
type Repository interface {
	Store
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
	ListStaff(ctx context.Context, filter StaffFilter) ([]User, int, error)
	ListUsers(ctx context.Context, excludeID int64, limit, offset int) ([]User, int, error)
	UpdateProfile(ctx context.Context, id int64, update ProfileUpdate) (User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier receives committed role changes.
type Notifier interface {
	NotifyRoleChange(ctx context.Context, change RoleChange) error
}

// MetricsObserver counts batch outcomes.
type MetricsObserver interface {
	ObserveRoleBatch(action, role, outcome string, n int)
}

// ServiceConfig holds optional collaborators of Service.
type ServiceConfig struct {
	BootstrapUserID int64
	Logger          *slog.Logger
	Audit           AuditRecorder
	Notifier        Notifier
	Metrics         MetricsObserver
}

// Service handles role assignment, dismissal and the staff directory.
type Service struct {
	repo      Repository
	registry  *roles.Registry
	validate  *validator.Validate
	bootstrap int64
	logger    *slog.Logger
	audit     AuditRecorder
	notifier  Notifier
	metrics   MetricsObserver
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, registry *roles.Registry, cfg ServiceConfig) *Service {
	bootstrap := cfg.BootstrapUserID
	if bootstrap <= 0 {
		bootstrap = DefaultBootstrapUserID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		registry:  registry,
		validate:  validator.New(),
		bootstrap: bootstrap,
		logger:    logger,
		audit:     cfg.Audit,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		now:       time.Now,
	}
}

// Registry exposes the role table the service was built with.
func (s *Service) Registry() *roles.Registry {
	return s.registry
}

// Assign grants role to every target in tokens on behalf of actorID.
//
// While no store owner is registered, assigning StoreOwner is the bootstrap path: the
// bootstrap user claims the role for itself and tokens are ignored.
func (s *Service) Assign(ctx context.Context, role roles.Role, actorID int64, tokens []string) (BatchResult, error) {
	desc, err := s.registry.Lookup(role)
	if err != nil {
		return BatchResult{}, err
	}
	if role == roles.StoreOwner {
		exists, err := s.repo.StoreOwnerExists(ctx)
		if err != nil {
			return BatchResult{}, fmt.Errorf("users: check store owners: %w", err)
		}
		if !exists {
			return s.bootstrapStoreOwner(ctx, actorID, desc)
		}
	}
	if len(tokens) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}

	batch := partitionTargets(tokens, actorID)
	result := BatchResult{Action: ActionAssign, RoleKey: desc.Key}
	if batch.selfReference {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot assign %s role to yourself.", desc.DisplayName))
	}
	result.Invalid = append(result.Invalid, batch.malformed...)

	if len(batch.candidates) > 0 {
		found, err := s.repo.FindByIDs(ctx, batch.candidates)
		if err != nil {
			return BatchResult{}, fmt.Errorf("users: fetch targets: %w", err)
		}
		byID := indexUsers(found)
		for _, id := range batch.candidates {
			user, ok := byID[id]
			if !ok {
				result.NotFound = append(result.NotFound, strconv.FormatInt(id, 10))
				continue
			}
			if user.Flags.Has(role) {
				result.Errors = append(result.Errors, fmt.Sprintf("User %s is already %s.", user.Username, article(desc.DisplayName)))
				result.Invalid = append(result.Invalid, strconv.FormatInt(id, 10))
				continue
			}
			if err := s.grant(ctx, user.ID, desc); err != nil {
				s.logger.Error("assign role", slog.Int64("user_id", user.ID), slog.String("role", desc.Key), slog.Any("error", err))
				result.Errors = append(result.Errors, fmt.Sprintf("Could not assign %s role to user %s.", desc.DisplayName, user.Username))
				continue
			}
			user.Flags.Set(role, true)
			result.Affected = append(result.Affected, user.Username)
			s.afterChange(ctx, RoleChange{Action: ActionAssign, ActorID: actorID, UserID: user.ID, Username: user.Username, Email: user.Email, Role: desc, At: s.now()})
		}
	}

	result.Message = assignedMessage(result.Affected, desc.DisplayName)
	result.NotFoundDetail = notFoundMessage(result.NotFound)
	result.InvalidDetail = invalidMessage(result.Invalid)
	s.observe(result)
	return result, nil
}

// grant sets the role flag and, for store owners, the owner record in one transaction.
func (s *Service) grant(ctx context.Context, userID int64, desc roles.Descriptor) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, st Store) error {
		if err := st.SetRoleFlag(ctx, userID, desc, true); err != nil {
			return err
		}
		if desc.Role == roles.StoreOwner {
			if _, err := st.CreateStoreOwnerRecord(ctx, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) bootstrapStoreOwner(ctx context.Context, actorID int64, desc roles.Descriptor) (BatchResult, error) {
	if actorID != s.bootstrap {
		s.logger.Warn("store owner bootstrap rejected", slog.Int64("actor_id", actorID))
		return BatchResult{}, ErrForbidden
	}
	var actor User
	err := s.repo.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		actor, err = st.FindByID(ctx, actorID)
		if err != nil {
			return err
		}
		if _, err := st.CreateStoreOwnerRecord(ctx, actorID); err != nil {
			return err
		}
		return st.SetRoleFlag(ctx, actorID, desc, true)
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("users: bootstrap store owner: %w", err)
	}
	s.logger.Info("first store owner registered", slog.Int64("user_id", actorID))
	s.afterChange(ctx, RoleChange{Action: ActionAssign, ActorID: actorID, UserID: actorID, Username: actor.Username, Email: actor.Email, Role: desc, Bootstrap: true, At: s.now()})
	result := BatchResult{
		Action:    ActionAssign,
		RoleKey:   desc.Key,
		Bootstrap: true,
		Affected:  []string{actor.Username},
		Message:   "You have been assigned as the first store owner.",
	}
	s.observe(result)
	return result, nil
}

// Dismiss clears the current role of every target in tokens. The role is resolved
// per user by precedence; malformed tokens are reported as not found.
func (s *Service) Dismiss(ctx context.Context, actorID int64, tokens []string) (BatchResult, error) {
	if len(tokens) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	batch := partitionTargets(tokens, actorID)
	result := BatchResult{Action: ActionDismiss}
	if batch.selfReference {
		result.Errors = append(result.Errors, "You cannot dismiss yourself.")
	}
	result.NotFound = append(result.NotFound, batch.malformed...)

	var displays []string
	if len(batch.candidates) > 0 {
		found, err := s.repo.FindByIDs(ctx, batch.candidates)
		if err != nil {
			return BatchResult{}, fmt.Errorf("users: fetch targets: %w", err)
		}
		byID := indexUsers(found)
		for _, id := range batch.candidates {
			user, ok := byID[id]
			if !ok {
				result.NotFound = append(result.NotFound, strconv.FormatInt(id, 10))
				continue
			}
			role := user.Flags.Primary()
			if role == roles.None {
				result.NoRole = append(result.NoRole, strconv.FormatInt(id, 10))
				continue
			}
			desc, err := s.registry.Lookup(role)
			if err != nil {
				return BatchResult{}, err
			}
			if err := s.revoke(ctx, user.ID, desc); err != nil {
				s.logger.Error("dismiss role", slog.Int64("user_id", user.ID), slog.String("role", desc.Key), slog.Any("error", err))
				result.Errors = append(result.Errors, fmt.Sprintf("Could not dismiss user %s.", user.Username))
				continue
			}
			user.Flags.Set(role, false)
			result.Affected = append(result.Affected, user.Username)
			displays = append(displays, desc.DisplayName)
			s.afterChange(ctx, RoleChange{Action: ActionDismiss, ActorID: actorID, UserID: user.ID, Username: user.Username, Email: user.Email, Role: desc, At: s.now()})
		}
	}

	result.Message = dismissedMessage(result.Affected, displays)
	result.NotFoundDetail = notFoundMessage(result.NotFound)
	result.NoRoleDetail = noRoleMessage(result.NoRole)
	s.observe(result)
	return result, nil
}

// revoke removes the owner record of store owners and clears the flag in one transaction.
func (s *Service) revoke(ctx context.Context, userID int64, desc roles.Descriptor) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, st Store) error {
		if desc.Role == roles.StoreOwner {
			if err := st.DeleteStoreOwnerRecord(ctx, userID); err != nil {
				return err
			}
		}
		return st.SetRoleFlag(ctx, userID, desc, false)
	})
}

// ListStaff returns one page of users holding any role, or the role named by q.RoleKey.
func (s *Service) ListStaff(ctx context.Context, q StaffQuery) (Page[StaffSummary], error) {
	filter := StaffFilter{Role: roles.None}
	if key := strings.TrimSpace(q.RoleKey); key != "" {
		desc, err := s.registry.Describe(key)
		if err != nil {
			return Page[StaffSummary]{}, err
		}
		filter.Role = desc.Role
	}
	pageSize := shared.ClampPageSize(q.PageSize)
	if requested := shared.NewPagination(q.Page, pageSize, 0); requested.Addressable() {
		filter.Limit = pageSize
		filter.Offset = requested.Offset()
	}

	users, total, err := s.repo.ListStaff(ctx, filter)
	if err != nil {
		return Page[StaffSummary]{}, fmt.Errorf("users: list staff: %w", err)
	}
	page := Page[StaffSummary]{Pagination: shared.NewPagination(q.Page, pageSize, total), Results: []StaffSummary{}}
	if !page.InRange() {
		return page, nil
	}
	for _, u := range users {
		page.Results = append(page.Results, StaffSummary{
			ID:       u.ID,
			Username: u.Username,
			FullName: u.FullName(),
			Role:     s.registry.Key(u.Flags.Primary()),
		})
	}
	return page, nil
}

// ListUsers returns one page of accounts other than the actor.
func (s *Service) ListUsers(ctx context.Context, actorID int64, page, pageSize int) (Page[User], error) {
	pageSize = shared.ClampPageSize(pageSize)
	var limit, offset int
	if requested := shared.NewPagination(page, pageSize, 0); requested.Addressable() {
		limit = pageSize
		offset = requested.Offset()
	}
	users, total, err := s.repo.ListUsers(ctx, actorID, limit, offset)
	if err != nil {
		return Page[User]{}, fmt.Errorf("users: list: %w", err)
	}
	out := Page[User]{Pagination: shared.NewPagination(page, pageSize, total), Results: []User{}}
	if out.InRange() {
		out.Results = append(out.Results, users...)
	}
	return out, nil
}

// GetUser fetches a single account.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// UpdateProfile applies a self-service profile change. Role flags are not editable here.
func (s *Service) UpdateProfile(ctx context.Context, actorID, id int64, update ProfileUpdate) (User, error) {
	if actorID != id {
		return User{}, ErrNotSelf
	}
	if update.Empty() {
		return User{}, fmt.Errorf("%w: %v", httpx.ErrValidation, ErrNoChanges)
	}
	if err := s.validate.Struct(update); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fe.Field())
			}
			return User{}, fmt.Errorf("%w: invalid fields: %s", httpx.ErrValidation, strings.Join(fields, ", "))
		}
		return User{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	user, err := s.repo.UpdateProfile(ctx, id, update)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, shared.AuditLog{ActorID: actorID, Action: shared.AuditActionProfileUpdated, Entity: shared.AuditEntityUser, EntityID: strconv.FormatInt(id, 10)})
	return user, nil
}

// DeleteUser removes an account. Its store owner record goes with it.
func (s *Service) DeleteUser(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.record(ctx, shared.AuditLog{ActorID: actorID, Action: shared.AuditActionUserDeleted, Entity: shared.AuditEntityUser, EntityID: strconv.FormatInt(id, 10)})
	return nil
}

// RoleFlags returns the role flags of a user.
func (s *Service) RoleFlags(ctx context.Context, id int64) (roles.Flags, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return roles.Flags{}, err
	}
	return user.Flags, nil
}

// StoreOwnerExists reports whether any store owner record is registered.
func (s *Service) StoreOwnerExists(ctx context.Context) (bool, error) {
	return s.repo.StoreOwnerExists(ctx)
}

func (s *Service) afterChange(ctx context.Context, change RoleChange) {
	action := shared.AuditActionRoleAssigned
	switch {
	case change.Bootstrap:
		action = shared.AuditActionOwnerBootstrap
	case change.Action == ActionDismiss:
		action = shared.AuditActionRoleDismissed
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  change.ActorID,
		Action:   action,
		Entity:   shared.AuditEntityUser,
		EntityID: strconv.FormatInt(change.UserID, 10),
		Meta:     map[string]any{"role": change.Role.Key},
		At:       change.At,
	})
	if s.notifier != nil {
		if err := s.notifier.NotifyRoleChange(ctx, change); err != nil {
			s.logger.Warn("notify role change", slog.Int64("user_id", change.UserID), slog.Any("error", err))
		}
	}
}

func (s *Service) record(ctx context.Context, entry shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", entry.Action), slog.Any("error", err))
	}
}

func (s *Service) observe(r BatchResult) {
	if s.metrics == nil {
		return
	}
	role := r.RoleKey
	if role == "" {
		role = "any"
	}
	action := string(r.Action)
	s.metrics.ObserveRoleBatch(action, role, "applied", len(r.Affected))
	s.metrics.ObserveRoleBatch(action, role, "not_found", len(r.NotFound))
	s.metrics.ObserveRoleBatch(action, role, "invalid", len(r.Invalid))
	s.metrics.ObserveRoleBatch(action, role, "no_role", len(r.NoRole))
}

func indexUsers(list []User) map[int64]*User {
	out := make(map[int64]*User, len(list))
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out
}
