// Package userstest provides an in-memory users.Repository for tests.
package userstest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shoeshop/shoeshop/internal/roles"
	"github.com/shoeshop/shoeshop/internal/users"
)

type state struct {
	users  map[int64]users.User
	owners map[int64]bool
}

func (s state) clone() state {
	out := state{users: make(map[int64]users.User, len(s.users)), owners: make(map[int64]bool, len(s.owners))}
	for id, u := range s.users {
		out.users[id] = u
	}
	for id, v := range s.owners {
		out.owners[id] = v
	}
	return out
}

// Memory is a mutex guarded repository. Transactions work on a copy that replaces
// the live state only when the callback succeeds.
type Memory struct {
	mu         sync.Mutex
	st         state
	nextID     int64
	roleErrors map[int64]error
}

var _ users.Repository = (*Memory)(nil)

// NewMemory returns an empty repository.
func NewMemory() *Memory {
	return &Memory{
		st:         state{users: map[int64]users.User{}, owners: map[int64]bool{}},
		nextID:     1,
		roleErrors: map[int64]error{},
	}
}

// Add stores u, assigning the next ID when u.ID is zero.
func (m *Memory) Add(u users.User) users.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.nextID
	}
	if u.ID >= m.nextID {
		m.nextID = u.ID + 1
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
		u.UpdatedAt = u.CreatedAt
	}
	u.IsActive = true
	m.st.users[u.ID] = u
	return u
}

// User returns the stored copy of a user.
func (m *Memory) User(id int64) (users.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.st.users[id]
	return u, ok
}

// HasOwnerRecord reports whether a store owner record exists for id.
func (m *Memory) HasOwnerRecord(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.owners[id]
}

// AddOwnerRecord registers id as a store owner without touching its flags.
func (m *Memory) AddOwnerRecord(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.owners[id] = true
}

// FailRoleWrites makes every role flag write for id return err.
func (m *Memory) FailRoleWrites(id int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleErrors[id] = err
}

// WithTx runs fn against a private copy and commits it when fn succeeds.
func (m *Memory) WithTx(ctx context.Context, fn func(context.Context, users.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &store{st: m.st.clone(), roleErrors: m.roleErrors}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.st = tx.st
	return nil
}

func (m *Memory) live() *store {
	return &store{st: m.st, roleErrors: m.roleErrors}
}

// FindByIDs implements users.Store.
func (m *Memory) FindByIDs(ctx context.Context, ids []int64) ([]users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().FindByIDs(ctx, ids)
}

// FindByID implements users.Store.
func (m *Memory) FindByID(ctx context.Context, id int64) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().FindByID(ctx, id)
}

// FindByUsername implements users.Store.
func (m *Memory) FindByUsername(ctx context.Context, username string) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().FindByUsername(ctx, username)
}

// SetRoleFlag implements users.Store.
func (m *Memory) SetRoleFlag(ctx context.Context, id int64, role roles.Descriptor, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().SetRoleFlag(ctx, id, role, value)
}

// StoreOwnerExists implements users.Store.
func (m *Memory) StoreOwnerExists(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().StoreOwnerExists(ctx)
}

// CreateStoreOwnerRecord implements users.Store.
func (m *Memory) CreateStoreOwnerRecord(ctx context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().CreateStoreOwnerRecord(ctx, userID)
}

// DeleteStoreOwnerRecord implements users.Store.
func (m *Memory) DeleteStoreOwnerRecord(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().DeleteStoreOwnerRecord(ctx, userID)
}

// ListStaff implements users.Repository.
func (m *Memory) ListStaff(ctx context.Context, filter users.StaffFilter) ([]users.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []users.User
	for _, u := range m.sorted() {
		if filter.Role == roles.None && u.Flags.Any() || filter.Role != roles.None && u.Flags.Has(filter.Role) {
			matched = append(matched, u)
		}
	}
	return window(matched, filter.Limit, filter.Offset), len(matched), nil
}

// ListUsers implements users.Repository.
func (m *Memory) ListUsers(ctx context.Context, excludeID int64, limit, offset int) ([]users.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []users.User
	for _, u := range m.sorted() {
		if u.ID != excludeID {
			matched = append(matched, u)
		}
	}
	return window(matched, limit, offset), len(matched), nil
}

// UpdateProfile implements users.Repository.
func (m *Memory) UpdateProfile(ctx context.Context, id int64, update users.ProfileUpdate) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.st.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	if update.Username != nil {
		name := strings.TrimSpace(*update.Username)
		for otherID, other := range m.st.users {
			if otherID != id && other.Username == name {
				return users.User{}, users.ErrDuplicateUsername
			}
		}
		u.Username = name
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&u.Email, update.Email)
	set(&u.FirstName, update.FirstName)
	set(&u.LastName, update.LastName)
	set(&u.PhoneNumber, update.PhoneNumber)
	set(&u.Sex, update.Sex)
	u.UpdatedAt = time.Now()
	m.st.users[id] = u
	return u, nil
}

// DeleteUser implements users.Repository.
func (m *Memory) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.users[id]; !ok {
		return users.ErrNotFound
	}
	delete(m.st.users, id)
	delete(m.st.owners, id)
	return nil
}

func (m *Memory) sorted() []users.User {
	out := make([]users.User, 0, len(m.st.users))
	for _, u := range m.st.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func window(list []users.User, limit, offset int) []users.User {
	if limit <= 0 || offset < 0 || offset >= len(list) {
		return nil
	}
	end := offset + limit
	if end > len(list) || end < offset {
		end = len(list)
	}
	return append([]users.User(nil), list[offset:end]...)
}

// store applies Store operations to one state value.
type store struct {
	st         state
	roleErrors map[int64]error
}

func (s *store) FindByIDs(ctx context.Context, ids []int64) ([]users.User, error) {
	var out []users.User
	seen := map[int64]bool{}
	for _, id := range ids {
		if u, ok := s.st.users[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *store) FindByID(ctx context.Context, id int64) (users.User, error) {
	u, ok := s.st.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (s *store) FindByUsername(ctx context.Context, username string) (users.User, error) {
	for _, u := range s.st.users {
		if u.Username == username {
			return u, nil
		}
	}
	return users.User{}, users.ErrNotFound
}

func (s *store) SetRoleFlag(ctx context.Context, id int64, role roles.Descriptor, value bool) error {
	if err := s.roleErrors[id]; err != nil {
		return err
	}
	u, ok := s.st.users[id]
	if !ok {
		return users.ErrNotFound
	}
	u.Flags.Set(role.Role, value)
	s.st.users[id] = u
	return nil
}

func (s *store) StoreOwnerExists(ctx context.Context) (bool, error) {
	return len(s.st.owners) > 0, nil
}

func (s *store) CreateStoreOwnerRecord(ctx context.Context, userID int64) (bool, error) {
	if _, ok := s.st.users[userID]; !ok {
		return false, users.ErrNotFound
	}
	if s.st.owners[userID] {
		return false, nil
	}
	s.st.owners[userID] = true
	return true, nil
}

func (s *store) DeleteStoreOwnerRecord(ctx context.Context, userID int64) error {
	delete(s.st.owners, userID)
	return nil
}
