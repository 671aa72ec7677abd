// Package memory provides a mutex-guarded in-memory implementation of the
// auth store contract. It backs the test suite and dev mode when no
// PostgreSQL DSN is configured, and preserves the contract's atomicity:
// conflicting registrations and racing revocation inserts resolve to exactly
// one winner.
package memory

import (
	"context"
	"sync"
	"time"

	"keygate.io/internal/auth"
	"keygate.io/internal/ids"
)

var _ auth.Store = (*Store)(nil)

// Store keeps all entities in process memory.
type Store struct {
	mu sync.Mutex

	clients       map[string]*auth.Client
	clientsByName map[string]string

	users      map[string]*auth.User
	usersByKey map[string]string

	roles      map[string]*auth.Role
	rolesByKey map[string]string

	revoked map[string]time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		clients:       make(map[string]*auth.Client),
		clientsByName: make(map[string]string),
		users:         make(map[string]*auth.User),
		usersByKey:    make(map[string]string),
		roles:         make(map[string]*auth.Role),
		rolesByKey:    make(map[string]string),
		revoked:       make(map[string]time.Time),
	}
}

func (s *Store) Clients(context.Context) auth.ClientStore         { return (*clientStore)(s) }
func (s *Store) Users(context.Context) auth.UserStore             { return (*userStore)(s) }
func (s *Store) Roles(context.Context) auth.RoleStore             { return (*roleStore)(s) }
func (s *Store) Revocations(context.Context) auth.RevocationStore { return (*revocationStore)(s) }

func scopedKey(scope, name string) string { return scope + "\x00" + name }

// Client store --------------------------------------------------------------

type clientStore Store

func (s *clientStore) Create(_ context.Context, c *auth.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clientsByName[c.Name]; exists {
		return auth.ErrConflict
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	stored := *c
	s.clients[c.ID] = &stored
	s.clientsByName[c.Name] = c.ID
	return nil
}

func (s *clientStore) Find(_ context.Context, id string) (*auth.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *clientStore) FindByName(_ context.Context, name string) (*auth.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.clientsByName[name]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *s.clients[id]
	return &out, nil
}

// User store -----------------------------------------------------------------

type userStore Store

func (s *userStore) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopedKey(u.ClientID, u.Username)
	if _, exists := s.usersByKey[key]; exists {
		return auth.ErrConflict
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	stored := *u
	stored.RoleIDs = append([]string(nil), u.RoleIDs...)
	s.users[u.ID] = &stored
	s.usersByKey[key] = u.ID
	return nil
}

func (s *userStore) Find(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *u
	out.RoleIDs = append([]string(nil), u.RoleIDs...)
	return &out, nil
}

func (s *userStore) FindByUsername(_ context.Context, clientID, username string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByKey[scopedKey(clientID, username)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	u := s.users[id]
	out := *u
	out.RoleIDs = append([]string(nil), u.RoleIDs...)
	return &out, nil
}

func (s *userStore) SetRoles(_ context.Context, userID string, roleIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.RoleIDs = append([]string(nil), roleIDs...)
	return nil
}

// Role store -----------------------------------------------------------------

type roleStore Store

func (s *roleStore) Create(_ context.Context, r *auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopedKey(r.ClientID, r.Name)
	if _, exists := s.rolesByKey[key]; exists {
		return auth.ErrConflict
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	stored := *r
	stored.Permissions = append([]string(nil), r.Permissions...)
	s.roles[r.ID] = &stored
	s.rolesByKey[key] = r.ID
	return nil
}

func (s *roleStore) FindByName(_ context.Context, clientID, name string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.rolesByKey[scopedKey(clientID, name)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	r := s.roles[id]
	out := *r
	out.Permissions = append([]string(nil), r.Permissions...)
	return &out, nil
}

func (s *roleStore) FindByIDs(_ context.Context, roleIDs []string) ([]*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*auth.Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		r, ok := s.roles[id]
		if !ok {
			return nil, auth.ErrNotFound
		}
		out := *r
		out.Permissions = append([]string(nil), r.Permissions...)
		result = append(result, &out)
	}
	return result, nil
}

// Revocation store ------------------------------------------------------------

type revocationStore Store

func (s *revocationStore) Revoke(_ context.Context, nonce string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.revoked[nonce]; exists {
		return false, nil
	}
	s.revoked[nonce] = at
	return true, nil
}

func (s *revocationStore) IsRevoked(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.revoked[nonce]
	return exists, nil
}
