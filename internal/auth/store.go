package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the credential core.
// Implementations own all concurrency control: every operation must be
// atomic with respect to concurrent callers, so two simultaneous
// registrations with the same name yield exactly one success and one
// ErrConflict.
type Store interface {
	Clients(ctx context.Context) ClientStore
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Revocations(ctx context.Context) RevocationStore
}

// ClientStore manages tenants.
type ClientStore interface {
	// Create persists a client, assigning an ID when absent. Returns
	// ErrConflict if the name is already taken by any client.
	Create(ctx context.Context, c *Client) error
	Find(ctx context.Context, id string) (*Client, error)
	FindByName(ctx context.Context, name string) (*Client, error)
}

// UserStore manages end-subjects.
type UserStore interface {
	// Create persists a user. Returns ErrConflict if the username is
	// already taken within the owning client's scope.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, clientID, username string) (*User, error)
	// SetRoles replaces the user's role set. Returns ErrNotFound if the
	// user is absent.
	SetRoles(ctx context.Context, userID string, roleIDs []string) error
}

// RoleStore manages permission groupings.
type RoleStore interface {
	// Create persists a role. Returns ErrConflict if the name is already
	// taken within the owning client's scope.
	Create(ctx context.Context, r *Role) error
	FindByName(ctx context.Context, clientID, name string) (*Role, error)
	// FindByIDs resolves the given role IDs. Returns ErrNotFound if any of
	// them is absent.
	FindByIDs(ctx context.Context, ids []string) ([]*Role, error)
}

// RevocationStore manages refresh-token revocation markers.
type RevocationStore interface {
	// Revoke inserts a revocation record for the nonce. The returned bool
	// is true only for the caller that created the record; concurrent
	// refreshes of the same nonce resolve at this insert, exactly one
	// observing true. Re-revoking an already revoked nonce is not an error.
	Revoke(ctx context.Context, nonce string, at time.Time) (bool, error)
	IsRevoked(ctx context.Context, nonce string) (bool, error)
}
