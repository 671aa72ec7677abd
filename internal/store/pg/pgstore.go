// Package pg implements the auth store contract on PostgreSQL. Uniqueness
// and revocation atomicity are delegated to the database: unique indexes
// resolve racing registrations, and the revocation insert's on-conflict
// clause resolves racing refresh rotations.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"keygate.io/internal/auth"
	"keygate.io/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ auth.Store = (*Store)(nil)

// Store implements auth.Store over a PostgreSQL connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection (used by tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Clients(context.Context) auth.ClientStore         { return &clientStore{db: s.db} }
func (s *Store) Users(context.Context) auth.UserStore             { return &userStore{db: s.db} }
func (s *Store) Roles(context.Context) auth.RoleStore             { return &roleStore{db: s.db} }
func (s *Store) Revocations(context.Context) auth.RevocationStore { return &revocationStore{db: s.db} }

// Client store --------------------------------------------------------------

type clientStore struct{ db *sql.DB }

func (s *clientStore) Create(ctx context.Context, c *auth.Client) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into clients (id, name, secret_hash)
		values ($1, $2, $3)
		returning created_at
	`, c.ID, c.Name, c.SecretHash)
	if err := row.Scan(&c.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *clientStore) Find(ctx context.Context, id string) (*auth.Client, error) {
	var c auth.Client
	err := s.db.QueryRowContext(ctx, `
		select id, name, secret_hash, created_at
		from clients
		where id = $1
	`, id).Scan(&c.ID, &c.Name, &c.SecretHash, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *clientStore) FindByName(ctx context.Context, name string) (*auth.Client, error) {
	var c auth.Client
	err := s.db.QueryRowContext(ctx, `
		select id, name, secret_hash, created_at
		from clients
		where name = $1
	`, name).Scan(&c.ID, &c.Name, &c.SecretHash, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// User store -----------------------------------------------------------------

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, client_id, username, secret_hash)
		values ($1, $2, $3, $4)
		returning created_at
	`, u.ID, u.ClientID, u.Username, u.SecretHash)
	if err := row.Scan(&u.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx, `
		select id, client_id, username, secret_hash, created_at
		from users
		where id = $1
	`, id).Scan(&u.ID, &u.ClientID, &u.Username, &u.SecretHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.RoleIDs, err = s.roleIDs(ctx, u.ID); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userStore) FindByUsername(ctx context.Context, clientID, username string) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx, `
		select id, client_id, username, secret_hash, created_at
		from users
		where client_id = $1 and username = $2
	`, clientID, username).Scan(&u.ID, &u.ClientID, &u.Username, &u.SecretHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.RoleIDs, err = s.roleIDs(ctx, u.ID); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userStore) roleIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role_id from user_roles where user_id = $1 order by role_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

func (s *userStore) SetRoles(ctx context.Context, userID string, roleIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists string
	err = tx.QueryRowContext(ctx, `select id from users where id = $1 for update`, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id) values ($1, $2)
		`, userID, roleID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

// Role store -----------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, r *auth.Role) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, client_id, name, permissions)
		values ($1, $2, $3, $4)
		returning created_at
	`, r.ID, r.ClientID, r.Name, perms)
	if err := row.Scan(&r.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *roleStore) FindByName(ctx context.Context, clientID, name string) (*auth.Role, error) {
	return s.scanRole(s.db.QueryRowContext(ctx, `
		select id, client_id, name, permissions, created_at
		from roles
		where client_id = $1 and name = $2
	`, clientID, name))
}

func (s *roleStore) FindByIDs(ctx context.Context, roleIDs []string) ([]*auth.Role, error) {
	result := make([]*auth.Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		role, err := s.scanRole(s.db.QueryRowContext(ctx, `
			select id, client_id, name, permissions, created_at
			from roles
			where id = $1
		`, id))
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, nil
}

func (s *roleStore) scanRole(row *sql.Row) (*auth.Role, error) {
	var (
		r        auth.Role
		rawPerms []byte
	)
	err := row.Scan(&r.ID, &r.ClientID, &r.Name, &rawPerms, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(rawPerms) > 0 {
		if err := json.Unmarshal(rawPerms, &r.Permissions); err != nil {
			return nil, &auth.IntegrityError{Op: "decode role permissions", Err: err}
		}
	}
	return &r, nil
}

// Revocation store ------------------------------------------------------------

type revocationStore struct{ db *sql.DB }

func (s *revocationStore) Revoke(ctx context.Context, nonce string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens (nonce, revoked_at)
		values ($1, $2)
		on conflict (nonce) do nothing
	`, nonce, at)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *revocationStore) IsRevoked(ctx context.Context, nonce string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from revoked_tokens where nonce = $1)
	`, nonce).Scan(&revoked)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
