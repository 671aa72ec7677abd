package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"keygate.io/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestClientCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("insert into clients").
		WithArgs(sqlmock.AnyArg(), "acme", "hash").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Clients(ctx).Create(ctx, &auth.Client{Name: "acme", SecretHash: "hash"})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClientFindByNameNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select id, name, secret_hash, created_at").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "secret_hash", "created_at"}))

	_, err := store.Clients(ctx).FindByName(ctx, "ghost")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserFindLoadsRoles(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("select id, client_id, username, secret_hash, created_at").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "username", "secret_hash", "created_at"}).
			AddRow("u1", "c1", "alice", "hash", created))
	mock.ExpectQuery("select role_id from user_roles").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"role_id"}).AddRow("r1").AddRow("r2"))

	user, err := store.Users(ctx).Find(ctx, "u1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if user.Username != "alice" || user.ClientID != "c1" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if len(user.RoleIDs) != 2 || user.RoleIDs[0] != "r1" || user.RoleIDs[1] != "r2" {
		t.Fatalf("unexpected roles: %v", user.RoleIDs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetRolesUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("select id from users").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := store.Users(ctx).SetRoles(ctx, "missing", []string{"r1"})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetRolesReplacesAssignments(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("select id from users").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))
	mock.ExpectExec("delete from user_roles").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_roles").
		WithArgs("u1", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Users(ctx).SetRoles(ctx, "u1", []string{"r1"}); err != nil {
		t.Fatalf("SetRoles: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevokeReportsFirstWriter(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("insert into revoked_tokens").
		WithArgs("nonce-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into revoked_tokens").
		WithArgs("nonce-1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := store.Revocations(ctx).Revoke(ctx, "nonce-1", at)
	if err != nil || !created {
		t.Fatalf("first revoke: created=%v err=%v", created, err)
	}
	created, err = store.Revocations(ctx).Revoke(ctx, "nonce-1", at)
	if err != nil || created {
		t.Fatalf("second revoke: created=%v err=%v", created, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIsRevoked(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select exists").
		WithArgs("nonce-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	revoked, err := store.Revocations(ctx).IsRevoked(ctx, "nonce-1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("expected revoked")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleFindByName(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("select id, client_id, name, permissions, created_at").
		WithArgs("c1", "editor").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "name", "permissions", "created_at"}).
			AddRow("r1", "c1", "editor", []byte(`["docs.write"]`), created))

	role, err := store.Roles(ctx).FindByName(ctx, "c1", "editor")
	if err != nil {
		t.Fatalf("find role: %v", err)
	}
	if role.ID != "r1" || len(role.Permissions) != 1 || role.Permissions[0] != "docs.write" {
		t.Fatalf("unexpected role: %+v", role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleFindByNameNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select id, client_id, name, permissions, created_at").
		WithArgs("c1", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "name", "permissions", "created_at"}))

	_, err := store.Roles(ctx).FindByName(ctx, "c1", "ghost")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleCorruptPermissionsIsIntegrityError(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("select id, client_id, name, permissions, created_at").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "name", "permissions", "created_at"}).
			AddRow("r1", "c1", "editor", []byte("{not json"), created))

	_, err := store.Roles(ctx).FindByIDs(ctx, []string{"r1"})
	var integrity *auth.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
