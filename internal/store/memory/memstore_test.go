package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"keygate.io/internal/auth"
)

func TestScopedUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Clients(ctx).Create(ctx, &auth.Client{Name: "acme", SecretHash: "h"}); err != nil {
		t.Fatalf("create client: %v", err)
	}
	if err := s.Clients(ctx).Create(ctx, &auth.Client{Name: "acme", SecretHash: "h"}); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("duplicate client name: expected ErrConflict, got %v", err)
	}

	c1, err := s.Clients(ctx).FindByName(ctx, "acme")
	if err != nil {
		t.Fatalf("find client: %v", err)
	}
	if err := s.Clients(ctx).Create(ctx, &auth.Client{Name: "other", SecretHash: "h"}); err != nil {
		t.Fatalf("create second client: %v", err)
	}
	c2, err := s.Clients(ctx).FindByName(ctx, "other")
	if err != nil {
		t.Fatalf("find second client: %v", err)
	}

	// Same username is allowed under different clients, not within one.
	if err := s.Users(ctx).Create(ctx, &auth.User{ClientID: c1.ID, Username: "alice", SecretHash: "h"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.Users(ctx).Create(ctx, &auth.User{ClientID: c2.ID, Username: "alice", SecretHash: "h"}); err != nil {
		t.Fatalf("same username under other client: %v", err)
	}
	if err := s.Users(ctx).Create(ctx, &auth.User{ClientID: c1.ID, Username: "alice", SecretHash: "h"}); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("duplicate username in scope: expected ErrConflict, got %v", err)
	}
}

func TestSetRolesUnknownUser(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Users(ctx).SetRoles(ctx, "missing", nil); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByIDsMissingRole(t *testing.T) {
	ctx := context.Background()
	s := New()
	role := &auth.Role{ClientID: "c1", Name: "editor", Permissions: []string{"p"}}
	if err := s.Roles(ctx).Create(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if _, err := s.Roles(ctx).FindByIDs(ctx, []string{role.ID, "missing"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoleFindByName(t *testing.T) {
	ctx := context.Background()
	s := New()

	// Same role name under two clients resolves per scope.
	first := &auth.Role{ClientID: "c1", Name: "editor", Permissions: []string{"docs.write"}}
	second := &auth.Role{ClientID: "c2", Name: "editor", Permissions: []string{"docs.read"}}
	if err := s.Roles(ctx).Create(ctx, first); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := s.Roles(ctx).Create(ctx, second); err != nil {
		t.Fatalf("create scoped twin: %v", err)
	}

	got, err := s.Roles(ctx).FindByName(ctx, "c1", "editor")
	if err != nil {
		t.Fatalf("find role: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("resolved wrong scope: got %s, want %s", got.ID, first.ID)
	}

	if _, err := s.Roles(ctx).FindByName(ctx, "c1", "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown name: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Roles(ctx).FindByName(ctx, "c3", "editor"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown client scope: expected ErrNotFound, got %v", err)
	}
}

func TestRevokeFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Unix(1700000000, 0).UTC()

	const n = 64
	results := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			created, err := s.Revocations(ctx).Revoke(ctx, "nonce-1", now)
			if err != nil {
				t.Errorf("revoke: %v", err)
				return
			}
			results[i] = created
		}(i)
	}
	wg.Wait()

	var winners int
	for _, created := range results {
		if created {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("got %d winners, want exactly 1", winners)
	}

	revoked, err := s.Revocations(ctx).IsRevoked(ctx, "nonce-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatal("nonce should be revoked")
	}
	revoked, err = s.Revocations(ctx).IsRevoked(ctx, "nonce-2")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Fatal("unrelated nonce should not be revoked")
	}
}
