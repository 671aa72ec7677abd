package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"keygate.io/internal/obs"
)

const (
	defaultIssuer     = "keygate"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 14
)

// Service composes the credential store, secret hashing, token codec and
// authorization engine into the top-level registration and login workflows.
// It holds no mutable state: configuration is fixed at construction and all
// mutable state lives behind the Store.
type Service struct {
	store Store
	codec *Codec
	now   func() time.Time

	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Option configures Service behavior.
type Option func(*Service) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) error {
		issuer = strings.TrimSpace(issuer)
		if issuer == "" {
			return errors.New("auth: issuer must not be empty")
		}
		s.issuer = issuer
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// New constructs a Service. The signing key is required: it is process-wide
// immutable configuration, never a mutable singleton.
func New(store Store, signingKey []byte, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:      store,
		now:        time.Now,
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	codec, err := NewCodec(signingKey, svc.issuer, svc.now)
	if err != nil {
		return nil, err
	}
	svc.codec = codec
	return svc, nil
}

// RegisterClient creates a tenant. Fails with ErrConflict if the name is
// taken by any client. The returned client never carries the secret or its
// hash.
func (s *Service) RegisterClient(ctx context.Context, name, secret string) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: client name is required", ErrInvalidInput)
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, err
	}
	client := &Client{Name: name, SecretHash: hash}
	if err := s.store.Clients(ctx).Create(ctx, client); err != nil {
		return nil, err
	}
	out := *client
	out.SecretHash = ""
	return &out, nil
}

// RegisterUser creates an end-subject under a client's scope. Fails with
// ErrConflict if the username is taken within that scope.
func (s *Service) RegisterUser(ctx context.Context, clientID, username, secret string) (*User, error) {
	clientID = strings.TrimSpace(clientID)
	username = strings.TrimSpace(username)
	if clientID == "" || username == "" {
		return nil, fmt.Errorf("%w: client id and username are required", ErrInvalidInput)
	}
	if _, err := s.store.Clients(ctx).Find(ctx, clientID); err != nil {
		return nil, err
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, err
	}
	user := &User{ClientID: clientID, Username: username, SecretHash: hash}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	out := *user
	out.SecretHash = ""
	return &out, nil
}

// CreateRole creates a named permission grouping under a client's scope.
func (s *Service) CreateRole(ctx context.Context, clientID, name string, permissions []string) (*Role, error) {
	clientID = strings.TrimSpace(clientID)
	name = strings.TrimSpace(name)
	if clientID == "" || name == "" {
		return nil, fmt.Errorf("%w: client id and role name are required", ErrInvalidInput)
	}
	permissions = dedupeStrings(permissions)
	if err := validatePermissionTags(permissions); err != nil {
		return nil, err
	}
	if _, err := s.store.Clients(ctx).Find(ctx, clientID); err != nil {
		return nil, err
	}
	role := &Role{ClientID: clientID, Name: name, Permissions: permissions}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Login authenticates a user and issues a token pair. Every failure on this
// path is the generic ErrAuthFailed: the response must not distinguish an
// unknown username from a wrong secret.
func (s *Service) Login(ctx context.Context, clientID, username, secret string) (TokenPair, error) {
	clientID = strings.TrimSpace(clientID)
	username = strings.TrimSpace(username)
	if clientID == "" || username == "" || secret == "" {
		return TokenPair{}, ErrAuthFailed
	}
	user, err := s.store.Users(ctx).FindByUsername(ctx, clientID, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrAuthFailed
		}
		return TokenPair{}, err
	}
	ok, err := s.verifyStoredSecret(user.SecretHash, secret, "user", user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok {
		return TokenPair{}, ErrAuthFailed
	}
	roles, perms, err := s.snapshotRoles(ctx, user.RoleIDs)
	if err != nil {
		return TokenPair{}, err
	}
	return s.issuePair(user.ID, SubjectUser, user.ClientID, roles, perms)
}

// LoginClient authenticates a tenant by name and secret. Client tokens carry
// the built-in management permission snapshot.
func (s *Service) LoginClient(ctx context.Context, name, secret string) (TokenPair, error) {
	name = strings.TrimSpace(name)
	if name == "" || secret == "" {
		return TokenPair{}, ErrAuthFailed
	}
	client, err := s.store.Clients(ctx).FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrAuthFailed
		}
		return TokenPair{}, err
	}
	ok, err := s.verifyStoredSecret(client.SecretHash, secret, "client", client.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok {
		return TokenPair{}, ErrAuthFailed
	}
	return s.issuePair(client.ID, SubjectClient, client.ID, nil, BuiltinClientPermissions)
}

// Refresh consumes a single-use refresh token and issues a brand-new pair.
// Role snapshots are re-resolved here, so assignments made since the last
// issuance take effect on the new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.rotateRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return TokenPair{}, ErrAuthFailed
		}
		return TokenPair{}, err
	}

	switch claims.SubjectKind {
	case SubjectUser:
		user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return TokenPair{}, ErrAuthFailed
			}
			return TokenPair{}, err
		}
		roles, perms, err := s.snapshotRoles(ctx, user.RoleIDs)
		if err != nil {
			return TokenPair{}, err
		}
		return s.issuePair(user.ID, SubjectUser, user.ClientID, roles, perms)
	case SubjectClient:
		client, err := s.store.Clients(ctx).Find(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return TokenPair{}, ErrAuthFailed
			}
			return TokenPair{}, err
		}
		return s.issuePair(client.ID, SubjectClient, client.ID, nil, BuiltinClientPermissions)
	default:
		return TokenPair{}, ErrAuthFailed
	}
}

// Logout revokes a refresh token. Idempotent for already revoked tokens.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.Revoke(ctx, refreshToken)
}

// AssignRole replaces a user's role set. The acting principal must hold the
// role-assignment permission and belong to the same client as the target
// user. NotFound is surfaced verbatim: these callers are already authorized,
// so enumeration is not a concern.
func (s *Service) AssignRole(ctx context.Context, acting *Claims, userID string, roleIDs []string) error {
	if err := Authorize(acting, PermAssignRoles); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if acting.ClientID != user.ClientID {
		return ErrForbidden
	}
	roleIDs = dedupeStrings(roleIDs)
	if len(roleIDs) > 0 {
		roles, err := s.store.Roles(ctx).FindByIDs(ctx, roleIDs)
		if err != nil {
			return err
		}
		for _, role := range roles {
			if role.ClientID != user.ClientID {
				return ErrNotFound
			}
		}
	}
	return s.store.Users(ctx).SetRoles(ctx, userID, roleIDs)
}

// verifyStoredSecret wraps VerifySecret so corrupt stored hashes are logged
// with full detail before the generic error propagates to the caller.
func (s *Service) verifyStoredSecret(hash, plaintext, kind, subjectID string) (bool, error) {
	ok, err := VerifySecret(hash, plaintext)
	if err != nil {
		var integrity *IntegrityError
		if errors.As(err, &integrity) {
			obs.LogEvent(map[string]any{
				"ts":      s.now().UTC().Format(time.RFC3339Nano),
				"level":   "error",
				"msg":     "corrupt stored secret hash",
				"kind":    kind,
				"subject": subjectID,
				"error":   integrity.Error(),
			})
		}
		return false, err
	}
	return ok, nil
}

// snapshotRoles resolves role IDs into the name and permission snapshot
// frozen into tokens at issuance.
func (s *Service) snapshotRoles(ctx context.Context, roleIDs []string) (names []string, perms []string, err error) {
	if len(roleIDs) == 0 {
		return nil, nil, nil
	}
	roles, err := s.store.Roles(ctx).FindByIDs(ctx, roleIDs)
	if err != nil {
		return nil, nil, err
	}
	permSet := make(map[string]struct{})
	for _, role := range roles {
		names = append(names, role.Name)
		for _, p := range role.Permissions {
			permSet[p] = struct{}{}
		}
	}
	sort.Strings(names)
	perms = make([]string, 0, len(permSet))
	for p := range permSet {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return names, perms, nil
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
