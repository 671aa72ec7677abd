package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// issuePair mints an access/refresh pair for one principal. The two tokens
// share no nonce, and the refresh nonce is recorded nowhere until revoked:
// absence of a revocation marker plus a valid signature constitutes
// refresh-token validity.
func (s *Service) issuePair(subjectID string, kind SubjectKind, clientID string, roles, perms []string) (TokenPair, error) {
	now := s.now().UTC()

	access, accessExp, err := s.mint(subjectID, kind, clientID, roles, perms, ClassAccess, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.mint(subjectID, kind, clientID, roles, perms, ClassRefresh, now, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) mint(subjectID string, kind SubjectKind, clientID string, roles, perms []string, class TokenClass, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := &Claims{
		SubjectKind: kind,
		ClientID:    clientID,
		Roles:       roles,
		Permissions: perms,
		Class:       class,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	value, err := s.codec.Encode(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return value, exp, nil
}

// ValidateAccess is a pure signature+expiry check. It deliberately performs
// no store access: the hot authorization path stays free of round-trips, at
// the documented cost of a staleness window bounded by the access TTL.
func (s *Service) ValidateAccess(token string) (*Claims, error) {
	return s.codec.Decode(token, ClassAccess)
}

// ValidateRefresh checks signature and expiry, then consults the revocation
// marker. A revoked nonce is ErrInvalidToken regardless of signature
// validity.
func (s *Service) ValidateRefresh(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.codec.Decode(token, ClassRefresh)
	if err != nil {
		return nil, err
	}
	revoked, err := s.store.Revocations(ctx).IsRevoked(ctx, claims.Nonce())
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// rotateRefresh validates and consumes a refresh token in one step. Refresh
// tokens are single-use: concurrent rotations of the same nonce resolve at
// the store's atomic revocation insert, exactly one caller observing the
// record as newly created.
func (s *Service) rotateRefresh(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.codec.Decode(token, ClassRefresh)
	if err != nil {
		return nil, err
	}
	created, err := s.store.Revocations(ctx).Revoke(ctx, claims.Nonce(), s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Revoke invalidates a refresh token before its natural expiry. Idempotent:
// revoking an already revoked token succeeds and changes no state.
func (s *Service) Revoke(ctx context.Context, token string) error {
	claims, err := s.codec.Decode(token, ClassRefresh)
	if err != nil {
		return err
	}
	_, err = s.store.Revocations(ctx).Revoke(ctx, claims.Nonce(), s.now().UTC())
	return err
}
