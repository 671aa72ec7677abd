package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the verified payload of a token. Roles and Permissions are the
// snapshot frozen at issuance time; a role change made afterwards takes
// effect only on the next refresh, never retroactively on outstanding
// access tokens.
type Claims struct {
	SubjectKind SubjectKind `json:"kind"`
	ClientID    string      `json:"client_id,omitempty"`
	Roles       []string    `json:"roles,omitempty"`
	Permissions []string    `json:"permissions,omitempty"`
	Class       TokenClass  `json:"class"`
	jwt.RegisteredClaims
}

// Nonce returns the per-token unique identifier used for refresh-token
// revocation tracking.
func (c *Claims) Nonce() string { return c.ID }

// Codec constructs and parses signed token values. The signing key is
// process-wide immutable configuration, injected at startup.
type Codec struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewCodec builds a codec over an HS256 signing key and an injected clock.
func NewCodec(key []byte, issuer string, now func() time.Time) (*Codec, error) {
	if len(key) == 0 {
		return nil, errors.New("auth: signing key is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("auth: issuer is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{key: key, issuer: issuer, now: now}, nil
}

// Encode signs the claim set. Callers are responsible for populating the
// registered fields (subject, nonce, iat, exp) before encoding.
func (c *Codec) Encode(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Decode verifies the signature before interpreting any claim field, then
// checks issuer, timing window and token class. The validity window is
// iat <= now < exp: a token exactly at its expiry boundary is expired.
// Every failure collapses to ErrInvalidToken; distinguishing them externally
// would leak cryptographic information.
func (c *Codec) Decode(value string, class TokenClass) (*Claims, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(value, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuer(c.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := validateClaims(claims, class); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func validateClaims(claims *Claims, class TokenClass) error {
	if claims.Class != class {
		return errors.New("unexpected token class")
	}
	switch claims.SubjectKind {
	case SubjectClient, SubjectUser:
	default:
		return errors.New("unknown subject kind")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return errors.New("nonce missing")
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return errors.New("timestamps missing")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("expiry precedes issued-at")
	}
	return nil
}
