package auth

import "time"

// SubjectKind distinguishes the two principal kinds that authenticate.
type SubjectKind string

const (
	SubjectClient SubjectKind = "client"
	SubjectUser   SubjectKind = "user"
)

// TokenClass separates the stateless access path from the store-checked
// refresh path.
type TokenClass string

const (
	ClassAccess  TokenClass = "access"
	ClassRefresh TokenClass = "refresh"
)

// Client is an API-consuming tenant. Client names are unique across all
// clients. The secret hash never leaves the store layer in responses.
type Client struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// User is an end-subject owned by exactly one client. Usernames are unique
// within the owning client's scope.
type User struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	Username   string    `json:"username"`
	SecretHash string    `json:"-"`
	RoleIDs    []string  `json:"role_ids,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Role groups permission tags under a client's scope. Role names are unique
// within the owning client.
type Role struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// RevocationRecord marks a refresh-token nonce as unusable before its
// natural expiry. Absence of a record, plus a valid signature and an
// unexpired timestamp, constitutes refresh-token validity.
type RevocationRecord struct {
	Nonce     string    `json:"nonce"`
	RevokedAt time.Time `json:"revoked_at"`
}

// TokenPair carries freshly minted access and refresh tokens with their
// expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
