package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters. Changing them only affects new hashes: verification
// always recomputes with the parameters stored in the record itself.
const (
	argonMemory      = 64 * 1024
	argonIterations  = 2
	argonParallelism = 1
	argonKeyLength   = 32
	argonSaltLength  = 16
)

// HashSecret derives an argon2id hash of the plaintext with a fresh random
// salt and encodes it in the standard $argon2id$ record format. The
// plaintext is never retained or logged.
func HashSecret(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: secret is empty", ErrInvalidInput)
	}

	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest := argon2.IDKey([]byte(plaintext), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonIterations,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// VerifySecret recomputes the digest with the record's stored salt and
// parameters and compares in constant time. A malformed record is a
// *IntegrityError, distinct from a plain mismatch: corrupt stored data must
// never masquerade as a wrong password.
func VerifySecret(encoded, plaintext string) (bool, error) {
	salt, digest, iterations, memory, parallelism, err := parseHashRecord(encoded)
	if err != nil {
		return false, &IntegrityError{Op: "parse secret hash", Err: err}
	}
	computed := argon2.IDKey([]byte(plaintext), salt, iterations, memory, parallelism, uint32(len(digest)))
	return subtle.ConstantTimeCompare(digest, computed) == 1, nil
}

func parseHashRecord(encoded string) (salt, digest []byte, iterations, memory uint32, parallelism uint8, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, nil, 0, 0, 0, errors.New("wrong segment count")
	}
	if parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, fmt.Errorf("unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("parse version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, 0, 0, 0, fmt.Errorf("unsupported argon2 version %d", version)
	}
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("parse parameters: %w", err)
	}
	if memory == 0 || iterations == 0 || parallelism == 0 {
		return nil, nil, 0, 0, 0, errors.New("zero-valued parameters")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("decode salt: %w", err)
	}
	digest, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("decode digest: %w", err)
	}
	if len(salt) == 0 || len(digest) == 0 {
		return nil, nil, 0, 0, 0, errors.New("empty salt or digest")
	}
	return salt, digest, iterations, memory, parallelism, nil
}
