package tokens

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input beyond 72 bytes, so both hashing and verification
// truncate deterministically at that boundary.
const maxHashInputBytes = 72

const maxMintAttempts = 100

// New returns a fresh URL-safe token carrying 256 bits of entropy. Tokens
// are bearer secrets: invitation links, survey links, RSVP edit tokens.
func New() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash derives the bcrypt hash stored in place of a secret. cost <= 0
// selects the bcrypt default.
func Hash(secret string, cost int) (string, error) {
	if secret == "" {
		return "", errors.New("empty secret")
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword(truncate(secret), cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

// Verify reports whether secret matches the stored bcrypt hash. Empty
// inputs never match.
func Verify(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), truncate(secret)) == nil
}

// VerifyAccessCode matches an event access code against its stored value.
// Stored values are bcrypt hashes; values imported from before hashing
// existed are plain text and compared in constant time.
func VerifyAccessCode(code, stored string) bool {
	if code == "" || stored == "" {
		return false
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), truncate(code)) == nil {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(stored)) == 1
}

// Exists reports whether a candidate token is already taken.
type Exists func(ctx context.Context, token string) (bool, error)

// NewUnique mints tokens until exists reports the candidate free. With
// 256-bit tokens a retry is all but impossible; the loop guards against a
// misbehaving exists func more than against collisions.
func NewUnique(ctx context.Context, exists Exists) (string, error) {
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		tok, err := New()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, tok)
		if err != nil {
			return "", err
		}
		if !taken {
			return tok, nil
		}
	}
	return "", fmt.Errorf("no unique token after %d attempts", maxMintAttempts)
}

func truncate(s string) []byte {
	b := []byte(s)
	if len(b) > maxHashInputBytes {
		b = b[:maxHashInputBytes]
	}
	return b
}
