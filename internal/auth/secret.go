// Package auth hashes and verifies room secrets. Possession of the
// plaintext secret is the only notion of "host": there is no separate
// host identity and the secret is never bound to a session.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost of 10 keeps hashing fast enough for the per-message
// verification that host-only operations perform.
const bcryptCost = 10

// HashSecret generates a bcrypt digest of the room secret. Only the
// digest is ever persisted; the plaintext is shown once at creation.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret reports whether the presented plaintext secret matches
// the stored digest. An empty secret never matches.
func VerifySecret(storedHash, secret string) bool {
	if secret == "" || storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(secret)) == nil
}
