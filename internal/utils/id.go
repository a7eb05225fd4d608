package utils

import (
	"crypto/rand"
	"strconv"
	"time"
)

// idAlphabet matches the charset room ids are validated against on the
// HTTP surface: URL-safe, no padding characters.
const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

const (
	// RoomIDLength is the length of generated room identifiers.
	RoomIDLength = 12
	// RoomSecretLength is the length of generated room secrets.
	RoomSecretLength = 24
)

// NewRoomID returns a fresh random room identifier.
func NewRoomID() string {
	return randomString(RoomIDLength)
}

// NewRoomSecret returns a fresh high-entropy room secret.
func NewRoomSecret() string {
	return randomString(RoomSecretLength)
}

func randomString(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// Fallback to timestamp if crypto/rand is unavailable.
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out)
}
