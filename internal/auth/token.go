package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes is the entropy of a session token. Hex encoding doubles it,
// so the wire value is 64 characters and fits the token field with its NUL.
const tokenBytes = 32

// GenerateToken creates a new random session token.
func GenerateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// validToken reports whether s looks like a token this service could have
// issued. Anything else is rejected before touching storage.
func validToken(s string) bool {
	return validHex(s, tokenBytes*2)
}
