package db

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives the at-rest hash of a credential. The input is the
// hex SHA-256 digest computed client side, so the plaintext never reaches
// the server and the stored value still gets bcrypt's per-hash salt.
func HashPassword(clientHash string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(clientHash), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether the client digest matches the stored hash.
func CheckPassword(stored, clientHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(clientHash)) == nil
}
