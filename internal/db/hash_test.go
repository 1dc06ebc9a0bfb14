package db

import (
	"strings"
	"testing"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	// clients send the hex SHA-256 digest, never the plaintext
	clientHash := strings.Repeat("ab", 32)

	stored, err := HashPassword(clientHash)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if stored == clientHash {
		t.Fatal("stored hash must not equal the client digest")
	}

	if !CheckPassword(stored, clientHash) {
		t.Error("matching digest must verify")
	}
	if CheckPassword(stored, strings.Repeat("cd", 32)) {
		t.Error("wrong digest must not verify")
	}
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	clientHash := strings.Repeat("12", 32)

	first, err := HashPassword(clientHash)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	second, err := HashPassword(clientHash)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if first == second {
		t.Error("two hashes of the same digest must differ by salt")
	}
}
