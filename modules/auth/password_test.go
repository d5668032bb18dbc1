package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/example/task-manager/domain/apperr"
)

func TestPasswordHasher_Hash(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
	}{
		{
			name:     "shortest accepted",
			password: "abc",
		},
		{
			name:     "complex password",
			password: "P@ssw0rd!#$%^&*()",
		},
		{
			name:     "unicode password",
			password: "密码123",
		},
		{
			name:     "bcrypt limit",
			password: strings.Repeat("a", MaxPasswordLength),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.Hash(tt.password)
			if err != nil {
				t.Fatalf("Hash() error = %v", err)
			}
			if hash == "" || hash == tt.password {
				t.Fatalf("Hash() returned %q", hash)
			}
			if !hasher.Verify(tt.password, hash) {
				t.Error("Verify() returned false for correct password")
			}
			if hasher.Verify(tt.password+"x", hash) {
				t.Error("Verify() returned true for wrong password")
			}
		})
	}
}

func TestPasswordHasher_HashRejectsInvalidLength(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	for _, password := range []string{"", "ab", strings.Repeat("a", MaxPasswordLength+1)} {
		_, err := hasher.Hash(password)
		if !errors.Is(err, &apperr.ValidationError{Field: "password"}) {
			t.Errorf("Hash(%d bytes) error = %v, want password validation error", len(password), err)
		}
	}
}

func TestPasswordHasher_SaltedHashes(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	first, err := hasher.Hash("qwerty")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	second, err := hasher.Hash("qwerty")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if first == second {
		t.Error("expected different hashes for the same password")
	}
}

func TestNewPasswordHasher_InvalidCostFallsBack(t *testing.T) {
	if got := NewPasswordHasher(0).cost; got != DefaultBcryptCost {
		t.Errorf("cost = %d, want %d", got, DefaultBcryptCost)
	}
	if got := NewPasswordHasher(bcrypt.MaxCost + 1).cost; got != DefaultBcryptCost {
		t.Errorf("cost = %d, want %d", got, DefaultBcryptCost)
	}
}

func TestPasswordHasher_VerifyInvalidHash(t *testing.T) {
	if NewPasswordHasher(bcrypt.MinCost).Verify("qwerty", "not-a-bcrypt-hash") {
		t.Error("Verify() returned true for an invalid hash")
	}
}
