package crypto

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyToken(t *testing.T) {
	hash, err := HashToken("admin-token", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("unexpected hash format: %s", hash)
	}

	if err := VerifyToken("admin-token", hash); err != nil {
		t.Errorf("VerifyToken with correct token: %v", err)
	}
	if err := VerifyToken("wrong", hash); !errors.Is(err, ErrTokenMismatch) {
		t.Errorf("VerifyToken with wrong token = %v, want ErrTokenMismatch", err)
	}
}

func TestHashTokenErrors(t *testing.T) {
	if _, err := HashToken("", bcrypt.MinCost); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("empty token error = %v", err)
	}
	if _, err := HashToken(strings.Repeat("x", MaxTokenLength+1), bcrypt.MinCost); !errors.Is(err, ErrTokenTooLong) {
		t.Errorf("long token error = %v", err)
	}
}

func TestHashTokenClampsCost(t *testing.T) {
	hash, err := HashToken("t", 1)
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	cost, _ := bcrypt.Cost([]byte(hash))
	if cost != bcrypt.MinCost {
		t.Errorf("cost = %d, want %d", cost, bcrypt.MinCost)
	}
}

func TestVerifyTokenInvalidInputs(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		hash    string
		wantErr error
	}{
		{"empty token", "", "$2a$04$abc", ErrEmptyToken},
		{"empty hash", "token", "", ErrInvalidHash},
		{"garbage hash", "token", "not-a-hash", ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyToken(tt.token, tt.hash); !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifyToken error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateHash(t *testing.T) {
	hash, _ := HashToken("x", bcrypt.MinCost)
	if err := ValidateHash(hash); err != nil {
		t.Errorf("valid hash rejected: %v", err)
	}
	if err := ValidateHash("plain"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("invalid hash accepted: %v", err)
	}
}
