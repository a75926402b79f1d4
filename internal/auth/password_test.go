package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/learnhub/internal/model"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_HashAndCompare(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("pw123456")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if hash == "pw123456" {
		t.Fatal("hash must not equal the plain password")
	}

	ok, err := h.Compare(hash, "pw123456")
	if err != nil || !ok {
		t.Errorf("Compare(correct) = %v, %v; want true, nil", ok, err)
	}

	ok, err = h.Compare(hash, "wrong")
	if err != nil || ok {
		t.Errorf("Compare(wrong) = %v, %v; want false, nil", ok, err)
	}
}

func TestPasswordHasher_Compare_InvalidHash_ReturnsError(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	if _, err := h.Compare("not-a-bcrypt-hash", "pw"); err == nil {
		t.Error("expected error for malformed hash")
	}
}

func TestPasswordHasher_Hash_TooLong_ReturnsValidationError(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	if _, err := h.Hash(strings.Repeat("p", MaxPasswordBytes)); err != nil {
		t.Fatalf("Hash(%d bytes) error: %v", MaxPasswordBytes, err)
	}

	_, err := h.Hash(strings.Repeat("p", MaxPasswordBytes+1))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeValidationFailed)
	}
}
