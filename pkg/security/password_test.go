package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NoError(t, h.Compare(hash, "correct horse"))
	assert.ErrorIs(t, h.Compare(hash, "wrong horse"), ErrPasswordMismatch)

	_, err = h.Hash("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestCheckPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     error
	}{
		{"ok", "telemed-2024", nil},
		{"counts runes not bytes", "pässwörd", nil},
		{"too short", "abc1234", ErrPasswordTooShort},
		{"beyond bcrypt limit", strings.Repeat("a", MaxPasswordBytes+1), ErrPasswordTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, CheckPassword(tt.password), tt.want)
		})
	}
}

func TestCompareRejectsMalformedHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	assert.ErrorIs(t, h.Compare("not-a-hash", "whatever1"), ErrPasswordMismatch)
}
