// Package auth validates and hashes account passwords.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"

	"vaxsched/internal/domain"
)

const (
	SaltLen = 16
	KeyLen  = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4

	minPasswordLen = 8
	specialChars   = "!@#?"
)

// PasswordRule is reported to users whose password is rejected.
const PasswordRule = "password must be at least 8 characters and contain an upper-case letter, a lower-case letter, a digit and one of ! @ # ?"

// ValidatePassword enforces the strong password rule.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return domain.NewValidationError(PasswordRule)
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return domain.NewValidationError(PasswordRule)
	}
	return nil
}

// Hash derives an argon2id key from password under a fresh random salt.
func Hash(password string) (salt, hash []byte, err error) {
	salt = make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, derive(password, salt), nil
}

// Verify reports whether password hashes to hash under salt.
func Verify(password string, salt, hash []byte) bool {
	if len(salt) == 0 || len(hash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(derive(password, salt), hash) == 1
}

func derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, KeyLen)
}
