package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt cost matches the original deployment (10 rounds).
const hashCost = 10

// ErrInvalidDigest is returned when a stored hash is not a bcrypt digest.
var ErrInvalidDigest = errors.New("invalid password digest")

// ErrPasswordTooLong is returned for plaintexts over bcrypt's 72-byte
// limit. Request validation caps passwords below it, so reaching this
// from a handler means the cap was bypassed.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// HashPassword hashes a plain text password with bcrypt.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), hashCost)

	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}

		return "", err
	}

	return string(hash), nil
}

// VerifyPassword compares a bcrypt hash with a plaintext password.
// A mismatch is not an error; only a malformed digest or an
// over-length plaintext is.
func VerifyPassword(hash, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))

	if err == nil {
		return true, nil
	}

	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}

	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return false, ErrPasswordTooLong
	}

	return false, ErrInvalidDigest
}
