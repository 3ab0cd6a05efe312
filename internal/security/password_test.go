package security_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/networth/tracker/internal/security"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	passwords := []string{
		"longpassword1",
		"correct horse battery staple",
		"päss wörd ütf8",
	}

	for _, p := range passwords {
		hash, err := security.HashPassword(p)

		if err != nil {
			t.Fatalf("HashPassword(%q) returned error: %v", p, err)
		}

		if hash == p {
			t.Fatalf("hash must not equal the plaintext")
		}

		// bcrypt digests are self-describing
		if !strings.HasPrefix(hash, "$2") {
			t.Fatalf("expected bcrypt digest, got %q", hash)
		}

		ok, err := security.VerifyPassword(hash, p)

		if err != nil {
			t.Fatalf("VerifyPassword returned error: %v", err)
		}

		if !ok {
			t.Fatalf("VerifyPassword(hash(%q), %q) = false, want true", p, p)
		}
	}
}

func TestVerifyPassword_Mismatch(t *testing.T) {
	hash, err := security.HashPassword("longpassword1")

	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	ok, err := security.VerifyPassword(hash, "wrongpass")

	if err != nil {
		t.Fatalf("mismatch must not be an error, got: %v", err)
	}

	if ok {
		t.Fatalf("VerifyPassword with wrong password = true, want false")
	}
}

func TestVerifyPassword_MalformedDigest(t *testing.T) {
	_, err := security.VerifyPassword("not-a-bcrypt-digest", "whatever")

	if !errors.Is(err, security.ErrInvalidDigest) {
		t.Fatalf("got err %v, want ErrInvalidDigest", err)
	}
}

func TestHashPassword_TooLong(t *testing.T) {
	_, err := security.HashPassword(strings.Repeat("a", 90))

	if !errors.Is(err, security.ErrPasswordTooLong) {
		t.Fatalf("got err %v, want ErrPasswordTooLong", err)
	}
}

func TestVerifyPassword_TooLong(t *testing.T) {
	hash, err := security.HashPassword("longpassword1")

	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	ok, err := security.VerifyPassword(hash, strings.Repeat("a", 90))

	if ok {
		t.Fatalf("over-length plaintext must not verify")
	}

	if !errors.Is(err, security.ErrPasswordTooLong) {
		t.Fatalf("got err %v, want ErrPasswordTooLong", err)
	}

	if errors.Is(err, security.ErrInvalidDigest) {
		t.Fatalf("a valid digest must not be reported as malformed")
	}
}

func TestHashPassword_Salted(t *testing.T) {
	h1, err := security.HashPassword("longpassword1")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	h2, err := security.HashPassword("longpassword1")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	if h1 == h2 {
		t.Fatalf("two hashes of the same password should differ (random salt)")
	}
}
