package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// =========================================================================
// HELPER
// =========================================================================

func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest()
}

// legacyBcryptHash produces a hash in the format older accounts were stored in.
func legacyBcryptHash(t *testing.T, plaintext string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword: %v", err)
	}
	return string(h)
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestHash_OutputLooksArgon2id(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Errorf("Hash() does not look like an argon2id PHC string: %q", hash)
	}
	if got := strings.Count(hash, "$"); got != 5 {
		t.Errorf("Hash() has %d '$' separators, want 5", got)
	}
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_LongPassword(t *testing.T) {
	ps := newTestPasswordService()

	// argon2 has no 72-byte truncation: the 100th byte must matter.
	long := strings.Repeat("a", 99)
	hash, err := ps.Hash(long + "b")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if ps.Verify(long+"c", hash) {
		t.Error("Verify() accepted a password differing only after byte 99")
	}
}

// =========================================================================
// Verify TESTS
// =========================================================================

func TestVerify_CorrectPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !ps.Verify("correct-horse-battery-staple", hash) {
		t.Error("Verify() = false for the correct password")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, _ := ps.Hash("correct-password")
	if ps.Verify("wrong-password", hash) {
		t.Error("Verify() = true for the wrong password")
	}
}

func TestVerify_LegacyBcryptHash(t *testing.T) {
	ps := newTestPasswordService()
	hash := legacyBcryptHash(t, "legacy-password")

	if !ps.Verify("legacy-password", hash) {
		t.Error("Verify() = false for a correct password against a bcrypt hash")
	}
	if ps.Verify("other-password", hash) {
		t.Error("Verify() = true for a wrong password against a bcrypt hash")
	}
}

func TestVerify_MalformedHashes(t *testing.T) {
	ps := newTestPasswordService()

	malformed := []string{
		"",
		"not-a-hash",
		"$argon2id$",
		"$argon2id$v=19$m=1024,t=1,p=1$onlysalt",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$ZGlnZXN0",
		"$argon2id$v=19$m=0,t=0,p=0$c2FsdHNhbHRzYWx0c2FsdA$ZGlnZXN0",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$ZGlnZXN0",
		"$2a$04$tooshort",
		"$md5$whatever",
	}
	for _, h := range malformed {
		if ps.Verify("anything", h) {
			t.Errorf("Verify(%q) = true, want false", h)
		}
	}
}

// =========================================================================
// NeedsRehash TESTS
// =========================================================================

func TestNeedsRehash(t *testing.T) {
	cheap := newTestPasswordService()
	strong := NewPasswordServiceWithParams(Argon2Params{Memory: 2048, Time: 2, Threads: 1, SaltLen: 16, KeyLen: 32})

	cheapHash, _ := cheap.Hash("pw")

	if cheap.NeedsRehash(cheapHash) {
		t.Error("NeedsRehash() = true for a hash with current parameters")
	}
	if !strong.NeedsRehash(cheapHash) {
		t.Error("NeedsRehash() = false for a hash with weaker parameters")
	}
	if !cheap.NeedsRehash(legacyBcryptHash(t, "pw")) {
		t.Error("NeedsRehash() = false for a bcrypt hash")
	}
	if !cheap.NeedsRehash("garbage") {
		t.Error("NeedsRehash() = false for garbage")
	}
}
