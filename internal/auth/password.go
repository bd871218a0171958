// Package auth: password hashing utilities.
//
// ALGORITHM POLICY:
// New passwords are hashed with argon2id, a memory-hard function: every guess
// costs the attacker both CPU time and tens of megabytes of RAM.
// Hashes produced by the older bcrypt scheme still verify, and NeedsRehash
// tells the caller when a stored hash should be upgraded after a successful
// login.
//
// Hash format (PHC string, salt and digest are unpadded base64):
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<digest>
//	          ^    ^       ^   ^
//	          |    |       |   parallelism (threads)
//	          |    |       time (passes over memory)
//	          |    memory in KiB
//	          argon2 version
//
// Legacy format accepted by Verify:
//
//	$2a$12$<22-char salt><31-char hash>   (also $2b$ and $2y$)
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params matches the widely used 64 MiB / 3 passes / 4 lanes
// profile.
var DefaultArgon2Params = Argon2Params{
	Memory:  64 * 1024,
	Time:    3,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

const argon2idPrefix = "$argon2id$"

// PasswordService hashes and verifies passwords.
//
// The argon2 parameters are injectable so tests in other packages can use a
// cheap profile.
type PasswordService struct {
	params Argon2Params
}

// NewPasswordService creates a PasswordService with DefaultArgon2Params.
func NewPasswordService() *PasswordService {
	return &PasswordService{params: DefaultArgon2Params}
}

// NewPasswordServiceWithParams creates a PasswordService with custom cost.
func NewPasswordServiceWithParams(p Argon2Params) *PasswordService {
	return &PasswordService{params: p}
}

// NewPasswordServiceForTest returns a PasswordService with the smallest
// argon2id profile. Do NOT use in production.
func NewPasswordServiceForTest() *PasswordService {
	return &PasswordService{params: Argon2Params{
		Memory:  1024,
		Time:    1,
		Threads: 1,
		SaltLen: 16,
		KeyLen:  32,
	}}
}

// Hash derives an argon2id hash of plaintext with a fresh random salt.
// Two calls with the same input never return the same string.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	salt := make([]byte, p.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, p.params.Time, p.params.Memory, p.params.Threads, p.params.KeyLen)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix,
		argon2.Version,
		p.params.Memory, p.params.Time, p.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches hash. It never returns an error:
// a malformed or unsupported hash simply does not match.
//
// Both branches compare in constant time (subtle.ConstantTimeCompare for
// argon2id, bcrypt.CompareHashAndPassword for legacy hashes).
func (p *PasswordService) Verify(plaintext, hash string) bool {
	switch {
	case strings.HasPrefix(hash, argon2idPrefix):
		params, salt, want, err := decodeArgon2id(hash)
		if err != nil {
			return false
		}
		got := argon2.IDKey([]byte(plaintext), salt, params.Time, params.Memory, params.Threads, uint32(len(want)))
		return subtle.ConstantTimeCompare(got, want) == 1
	case isBcrypt(hash):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
	default:
		return false
	}
}

// NeedsRehash reports whether hash was produced by a legacy algorithm or
// with parameters other than the service's current ones.
func (p *PasswordService) NeedsRehash(hash string) bool {
	if !strings.HasPrefix(hash, argon2idPrefix) {
		return true
	}
	params, salt, key, err := decodeArgon2id(hash)
	if err != nil {
		return true
	}
	return params.Memory != p.params.Memory ||
		params.Time != p.params.Time ||
		params.Threads != p.params.Threads ||
		uint32(len(salt)) != p.params.SaltLen ||
		uint32(len(key)) != p.params.KeyLen
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

// decodeArgon2id parses a PHC string into its parameters, salt and digest.
func decodeArgon2id(hash string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, digest
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		return params, nil, nil, fmt.Errorf("auth: malformed argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, fmt.Errorf("auth: parsing argon2id version: %w", err)
	}
	if version != argon2.Version {
		return params, nil, nil, fmt.Errorf("auth: unsupported argon2 version %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return params, nil, nil, fmt.Errorf("auth: parsing argon2id parameters: %w", err)
	}
	if params.Memory == 0 || params.Time == 0 || params.Threads == 0 {
		return params, nil, nil, fmt.Errorf("auth: argon2id parameters out of range")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("auth: decoding argon2id salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return params, nil, nil, fmt.Errorf("auth: decoding argon2id digest")
	}

	params.SaltLen = uint32(len(salt))
	params.KeyLen = uint32(len(key))
	return params, salt, key, nil
}
