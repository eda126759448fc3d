package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	DefaultHashMemoryKB   = 64 * 1024
	DefaultHashIterations = 3
	DefaultHashThreads    = 2

	saltLength = 16
	keyLength  = 32

	// stored hashes asking for more than this are refused rather than computed
	maxHashMemoryKB   = 1024 * 1024
	maxHashIterations = 16
)

var ErrMalformedHash = errors.New("malformed password hash")

// HashParams are the Argon2id cost settings for new hashes.
type HashParams struct {
	MemoryKB   uint32
	Iterations uint32
	Threads    uint8
}

// PasswordHasher produces and checks PHC-encoded Argon2id hashes.
// Verification always uses the parameters recorded in the stored hash.
type PasswordHasher struct {
	params HashParams
}

// NewPasswordHasher fills zero fields of params with the defaults.
func NewPasswordHasher(params HashParams) *PasswordHasher {
	if params.MemoryKB == 0 {
		params.MemoryKB = DefaultHashMemoryKB
	}
	if params.Iterations == 0 {
		params.Iterations = DefaultHashIterations
	}
	if params.Threads == 0 {
		params.Threads = DefaultHashThreads
	}
	return &PasswordHasher{params: params}
}

func (h *PasswordHasher) Params() HashParams {
	return h.params
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to read salt: %w", err)
	}
	stored := storedHash{
		params: h.params,
		salt:   salt,
		key:    argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKB, h.params.Threads, keyLength),
	}
	return stored.String(), nil
}

// Verify reports whether password matches encoded. A non-nil error means the
// stored value could not be used at all.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	stored, err := parseStoredHash(encoded)
	if err != nil {
		return false, err
	}
	p := stored.params
	key := argon2.IDKey([]byte(password), stored.salt, p.Iterations, p.MemoryKB, p.Threads, uint32(len(stored.key)))
	return subtle.ConstantTimeCompare(stored.key, key) == 1, nil
}

type storedHash struct {
	params HashParams
	salt   []byte
	key    []byte
}

// String renders $argon2id$v=19$m=<kb>,t=<iter>,p=<threads>$<salt>$<key>.
func (s storedHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, s.params.MemoryKB, s.params.Iterations, s.params.Threads,
		base64.RawStdEncoding.EncodeToString(s.salt),
		base64.RawStdEncoding.EncodeToString(s.key))
}

func parseStoredHash(encoded string) (storedHash, error) {
	var s storedHash

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return s, fmt.Errorf("%w: not an argon2id hash", ErrMalformedHash)
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return s, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[2])
	}

	p := &s.params
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.MemoryKB, &p.Iterations, &p.Threads); err != nil {
		return s, fmt.Errorf("%w: bad parameters %q", ErrMalformedHash, fields[3])
	}
	if p.MemoryKB == 0 || p.MemoryKB > maxHashMemoryKB || p.Iterations == 0 || p.Iterations > maxHashIterations || p.Threads == 0 {
		return s, fmt.Errorf("%w: parameters out of range %q", ErrMalformedHash, fields[3])
	}

	var err error
	if s.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil || len(s.salt) == 0 {
		return s, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if s.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(s.key) == 0 {
		return s, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return s, nil
}
