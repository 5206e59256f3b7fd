package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported hashing algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

const (
	DefaultBcryptCost = 10

	// bcrypt ignores input past this many bytes.
	BcryptMaxPasswordBytes = 72
)

// Argon2 parameters (OWASP recommended)
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// HasherConfig selects the algorithm used for new hashes. Existing hashes of
// any supported algorithm or cost keep verifying.
type HasherConfig struct {
	Algorithm  string
	BcryptCost int
}

// PasswordHasher implements Hasher with bcrypt or argon2id.
type PasswordHasher struct {
	config HasherConfig
}

// NewPasswordHasher creates a password hasher.
func NewPasswordHasher(config HasherConfig) (*PasswordHasher, error) {
	if config.Algorithm == "" {
		config.Algorithm = AlgorithmBcrypt
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = DefaultBcryptCost
	}
	switch config.Algorithm {
	case AlgorithmBcrypt:
		if config.BcryptCost < bcrypt.MinCost || config.BcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
		}
	case AlgorithmArgon2id:
	default:
		return nil, fmt.Errorf("unsupported password hash algorithm %q", config.Algorithm)
	}
	return &PasswordHasher{config: config}, nil
}

// Algorithm returns the algorithm used for new hashes.
func (h *PasswordHasher) Algorithm() string {
	return h.config.Algorithm
}

// Hash hashes a password with the configured algorithm.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if h.config.Algorithm == AlgorithmArgon2id {
		return hashArgon2id(password)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.config.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches encoded. The algorithm and its
// parameters are read from encoded.
func (h *PasswordHasher) Verify(password, encoded string) bool {
	switch {
	case isBcryptHash(encoded):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
	case strings.HasPrefix(encoded, "$argon2id$"):
		return verifyArgon2id(password, encoded)
	default:
		return false
	}
}

// NeedsRehash reports whether encoded was produced with a different algorithm
// or cost than the current configuration.
func (h *PasswordHasher) NeedsRehash(encoded string) bool {
	switch h.config.Algorithm {
	case AlgorithmBcrypt:
		if !isBcryptHash(encoded) {
			return true
		}
		cost, err := bcrypt.Cost([]byte(encoded))
		return err != nil || cost != h.config.BcryptCost
	case AlgorithmArgon2id:
		hash, _, time, memory, threads, err := decodeArgon2Hash(encoded)
		if err != nil {
			return true
		}
		return time != argon2Time || memory != argon2Memory || threads != argon2Threads || len(hash) != argon2KeyLen
	}
	return false
}

func isBcryptHash(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") || strings.HasPrefix(encoded, "$2b$") || strings.HasPrefix(encoded, "$2y$")
}

func hashArgon2id(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// Encode as: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return encodeArgon2Hash(hash, salt, argon2Time, argon2Memory, argon2Threads), nil
}

func verifyArgon2id(password, encoded string) bool {
	hash, salt, time, memory, threads, err := decodeArgon2Hash(encoded)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computed) == 1
}

func encodeArgon2Hash(hash, salt []byte, time, memory uint32, threads uint8) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, time, threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
}

var errMalformedHash = errors.New("malformed argon2id hash")

func decodeArgon2Hash(encoded string) (hash, salt []byte, time, memory uint32, threads uint8, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, 0, 0, 0, errMalformedHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, nil, 0, 0, 0, errMalformedHash
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, errMalformedHash
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return nil, nil, 0, 0, 0, errMalformedHash
	}
	return hash, salt, time, memory, threads, nil
}
