package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"catalog-api/internal/config"
)

var (
	ErrInvalidHash = errors.New("invalid hash format")
	// ErrEntropyFailure indicates the system entropy source failed while
	// generating a salt. This is the only fatal hashing error.
	ErrEntropyFailure = errors.New("entropy source failure")
)

const algorithm = "pbkdf2-sha256"

type Params struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

// Hasher derives password hashes with PBKDF2-SHA256. Each hash gets a fresh
// random salt, and the iteration count is recorded alongside the hash so the
// work factor can be raised for new accounts without invalidating old ones.
type Hasher struct {
	params Params
}

type HashResult struct {
	Hash       string `json:"hash"`
	Salt       string `json:"salt"`
	Iterations int    `json:"iterations"`
	Algorithm  string `json:"algorithm"`
}

func NewHasher(cfg *config.Config) *Hasher {
	return &Hasher{
		params: Params{
			Iterations: cfg.Hashing.Iterations,
			SaltLength: cfg.Hashing.SaltLength,
			KeyLength:  cfg.Hashing.KeyLength,
		},
	}
}

// Hash derives a salted hash of the plaintext using the configured work
// factor. It has no side effects beyond CPU cost.
func (h *Hasher) Hash(plaintext string) (*HashResult, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyFailure, err)
	}

	key := pbkdf2.Key([]byte(plaintext), salt, h.params.Iterations, h.params.KeyLength, sha256.New)

	return &HashResult{
		Hash:       base64.RawURLEncoding.EncodeToString(key),
		Salt:       base64.RawURLEncoding.EncodeToString(salt),
		Iterations: h.params.Iterations,
		Algorithm:  algorithm,
	}, nil
}

// Verify recomputes the hash with the stored salt and iteration count and
// compares in constant time. The stored iteration count wins over the
// configured one so hashes created under an older work factor still verify.
func (h *Hasher) Verify(plaintext, hash, salt string, iterations int) (bool, error) {
	saltBytes, err := base64.RawURLEncoding.DecodeString(salt)
	if err != nil {
		return false, ErrInvalidHash
	}

	expected, err := base64.RawURLEncoding.DecodeString(hash)
	if err != nil {
		return false, ErrInvalidHash
	}

	if iterations <= 0 {
		return false, ErrInvalidHash
	}

	computed := pbkdf2.Key([]byte(plaintext), saltBytes, iterations, len(expected), sha256.New)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// Iterations returns the currently configured work factor for new hashes.
func (h *Hasher) Iterations() int {
	return h.params.Iterations
}
