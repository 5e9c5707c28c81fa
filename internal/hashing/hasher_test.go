package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-api/internal/config"
)

func newTestHasher(iterations int) *Hasher {
	cfg := &config.Config{}
	cfg.Hashing.Iterations = iterations
	cfg.Hashing.SaltLength = 16
	cfg.Hashing.KeyLength = 32
	return NewHasher(cfg)
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(1000)

	result, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, result.Hash)
	require.NotEmpty(t, result.Salt)
	assert.Equal(t, 1000, result.Iterations)
	assert.Equal(t, "pbkdf2-sha256", result.Algorithm)

	ok, err := h.Verify("correct horse battery staple", result.Hash, result.Salt, result.Iterations)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	h := newTestHasher(1000)

	result, err := h.Hash("swordfish")
	require.NoError(t, err)

	ok, err := h.Verify("sw0rdfish", result.Hash, result.Salt, result.Iterations)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashProducesDistinctSalts(t *testing.T) {
	h := newTestHasher(1000)

	first, err := h.Hash("same password")
	require.NoError(t, err)
	second, err := h.Hash("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first.Salt, second.Salt)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestVerifyHonoursStoredIterations(t *testing.T) {
	// A hash created under an older work factor must keep verifying after
	// the configured iteration count is raised.
	old := newTestHasher(1000)
	result, err := old.Hash("legacy password")
	require.NoError(t, err)

	raised := newTestHasher(5000)
	ok, err := raised.Verify("legacy password", result.Hash, result.Salt, result.Iterations)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	h := newTestHasher(1000)

	_, err := h.Verify("pw", "not!base64!", "c2FsdA", 1000)
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = h.Verify("pw", "aGFzaA", "not!base64!", 1000)
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = h.Verify("pw", "aGFzaA", "c2FsdA", 0)
	assert.ErrorIs(t, err, ErrInvalidHash)
}
