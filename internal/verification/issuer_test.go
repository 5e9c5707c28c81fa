package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catalog-api/internal/models"
)

type fakeVerificationRepo struct {
	created   []*models.VerificationRequest
	createErr error
}

func (f *fakeVerificationRepo) CreateVerification(ctx context.Context, req *models.VerificationRequest) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, req)
	return nil
}

func (f *fakeVerificationRepo) GetVerificationByCode(ctx context.Context, code string) (*models.VerificationRequest, error) {
	for _, req := range f.created {
		if req.Code == code {
			return req, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeVerificationRepo) ConsumeVerification(ctx context.Context, code string) (bool, error) {
	return true, nil
}

func (f *fakeVerificationRepo) ListVerificationsByAccount(ctx context.Context, accountID string) ([]*models.VerificationRequest, error) {
	return f.created, nil
}

type fakeCodeCache struct {
	codes  map[string]string
	setErr error
}

func (f *fakeCodeCache) SetCode(ctx context.Context, code, accountID string, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.codes == nil {
		f.codes = make(map[string]string)
	}
	f.codes[code] = accountID
	return nil
}

func (f *fakeCodeCache) DeleteCode(ctx context.Context, code string) error {
	delete(f.codes, code)
	return nil
}

func TestIssuePersistsBeforeCaching(t *testing.T) {
	repo := &fakeVerificationRepo{}
	cache := &fakeCodeCache{}
	issuer := NewIssuer(repo, cache, 48*time.Hour, zap.NewNop())

	req, err := issuer.Issue(context.Background(), "acct-1")
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, "acct-1", repo.created[0].AccountID)
	assert.Equal(t, "acct-1", cache.codes[req.Code])
}

func TestIssueCodeProperties(t *testing.T) {
	repo := &fakeVerificationRepo{}
	issuer := NewIssuer(repo, nil, time.Hour, zap.NewNop())

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		req, err := issuer.Issue(context.Background(), "acct-1")
		require.NoError(t, err)
		// 32 bytes base64url-encoded without padding.
		assert.Len(t, req.Code, 43)
		assert.False(t, seen[req.Code], "code collision")
		seen[req.Code] = true
	}
}

func TestIssueSetsValidityWindow(t *testing.T) {
	repo := &fakeVerificationRepo{}
	issuer := NewIssuer(repo, nil, 48*time.Hour, zap.NewNop())

	before := time.Now().UTC()
	req, err := issuer.Issue(context.Background(), "acct-1")
	require.NoError(t, err)
	after := time.Now().UTC()

	assert.False(t, req.CreatedAt.Before(before))
	assert.False(t, req.CreatedAt.After(after))
	assert.Equal(t, req.CreatedAt.Add(48*time.Hour), req.ExpiresAt)
	assert.Nil(t, req.ConsumedAt)
}

func TestIssueFailsWhenPersistenceFails(t *testing.T) {
	repo := &fakeVerificationRepo{createErr: errors.New("write timeout")}
	cache := &fakeCodeCache{}
	issuer := NewIssuer(repo, cache, time.Hour, zap.NewNop())

	_, err := issuer.Issue(context.Background(), "acct-1")
	require.Error(t, err)
	assert.Empty(t, cache.codes)
}

func TestIssueToleratesCacheFailure(t *testing.T) {
	repo := &fakeVerificationRepo{}
	cache := &fakeCodeCache{setErr: errors.New("redis down")}
	issuer := NewIssuer(repo, cache, time.Hour, zap.NewNop())

	req, err := issuer.Issue(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.NotEmpty(t, req.Code)
	require.Len(t, repo.created, 1)
}
