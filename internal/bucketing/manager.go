package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"catalog-api/internal/config"
)

// Manager assigns consistent partition buckets. Account rows are spread over
// a fixed number of buckets so the Scylla partitions stay bounded; event
// buckets do the same for the error-report sink.
type Manager struct {
	accountBuckets int
	eventBuckets   int
	hasherPool     sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		accountBuckets: cfg.Bucketing.AccountBuckets,
		eventBuckets:   cfg.Bucketing.EventBuckets,
	}

	// Pool of hash functions to avoid allocation overhead
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// GetAccountBucket returns the consistent bucket for an account id
// (0 to accountBuckets-1).
func (m *Manager) GetAccountBucket(accountID string) int {
	return m.getBucket(accountID, m.accountBuckets)
}

// GetEventBucket returns the bucket for event rows.
func (m *Manager) GetEventBucket(identifier string) int {
	return m.getBucket(identifier, m.eventBuckets)
}

// GetDateBucket returns the UTC date partition key for event rows.
func (m *Manager) GetDateBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (m *Manager) AccountBuckets() int {
	return m.accountBuckets
}

func (m *Manager) getBucket(key string, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}
	return int(m.getHash(key) % uint64(numBuckets))
}

func (m *Manager) getHash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
