package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"catalog-api/internal/config"
	"catalog-api/internal/util"
)

// PreparedStatements holds the statements used by the repositories.
type PreparedStatements struct {
	CreateAccount              *gocql.Query
	GetAccountByID             *gocql.Query
	ListAccounts               *gocql.Query
	MarkVerified               *gocql.Query
	GetEmailClaim              *gocql.Query
	GetUsernameClaim           *gocql.Query
	CreateVerification         *gocql.Query
	CreateVerificationByCode   *gocql.Query
	GetVerificationByCode      *gocql.Query
	ListVerificationsByAccount *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateAccount = s.Session.Query(`
        INSERT INTO accounts (
            account_bucket, account_id, username, email_address, full_name,
            password_hash, password_salt, password_iterations,
            is_verified, verified_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetAccountByID = s.Session.Query(`
        SELECT account_bucket, account_id, username, email_address, full_name,
               password_hash, password_salt, password_iterations,
               is_verified, verified_at, created_at, updated_at
        FROM accounts WHERE account_bucket = ? AND account_id = ?`)

	prepared.ListAccounts = s.Session.Query(`
        SELECT account_bucket, account_id, username, email_address, full_name,
               password_hash, password_salt, password_iterations,
               is_verified, verified_at, created_at, updated_at
        FROM accounts`)

	prepared.MarkVerified = s.Session.Query(`
        UPDATE accounts SET is_verified = true, verified_at = ?, updated_at = ?
        WHERE account_bucket = ? AND account_id = ?`)

	prepared.GetEmailClaim = s.Session.Query(`
        SELECT account_id FROM accounts_by_email WHERE email_lower = ?`)

	prepared.GetUsernameClaim = s.Session.Query(`
        SELECT account_id FROM accounts_by_username WHERE username_lower = ?`)

	prepared.CreateVerification = s.Session.Query(`
        INSERT INTO verification_requests (account_id, created_at, code, expires_at, consumed_at)
        VALUES (?, ?, ?, ?, ?)`)

	prepared.CreateVerificationByCode = s.Session.Query(`
        INSERT INTO verification_by_code (code, account_id, created_at, expires_at, consumed_at)
        VALUES (?, ?, ?, ?, ?)`)

	prepared.GetVerificationByCode = s.Session.Query(`
        SELECT code, account_id, created_at, expires_at, consumed_at
        FROM verification_by_code WHERE code = ?`)

	prepared.ListVerificationsByAccount = s.Session.Query(`
        SELECT code, account_id, created_at, expires_at, consumed_at
        FROM verification_requests WHERE account_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true
	return nil
}

// ExecuteWithRetry runs a mutation, retrying transient errors.
func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, retries int) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = query.Exec(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	return err
}

// ScanWithRetry runs a single-row read, retrying transient errors.
// gocql.ErrNotFound is terminal and returned immediately.
func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = query.Scan(dest...)
		if err == nil || err == gocql.ErrNotFound {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	return err
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	if err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName); err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (s *ScyllaClient) WithContext(ctx context.Context, q *gocql.Query) *gocql.Query {
	if ctx == nil {
		return q
	}
	return q.WithContext(ctx)
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
	}
}
