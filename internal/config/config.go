package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"catalog-api/internal/util"
)

// Config holds all runtime configuration, loaded once at startup from the
// environment (optionally seeded from a .env file in development).
type Config struct {
	Environment string

	Server       ServerConfig
	Scylla       ScyllaConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	ClickHouse   ClickHouseConfig
	Hashing      HashingConfig
	Verification VerificationConfig
	Email        EmailConfig
	Logging      LoggingConfig
	Bucketing    BucketingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	TLSPort      int
	CertFile     string
	KeyFile      string
	DevCertDir   string

	AllowedOrigins []string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ClickHouseConfig struct {
	Enabled  bool
	URL      string
	Database string
	Username string
	Password string
}

type HashingConfig struct {
	// Iterations is the PBKDF2 work factor applied to newly created
	// accounts. Existing accounts keep the count they were hashed with, so
	// this can be raised at any time without invalidating stored hashes.
	Iterations int
	SaltLength int
	KeyLength  int
}

type VerificationConfig struct {
	// BaseURL is the public origin embedded in verification links. It is
	// injected here rather than read from a global environment switch so the
	// mail dispatcher is constructed with an explicit value.
	BaseURL string
	// TTL bounds how long an issued code stays valid.
	TTL time.Duration
	// ResendCooldown throttles repeat verification emails per address.
	ResendCooldown time.Duration
}

type EmailConfig struct {
	Enabled  bool
	APIURL   string
	APIKey   string
	From     string
	FromName string
	Timeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type BucketingConfig struct {
	AccountBuckets int
	EventBuckets   int
}

// LoadConfig reads configuration from the environment. A .env file is
// honoured when present; real environment variables win.
func LoadConfig() *Config {
	_ = godotenv.Load()

	env := util.GetEnv("ENVIRONMENT", "development")

	return &Config{
		Environment: env,
		Server: ServerConfig{
			Host:         util.GetEnv("SERVER_HOST", "0.0.0.0"),
			Port:         util.GetEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			EnableTLS:    util.GetEnvBool("SERVER_ENABLE_TLS", false),
			TLSPort:      util.GetEnvInt("SERVER_TLS_PORT", 8443),
			CertFile:     util.GetEnv("SERVER_CERT_FILE", ""),
			KeyFile:      util.GetEnv("SERVER_KEY_FILE", ""),
			DevCertDir:   util.GetEnv("SERVER_DEV_CERT_DIR", "./certs"),

			AllowedOrigins: util.GetEnvSlice("SERVER_ALLOWED_ORIGINS", []string{"https://*"}),
		},
		Scylla: ScyllaConfig{
			Nodes:    util.GetEnvSlice("SCYLLA_NODES", []string{"127.0.0.1:9042"}),
			Keyspace: util.GetEnv("SCYLLA_KEYSPACE", "catalog"),
			Username: util.GetEnv("SCYLLA_USERNAME", ""),
			Password: util.GetEnv("SCYLLA_PASSWORD", ""),
		},
		Redis: RedisConfig{
			URL:      util.GetEnv("REDIS_URL", "redis://127.0.0.1:6379"),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       util.GetEnvInt("REDIS_DB", 0),
			PoolSize: util.GetEnvInt("REDIS_POOL_SIZE", 50),
		},
		Kafka: KafkaConfig{
			Enabled: util.GetEnvBool("KAFKA_ENABLED", false),
			Brokers: util.GetEnvSlice("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
			Topic:   util.GetEnv("KAFKA_ACCOUNT_EVENTS_TOPIC", "account-events"),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  util.GetEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      util.GetEnv("CLICKHOUSE_URL", "127.0.0.1:9000"),
			Database: util.GetEnv("CLICKHOUSE_DATABASE", "catalog"),
			Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
			Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Hashing: HashingConfig{
			Iterations: util.GetEnvInt("HASHING_PBKDF2_ITERATIONS", 210000),
			SaltLength: util.GetEnvInt("HASHING_SALT_LENGTH", 32),
			KeyLength:  util.GetEnvInt("HASHING_KEY_LENGTH", 32),
		},
		Verification: VerificationConfig{
			BaseURL:        util.GetEnv("VERIFICATION_BASE_URL", defaultVerificationBaseURL(env)),
			TTL:            util.GetEnvDuration("VERIFICATION_TTL", 48*time.Hour),
			ResendCooldown: util.GetEnvDuration("VERIFICATION_RESEND_COOLDOWN", 5*time.Minute),
		},
		Email: EmailConfig{
			Enabled:  util.GetEnvBool("EMAIL_ENABLED", true),
			APIURL:   util.GetEnv("EMAIL_API_URL", "https://api.resend.com"),
			APIKey:   util.GetEnv("EMAIL_API_KEY", ""),
			From:     util.GetEnv("EMAIL_FROM", "support@catalog.local"),
			FromName: util.GetEnv("EMAIL_FROM_NAME", "Catalog API"),
			Timeout:  util.GetEnvDuration("EMAIL_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  util.GetEnv("LOG_LEVEL", "info"),
			Format: util.GetEnv("LOG_FORMAT", "json"),
		},
		Bucketing: BucketingConfig{
			AccountBuckets: util.GetEnvInt("BUCKETING_ACCOUNT_BUCKETS", 64),
			EventBuckets:   util.GetEnvInt("BUCKETING_EVENT_BUCKETS", 16),
		},
	}
}

func defaultVerificationBaseURL(env string) string {
	if env == "production" {
		return "https://catalog.example.com"
	}
	return "http://localhost:3000"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
