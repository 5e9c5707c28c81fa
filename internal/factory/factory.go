package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"catalog-api/internal/bucketing"
	"catalog-api/internal/client"
	"catalog-api/internal/config"
	"catalog-api/internal/hashing"
	"catalog-api/internal/mailer"
	"catalog-api/internal/report"
	redisrepo "catalog-api/internal/repository/redis"
	"catalog-api/internal/repository/scylla"
	"catalog-api/internal/service"
	"catalog-api/internal/tls"
	"catalog-api/internal/util"
	"catalog-api/internal/verification"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	eventProducer    *client.EventProducer
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher           *hashing.Hasher
	bucketingManager *bucketing.Manager

	// Repositories and collaborators
	accountRepository scylla.AccountRepository
	verificationRepo  scylla.VerificationRepository
	verificationCache *redisrepo.VerificationCache
	resendThrottle    *redisrepo.ResendThrottle
	issuer            *verification.Issuer
	dispatcher        *mailer.Dispatcher
	collector         report.Collector

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewManager(&tls.Config{
			EnableTLS:   cfg.Server.EnableTLS,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			DevCertDir:  cfg.Server.DevCertDir,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("clickhouse_enabled", cfg.ClickHouse.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka is optional: account events are best-effort
	if f.config.Kafka.Enabled {
		if producer, err := client.NewEventProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without events", util.ErrorField(err))
		} else {
			f.eventProducer = producer
			util.Info("Kafka event producer initialized")
		}
	}

	// ClickHouse is optional: error reports degrade to logs without it
	if f.config.ClickHouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = chClient
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing and bucketing managers
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewManager(f.config)

	util.Info("Managers initialized successfully",
		util.Bool("hashing_initialized", f.hasher != nil),
		util.Bool("bucketing_initialized", f.bucketingManager != nil),
	)
}

// ==============================
// Repositories and collaborators
// ==============================

func (f *Factory) AccountRepository() scylla.AccountRepository {
	if f.accountRepository == nil {
		f.accountRepository = scylla.NewAccountRepository(
			f.ScyllaClient(),
			f.BucketingManager(),
			util.Get(),
		)
	}
	return f.accountRepository
}

func (f *Factory) VerificationRepository() scylla.VerificationRepository {
	if f.verificationRepo == nil {
		f.verificationRepo = scylla.NewVerificationRepository(f.ScyllaClient(), util.Get())
	}
	return f.verificationRepo
}

func (f *Factory) VerificationCache() *redisrepo.VerificationCache {
	if f.verificationCache == nil && f.redisClient != nil {
		f.verificationCache = redisrepo.NewVerificationCache(f.redisClient)
	}
	return f.verificationCache
}

func (f *Factory) ResendThrottle() *redisrepo.ResendThrottle {
	if f.resendThrottle == nil && f.redisClient != nil {
		f.resendThrottle = redisrepo.NewResendThrottle(f.redisClient, f.config.Verification.ResendCooldown)
	}
	return f.resendThrottle
}

func (f *Factory) Issuer() *verification.Issuer {
	if f.issuer == nil {
		var cache verification.CodeCache
		if c := f.VerificationCache(); c != nil {
			cache = c
		}
		f.issuer = verification.NewIssuer(
			f.VerificationRepository(),
			cache,
			f.config.Verification.TTL,
			util.Get(),
		)
	}
	return f.issuer
}

func (f *Factory) Dispatcher() *mailer.Dispatcher {
	if f.dispatcher == nil {
		sender := mailer.NewProviderClient(f.config)
		f.dispatcher = mailer.NewDispatcher(sender, mailer.DispatcherConfig{
			BaseURL:  f.config.Verification.BaseURL,
			From:     f.config.Email.From,
			FromName: f.config.Email.FromName,
			Enabled:  f.config.Email.Enabled,
		}, util.Get())
	}
	return f.dispatcher
}

func (f *Factory) Collector() report.Collector {
	if f.collector == nil {
		if f.clickhouseClient != nil {
			f.collector = report.NewClickHouseCollector(f.clickhouseClient, f.BucketingManager(), util.Get())
		} else {
			f.collector = report.Nop{}
		}
	}
	return f.collector
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		var events service.EventPublisher
		if f.eventProducer != nil {
			events = f.eventProducer
		}
		var limiter service.ResendLimiter
		if t := f.ResendThrottle(); t != nil {
			limiter = t
		}
		var cache verification.CodeCache
		if c := f.VerificationCache(); c != nil {
			cache = c
		}

		f.serviceFactory = service.NewServiceFactory(
			f.AccountRepository(),
			f.VerificationRepository(),
			f.Hasher(),
			f.Issuer(),
			f.Dispatcher(),
			f.Collector(),
			events,
			limiter,
			cache,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.eventProducer != nil {
		if err := f.eventProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.hasher == nil {
		healthErrors["hasher"] = fmt.Errorf("hasher not initialized")
	}
	if f.bucketingManager == nil {
		healthErrors["bucketing"] = fmt.Errorf("bucketing manager not initialized")
	}

	if f.accountRepository != nil {
		if err := f.accountRepository.HealthCheck(ctx); err != nil {
			healthErrors["account_repository"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.eventProducer != nil {
			if err := f.eventProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}

func (f *Factory) ScyllaClient() *scylla.ScyllaClient {
	return f.scyllaClient
}

func (f *Factory) Hasher() *hashing.Hasher {
	return f.hasher
}

func (f *Factory) BucketingManager() *bucketing.Manager {
	return f.bucketingManager
}
