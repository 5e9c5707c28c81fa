package service

import (
	"go.uber.org/zap"

	"catalog-api/internal/hashing"
	"catalog-api/internal/mailer"
	"catalog-api/internal/report"
	"catalog-api/internal/repository/scylla"
	"catalog-api/internal/verification"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	accountRepo      scylla.AccountRepository
	verificationRepo scylla.VerificationRepository
	hasher           *hashing.Hasher
	issuer           *verification.Issuer
	dispatcher       *mailer.Dispatcher
	collector        report.Collector
	events           EventPublisher
	resendLimiter    ResendLimiter
	codeCache        verification.CodeCache
	logger           *zap.Logger

	accountService *AccountService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	accountRepo scylla.AccountRepository,
	verificationRepo scylla.VerificationRepository,
	hasher *hashing.Hasher,
	issuer *verification.Issuer,
	dispatcher *mailer.Dispatcher,
	collector report.Collector,
	events EventPublisher,
	resendLimiter ResendLimiter,
	codeCache verification.CodeCache,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		accountRepo:      accountRepo,
		verificationRepo: verificationRepo,
		hasher:           hasher,
		issuer:           issuer,
		dispatcher:       dispatcher,
		collector:        collector,
		events:           events,
		resendLimiter:    resendLimiter,
		codeCache:        codeCache,
		logger:           logger,
	}
}

// AccountService returns the account service instance (singleton)
func (f *ServiceFactory) AccountService() *AccountService {
	if f.accountService == nil {
		f.accountService = NewAccountService(
			f.accountRepo,
			f.verificationRepo,
			f.hasher,
			f.issuer,
			f.dispatcher,
			f.collector,
			f.events,
			f.resendLimiter,
			f.codeCache,
			f.logger,
		)
	}
	return f.accountService
}
