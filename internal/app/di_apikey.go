package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/allisson/apikeys/internal/apikey/domain"
	apikeyHTTP "github.com/allisson/apikeys/internal/apikey/http"
	apikeyRepository "github.com/allisson/apikeys/internal/apikey/repository"
	"github.com/allisson/apikeys/internal/apikey/service"
	apikeyUseCase "github.com/allisson/apikeys/internal/apikey/usecase"
	"github.com/allisson/apikeys/internal/audit"
	"github.com/allisson/apikeys/internal/config"
	"github.com/allisson/apikeys/internal/ratelimit"
	"github.com/allisson/apikeys/internal/registry"
)

// KMSService returns the KMS service used to unwrap the hashing pepper.
func (c *Container) KMSService() service.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = service.NewKMSService()
	})
	return c.kmsService
}

// TypeCatalog returns the configured token types.
func (c *Container) TypeCatalog() (*domain.TypeCatalog, error) {
	var err error
	c.catalogInit.Do(func() {
		c.catalog, err = domain.NewTypeCatalog(TokenTypeConfigs(c.config)...)
		if err != nil {
			err = fmt.Errorf("failed to build token type catalog: %w", err)
			c.initErrors["catalog"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["catalog"]; exists {
		return nil, storedErr
	}
	return c.catalog, nil
}

// Generators returns the secret generator registry.
func (c *Container) Generators() (*registry.Registry[service.SecretGenerator], error) {
	var err error
	c.generatorsInit.Do(func() {
		c.generators, err = service.NewGeneratorRegistry(c.config.TokenSecretLength, c.config.TokenGenerator)
		if err != nil {
			err = fmt.Errorf("failed to build generator registry: %w", err)
			c.initErrors["generators"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["generators"]; exists {
		return nil, storedErr
	}
	return c.generators, nil
}

// Hashers returns the token hasher registry.
func (c *Container) Hashers(ctx context.Context) (*registry.Registry[service.TokenHasher], error) {
	var err error
	c.hashersInit.Do(func() {
		c.hashers, err = c.initHashers(ctx)
		if err != nil {
			c.initErrors["hashers"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["hashers"]; exists {
		return nil, storedErr
	}
	return c.hashers, nil
}

// TokenRepository returns the token store selected by the database driver.
func (c *Container) TokenRepository() (apikeyUseCase.TokenRepository, error) {
	var err error
	c.tokenRepoInit.Do(func() {
		c.tokenRepo, err = c.initTokenRepository()
		if err != nil {
			c.initErrors["tokenRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tokenRepo"]; exists {
		return nil, storedErr
	}
	return c.tokenRepo, nil
}

// RevocationStrategies returns the revocation strategy registry.
func (c *Container) RevocationStrategies() (*registry.Registry[apikeyUseCase.RevocationStrategy], error) {
	var err error
	c.revocationsInit.Do(func() {
		c.revocations, err = c.initRevocationStrategies()
		if err != nil {
			c.initErrors["revocations"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["revocations"]; exists {
		return nil, storedErr
	}
	return c.revocations, nil
}

// RotationStrategies returns the rotation strategy registry.
func (c *Container) RotationStrategies() (*registry.Registry[apikeyUseCase.RotationStrategy], error) {
	var err error
	c.rotationsInit.Do(func() {
		c.rotations, err = c.initRotationStrategies()
		if err != nil {
			c.initErrors["rotations"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["rotations"]; exists {
		return nil, storedErr
	}
	return c.rotations, nil
}

// Hierarchy returns the derivation hierarchy.
func (c *Container) Hierarchy() (*apikeyUseCase.Hierarchy, error) {
	var err error
	c.hierarchyInit.Do(func() {
		var repo apikeyUseCase.TokenRepository
		repo, err = c.TokenRepository()
		if err != nil {
			err = fmt.Errorf("failed to get token repository for hierarchy: %w", err)
			c.initErrors["hierarchy"] = err
			return
		}
		c.hierarchy = apikeyUseCase.NewHierarchy(repo, c.derivationConfig())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["hierarchy"]; exists {
		return nil, storedErr
	}
	return c.hierarchy, nil
}

// RateLimiter returns the limiter backing the Guard.
func (c *Container) RateLimiter() (ratelimit.Limiter, error) {
	var err error
	c.limiterInit.Do(func() {
		c.limiter, err = c.initRateLimiter()
		if err != nil {
			c.initErrors["limiter"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["limiter"]; exists {
		return nil, storedErr
	}
	return c.limiter, nil
}

// AuditSigner returns the audit event signer, or nil when no signing key is configured.
func (c *Container) AuditSigner() (*audit.Signer, error) {
	var err error
	c.auditSignerInit.Do(func() {
		c.auditSigner, err = c.initAuditSigner()
		if err != nil {
			c.initErrors["auditSigner"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["auditSigner"]; exists {
		return nil, storedErr
	}
	return c.auditSigner, nil
}

// AuditDispatcher returns the dispatcher fanning audit events out to the active drivers.
func (c *Container) AuditDispatcher() (*audit.Dispatcher, error) {
	var err error
	c.auditInit.Do(func() {
		c.auditDispatcher, err = c.initAuditDispatcher()
		if err != nil {
			c.initErrors["auditDispatcher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["auditDispatcher"]; exists {
		return nil, storedErr
	}
	return c.auditDispatcher, nil
}

// Guard returns the token authentication pipeline.
func (c *Container) Guard() (*apikeyUseCase.Guard, error) {
	var err error
	c.guardInit.Do(func() {
		c.guard, err = c.initGuard()
		if err != nil {
			c.initErrors["guard"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["guard"]; exists {
		return nil, storedErr
	}
	return c.guard, nil
}

// TokenUseCase returns the token lifecycle use case.
func (c *Container) TokenUseCase() (apikeyUseCase.TokenUseCase, error) {
	var err error
	c.tokenUseCaseInit.Do(func() {
		c.tokenUC, err = c.initTokenUseCase()
		if err != nil {
			c.initErrors["tokenUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tokenUseCase"]; exists {
		return nil, storedErr
	}
	return c.tokenUC, nil
}

// TokenHandler returns the token management HTTP handler.
func (c *Container) TokenHandler() (*apikeyHTTP.TokenHandler, error) {
	var err error
	c.handlerInit.Do(func() {
		var useCase apikeyUseCase.TokenUseCase
		useCase, err = c.TokenUseCase()
		if err != nil {
			err = fmt.Errorf("failed to get token use case for token handler: %w", err)
			c.initErrors["tokenHandler"] = err
			return
		}
		c.handler = apikeyHTTP.NewTokenHandler(useCase, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tokenHandler"]; exists {
		return nil, storedErr
	}
	return c.handler, nil
}

// TokenTypeConfigs maps the configured token types to the domain catalog entries.
// Types without their own environment list inherit TOKEN_ENVIRONMENTS.
func TokenTypeConfigs(cfg *config.Config) []domain.TokenTypeConfig {
	configs := make([]domain.TokenTypeConfig, 0, len(cfg.TokenTypes))
	for _, settings := range cfg.TokenTypes {
		environments := settings.Environments
		if len(environments) == 0 {
			environments = cfg.TokenEnvironments
		}
		configs = append(configs, domain.TokenTypeConfig{
			Type:                  domain.TokenType(settings.Type),
			Prefix:                settings.Prefix,
			DefaultAbilities:      settings.Abilities,
			DefaultExpiration:     settings.Expiration,
			RateLimitPerMinute:    settings.RateLimitPerMinute,
			EnvironmentRateLimits: settings.EnvironmentRateLimits,
			AllowedEnvironments:   environments,
			ServerSideOnly:        settings.ServerSideOnly,
			RevocationStrategy:    settings.RevocationStrategy,
			RotationStrategy:      settings.RotationStrategy,
		})
	}
	return configs
}

func (c *Container) derivationConfig() apikeyUseCase.DerivationConfig {
	return apikeyUseCase.DerivationConfig{
		Enabled:              c.config.DerivationEnabled,
		MaxDepth:             c.config.DerivationMaxDepth,
		InheritRestrictions:  c.config.DerivationInheritRestrictions,
		EnforceAbilitySubset: c.config.DerivationEnforceAbilitySubset,
		EnforceExpiration:    c.config.DerivationEnforceExpiration,
	}
}

// initHashers resolves the pepper, unwrapping it through the KMS when a ciphertext is
// configured, and builds the hasher registry.
func (c *Container) initHashers(ctx context.Context) (*registry.Registry[service.TokenHasher], error) {
	var pepper []byte
	switch {
	case c.config.TokenHashPepperCiphertext != "":
		unwrapped, err := service.UnwrapPepper(
			ctx,
			c.KMSService(),
			c.config.KMSKeyURI,
			c.config.TokenHashPepperCiphertext,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap token hash pepper: %w", err)
		}
		pepper = unwrapped
	case c.config.TokenHashPepper != "":
		decoded, err := base64.StdEncoding.DecodeString(c.config.TokenHashPepper)
		if err != nil {
			return nil, fmt.Errorf("failed to decode token hash pepper: %w", err)
		}
		pepper = decoded
	}

	hashers, err := service.NewHasherRegistry(pepper, c.config.TokenHasher)
	if err != nil {
		return nil, fmt.Errorf("failed to build hasher registry: %w", err)
	}
	return hashers, nil
}

// initTokenRepository selects the token store based on the database driver.
func (c *Container) initTokenRepository() (apikeyUseCase.TokenRepository, error) {
	if c.config.DBDriver == config.DBDriverMemory {
		return apikeyRepository.NewMemoryTokenRepository(), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for token repository: %w", err)
	}

	switch c.config.DBDriver {
	case config.DBDriverMySQL:
		return apikeyRepository.NewMySQLTokenRepository(db), nil
	case config.DBDriverPostgres:
		return apikeyRepository.NewPostgreSQLTokenRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initRevocationStrategies() (*registry.Registry[apikeyUseCase.RevocationStrategy], error) {
	repo, err := c.TokenRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get token repository for revocation strategies: %w", err)
	}

	maxDepth := c.config.RevocationMaxDepth
	if maxDepth == 0 {
		maxDepth = c.config.DerivationMaxDepth
	}

	strategies, err := apikeyUseCase.NewRevocationRegistry(repo, time.Now, apikeyUseCase.RevocationConfig{
		DefaultStrategy: c.config.RevocationDefaultStrategy,
		TimedDelay:      c.config.RevocationTimedDelay,
		PartialTypes:    c.config.RevocationPartialTypes,
		MaxDepth:        maxDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build revocation strategies: %w", err)
	}
	return strategies, nil
}

func (c *Container) initRotationStrategies() (*registry.Registry[apikeyUseCase.RotationStrategy], error) {
	repo, err := c.TokenRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get token repository for rotation strategies: %w", err)
	}

	strategies, err := apikeyUseCase.NewRotationRegistry(repo, time.Now, apikeyUseCase.RotationConfig{
		DefaultStrategy:    c.config.RotationDefaultStrategy,
		GracePeriodMinutes: c.config.RotationGraceMinutes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build rotation strategies: %w", err)
	}
	return strategies, nil
}

// initRateLimiter builds the configured limiter backend.
func (c *Container) initRateLimiter() (ratelimit.Limiter, error) {
	switch c.config.RateLimitBackend {
	case config.RateLimitBackendRedis:
		client, err := c.RedisClient()
		if err != nil {
			return nil, fmt.Errorf("failed to get redis client for rate limiter: %w", err)
		}
		return ratelimit.NewRedisLimiter(client, c.config.RedisKeyPrefix), nil
	case config.RateLimitBackendMemory, "":
		return ratelimit.NewMemoryLimiter(c.config.RateLimitCacheSize, c.config.RateLimitIdleTTL), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend: %s", c.config.RateLimitBackend)
	}
}

func (c *Container) initAuditSigner() (*audit.Signer, error) {
	if c.config.AuditSigningKey == "" {
		return nil, nil
	}

	rootKey, err := base64.StdEncoding.DecodeString(c.config.AuditSigningKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audit signing key: %w", err)
	}

	signer, err := audit.NewSigner(rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit signer: %w", err)
	}
	return signer, nil
}

// auditDrivers registers every driver the current storage can serve. The outbox
// driver needs a SQL database.
func (c *Container) auditDrivers() (*registry.Registry[audit.Driver], error) {
	drivers := registry.New[audit.Driver]("audit driver")
	drivers.Register(audit.DriverLog, audit.NewLogDriver(c.Logger()))
	drivers.Register(audit.DriverNull, audit.NullDriver{})
	drivers.Register(audit.DriverMemory, audit.NewMemoryDriver())

	if c.config.DBDriver != config.DBDriverMemory {
		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			return nil, fmt.Errorf("failed to get outbox repository for audit drivers: %w", err)
		}
		drivers.Register(audit.DriverOutbox, audit.NewOutboxDriver(outboxRepo))
	}

	if c.config.AuditDefaultDriver != "" {
		if err := drivers.SetDefault(c.config.AuditDefaultDriver); err != nil {
			return nil, err
		}
	}
	return drivers, nil
}

// auditDeliveryDriver returns the driver that receives events drained from the outbox.
func (c *Container) auditDeliveryDriver() (audit.Driver, error) {
	if c.config.AuditDeliveryDriver == audit.DriverOutbox {
		return nil, fmt.Errorf("the outbox cannot deliver to itself")
	}

	drivers, err := c.auditDrivers()
	if err != nil {
		return nil, err
	}
	return drivers.Resolve(c.config.AuditDeliveryDriver)
}

func (c *Container) initAuditDispatcher() (*audit.Dispatcher, error) {
	drivers, err := c.auditDrivers()
	if err != nil {
		return nil, err
	}

	signer, err := c.AuditSigner()
	if err != nil {
		return nil, err
	}

	dispatcher, err := audit.NewDispatcher(drivers, c.config.AuditDrivers, signer, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create audit dispatcher: %w", err)
	}
	return dispatcher, nil
}

func (c *Container) initGuard() (*apikeyUseCase.Guard, error) {
	catalog, err := c.TypeCatalog()
	if err != nil {
		return nil, err
	}

	hashers, err := c.Hashers(context.Background())
	if err != nil {
		return nil, err
	}

	repo, err := c.TokenRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get token repository for guard: %w", err)
	}

	limiter, err := c.RateLimiter()
	if err != nil {
		return nil, err
	}

	dispatcher, err := c.AuditDispatcher()
	if err != nil {
		return nil, err
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for guard: %w", err)
	}

	limits := apikeyUseCase.NewRateLimitResolver(catalog, apikeyUseCase.RateLimitPolicy{
		GlobalPerMinute:     c.config.RateLimitDefaultPerMinute,
		EnvironmentDefaults: c.config.RateLimitEnvDefaults,
	})

	return apikeyUseCase.NewGuard(
		apikeyUseCase.GuardConfig{Environment: c.config.GuardEnvironment},
		catalog,
		hashers,
		repo,
		limits,
		limiter,
		dispatcher,
		businessMetrics,
		c.Logger(),
		nil,
	), nil
}

func (c *Container) initTokenUseCase() (apikeyUseCase.TokenUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for token use case: %w", err)
	}

	repo, err := c.TokenRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get token repository for token use case: %w", err)
	}

	catalog, err := c.TypeCatalog()
	if err != nil {
		return nil, err
	}

	generators, err := c.Generators()
	if err != nil {
		return nil, err
	}

	hashers, err := c.Hashers(context.Background())
	if err != nil {
		return nil, err
	}

	revocations, err := c.RevocationStrategies()
	if err != nil {
		return nil, err
	}

	rotations, err := c.RotationStrategies()
	if err != nil {
		return nil, err
	}

	hierarchy, err := c.Hierarchy()
	if err != nil {
		return nil, err
	}

	dispatcher, err := c.AuditDispatcher()
	if err != nil {
		return nil, err
	}

	baseUseCase := apikeyUseCase.NewTokenUseCase(
		txManager,
		repo,
		catalog,
		service.NewCodec(generators),
		hashers,
		revocations,
		rotations,
		hierarchy,
		dispatcher,
		nil,
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for token use case: %w", err)
		}
		return apikeyUseCase.NewTokenUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}
