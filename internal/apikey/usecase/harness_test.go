package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/apikey/repository"
	"github.com/allisson/apikeys/internal/apikey/service"
	"github.com/allisson/apikeys/internal/audit"
	"github.com/allisson/apikeys/internal/database"
	"github.com/allisson/apikeys/internal/ratelimit"
	"github.com/allisson/apikeys/internal/registry"
)

// testClock is a settable clock shared by every component of a harness.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harnessConfig struct {
	typeConfigs []domain.TokenTypeConfig
	derivation  DerivationConfig
	revocation  RevocationConfig
	rotation    RotationConfig
	rateLimits  RateLimitPolicy
	limiter     ratelimit.Limiter
	environment string
	wrapRepo    func(TokenRepository) TokenRepository
}

type harnessOption func(*harnessConfig)

func withTypeConfigs(configs ...domain.TokenTypeConfig) harnessOption {
	return func(c *harnessConfig) { c.typeConfigs = configs }
}

func withDerivation(cfg DerivationConfig) harnessOption {
	return func(c *harnessConfig) { c.derivation = cfg }
}

func withRevocation(cfg RevocationConfig) harnessOption {
	return func(c *harnessConfig) { c.revocation = cfg }
}

func withRateLimits(policy RateLimitPolicy, limiter ratelimit.Limiter) harnessOption {
	return func(c *harnessConfig) {
		c.rateLimits = policy
		c.limiter = limiter
	}
}

// withWrappedRepository routes the token use case through wrap while the guard and
// strategies keep using the memory store directly.
func withWrappedRepository(wrap func(TokenRepository) TokenRepository) harnessOption {
	return func(c *harnessConfig) { c.wrapRepo = wrap }
}

func withGuardEnvironment(env string) harnessOption {
	return func(c *harnessConfig) { c.environment = env }
}

// harness wires the engine over the in-memory store with a memory audit driver.
type harness struct {
	clock       *testClock
	repo        *repository.MemoryTokenRepository
	catalog     *domain.TypeCatalog
	hashers     *registry.Registry[service.TokenHasher]
	revocations *registry.Registry[RevocationStrategy]
	rotations   *registry.Registry[RotationStrategy]
	hierarchy   *Hierarchy
	events      *audit.MemoryDriver
	tokens      TokenUseCase
	guard       *Guard
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{
		typeConfigs: domain.DefaultTypeConfigs(),
		derivation:  DefaultDerivationConfig(),
		revocation: RevocationConfig{
			DefaultStrategy: RevocationNone,
			TimedDelay:      time.Hour,
			PartialTypes:    []string{"secret", "restricted"},
			MaxDepth:        3,
		},
		rotation: RotationConfig{
			DefaultStrategy:    RotationImmediate,
			GracePeriodMinutes: 60,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := newTestClock()
	repo := repository.NewMemoryTokenRepository()

	catalog, err := domain.NewTypeCatalog(cfg.typeConfigs...)
	require.NoError(t, err)

	generators, err := service.NewGeneratorRegistry(32, service.GeneratorAlphanumeric)
	require.NoError(t, err)
	hashers, err := service.NewHasherRegistry([]byte("0123456789abcdef0123456789abcdef"), service.HasherSHA256)
	require.NoError(t, err)

	revocations, err := NewRevocationRegistry(repo, clock.Now, cfg.revocation)
	require.NoError(t, err)
	rotations, err := NewRotationRegistry(repo, clock.Now, cfg.rotation)
	require.NoError(t, err)

	events := audit.NewMemoryDriver()
	drivers := registry.New[audit.Driver]("audit driver")
	drivers.Register("memory", events)
	dispatcher, err := audit.NewDispatcher(drivers, nil, nil, nil)
	require.NoError(t, err)

	hierarchy := NewHierarchy(repo, cfg.derivation)

	var tokenRepo TokenRepository = repo
	if cfg.wrapRepo != nil {
		tokenRepo = cfg.wrapRepo(repo)
	}

	tokens := NewTokenUseCase(
		database.NewNopTxManager(),
		tokenRepo,
		catalog,
		service.NewCodec(generators),
		hashers,
		revocations,
		rotations,
		hierarchy,
		dispatcher,
		clock.Now,
	)

	guard := NewGuard(
		GuardConfig{Environment: cfg.environment},
		catalog,
		hashers,
		repo,
		NewRateLimitResolver(catalog, cfg.rateLimits),
		cfg.limiter,
		dispatcher,
		nil,
		nil,
		clock.Now,
	)

	return &harness{
		clock:       clock,
		repo:        repo,
		catalog:     catalog,
		hashers:     hashers,
		revocations: revocations,
		rotations:   rotations,
		hierarchy:   hierarchy,
		events:      events,
		tokens:      tokens,
		guard:       guard,
	}
}

func (h *harness) issue(t *testing.T, input *domain.IssueTokenInput) *domain.IssueTokenOutput {
	t.Helper()
	if input.Environment == "" {
		input.Environment = domain.EnvironmentTest
	}
	output, err := h.tokens.Issue(context.Background(), input)
	require.NoError(t, err)
	return output
}

func (h *harness) issueGroup(t *testing.T) *domain.IssueGroupOutput {
	t.Helper()
	output, err := h.tokens.IssueGroup(context.Background(), &domain.IssueGroupInput{
		Name:        "acme",
		Environment: domain.EnvironmentTest,
		Owner:       domain.NewEntityRef("team", "acme"),
	})
	require.NoError(t, err)
	return output
}

func (h *harness) derive(t *testing.T, parentID uuid.UUID, input *domain.DeriveTokenInput) *domain.IssueTokenOutput {
	t.Helper()
	if input == nil {
		input = &domain.DeriveTokenInput{}
	}
	output, err := h.tokens.Derive(context.Background(), parentID, input)
	require.NoError(t, err)
	return output
}

func (h *harness) stored(t *testing.T, tokenID uuid.UUID) *domain.Token {
	t.Helper()
	token, err := h.repo.Get(context.Background(), tokenID)
	require.NoError(t, err)
	return token
}

func (h *harness) authenticate(plainToken string) *AuthResult {
	return h.guard.Authenticate(context.Background(), AuthRequest{
		PresentedToken: plainToken,
		SourceIP:       "10.0.0.1",
	})
}

// eventsOf returns the recorded events of one kind in emission order.
func (h *harness) eventsOf(kind audit.EventKind) []*audit.Event {
	var result []*audit.Event
	for _, event := range h.events.Events() {
		if event.Kind == kind {
			result = append(result, event)
		}
	}
	return result
}

func intPtr(i int) *int {
	return &i
}

func timePtr(t time.Time) *time.Time {
	return &t
}
