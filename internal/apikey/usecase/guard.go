package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/apikey/service"
	"github.com/allisson/apikeys/internal/audit"
	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/metrics"
	"github.com/allisson/apikeys/internal/ratelimit"
	"github.com/allisson/apikeys/internal/registry"
)

// AuthRequest carries what the transport extracted from an incoming request.
// Empty strings mean the value was absent.
type AuthRequest struct {
	PresentedToken string
	SourceIP       string
	Origin         string // Origin header, or Referer when Origin is absent
	UserAgent      string
}

// AuthResult is the single outcome of an authentication attempt. Err is nil only
// when the token was authenticated; Token is only set in that case.
type AuthResult struct {
	Token      *domain.Token
	Kind       audit.EventKind // empty when no token was presented
	Err        error
	RetryAfter time.Duration
	RateLimit  *ratelimit.Decision
}

// Authenticated reports whether the attempt succeeded.
func (r *AuthResult) Authenticated() bool {
	return r.Err == nil
}

// GuardConfig configures the authentication pipeline.
type GuardConfig struct {
	// Environment pins the guard to one environment. Empty accepts every environment.
	Environment string
}

// Guard authenticates presented tokens. Checks run in a fixed order: format,
// lookup, revocation, expiry, IP, domain, rate limit. A revoked or expired token
// never reaches the restriction checks.
type Guard struct {
	config  GuardConfig
	catalog *domain.TypeCatalog
	hashers *registry.Registry[service.TokenHasher]
	repo    TokenRepository
	limits  *RateLimitResolver
	limiter ratelimit.Limiter
	auditor AuditEmitter
	metrics metrics.BusinessMetrics
	logger  *slog.Logger
	now     func() time.Time
}

var _ Authenticator = (*Guard)(nil)

// NewGuard creates the authentication pipeline. A nil limiter disables rate limiting.
func NewGuard(
	config GuardConfig,
	catalog *domain.TypeCatalog,
	hashers *registry.Registry[service.TokenHasher],
	repo TokenRepository,
	limits *RateLimitResolver,
	limiter ratelimit.Limiter,
	auditor AuditEmitter,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
	now func() time.Time,
) *Guard {
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{
		config:  config,
		catalog: catalog,
		hashers: hashers,
		repo:    repo,
		limits:  limits,
		limiter: limiter,
		auditor: auditor,
		metrics: businessMetrics,
		logger:  logger,
		now:     now,
	}
}

// Authenticate runs the pipeline. It never returns an error: every rejection is
// reported through the result and, except for a missing token, an audit event.
func (g *Guard) Authenticate(ctx context.Context, req AuthRequest) *AuthResult {
	start := time.Now()
	result := g.authenticate(ctx, req)

	status := "authenticated"
	if !result.Authenticated() {
		status = string(result.Kind)
		if status == "" {
			status = "missing"
		}
	}
	g.metrics.RecordOperation(ctx, "apikey", "authenticate", status)
	g.metrics.RecordDuration(ctx, "apikey", "authenticate", time.Since(start), status)
	return result
}

func (g *Guard) authenticate(ctx context.Context, req AuthRequest) *AuthResult {
	if req.PresentedToken == "" {
		return &AuthResult{Err: domain.ErrTokenMissing}
	}

	components, ok := service.ParseToken(req.PresentedToken)
	if !ok {
		return g.reject(ctx, req, nil, audit.KindFailed, domain.ErrMalformedToken, nil)
	}
	if _, ok := g.catalog.ByPrefix(components.Prefix); !ok {
		return g.reject(ctx, req, nil, audit.KindFailed, domain.ErrMalformedToken, nil)
	}
	if g.config.Environment != "" && components.Environment != g.config.Environment {
		return g.reject(ctx, req, nil, audit.KindFailed, domain.ErrEnvironmentNotAllowed, nil)
	}

	token, err := g.lookup(ctx, req.PresentedToken)
	if err != nil {
		if !apperrors.Is(err, domain.ErrTokenNotFound) && g.logger != nil {
			g.logger.Error("token lookup failed", slog.Any("error", err))
		}
		return g.reject(ctx, req, nil, audit.KindFailed, domain.ErrTokenNotFound, nil)
	}

	now := g.now()

	if token.IsRevokedAt(now) {
		return g.reject(ctx, req, token, audit.KindRevoked, domain.ErrTokenRevoked, nil)
	}
	if token.IsExpiredAt(now) {
		return g.reject(ctx, req, token, audit.KindExpired, domain.ErrTokenExpired, nil)
	}

	if len(token.AllowedIPs) > 0 && !domain.MatchIP(token.AllowedIPs, req.SourceIP) {
		return g.reject(ctx, req, token, audit.KindIPBlocked, domain.ErrIPRestricted, nil)
	}

	// An allowed-domain list admits matching browser origins even for server-side-only types.
	originHost, hasOrigin := domain.HostFromOrigin(req.Origin)
	if len(token.AllowedDomains) > 0 {
		if !hasOrigin || !domain.MatchDomain(token.AllowedDomains, originHost) {
			return g.reject(ctx, req, token, audit.KindDomainBlocked, domain.ErrDomainRestricted, nil)
		}
	} else if hasOrigin {
		if cfg, err := g.catalog.Get(token.Type); err == nil && cfg.ServerSideOnly {
			return g.reject(ctx, req, token, audit.KindDomainBlocked, domain.ErrServerSideOnly, nil)
		}
	}

	decision, rejected := g.checkRateLimit(ctx, req, token)
	if rejected != nil {
		return rejected
	}

	token.LastUsedAt = &now
	if err := g.repo.TouchLastUsed(ctx, token.ID, now); err != nil && g.logger != nil {
		g.logger.Warn("failed to record token use",
			slog.String("token_id", token.ID.String()),
			slog.Any("error", err),
		)
	}

	g.emit(ctx, req, token.ID, audit.KindAuthenticated, nil)
	return &AuthResult{Token: token, Kind: audit.KindAuthenticated, RateLimit: decision}
}

// lookup resolves the stored token, trying the default hasher first and then the
// others, and confirms the digest with a constant-time comparison.
func (g *Guard) lookup(ctx context.Context, plainToken string) (*domain.Token, error) {
	names := g.hashers.All()
	if defaultName := g.hashers.DefaultName(); defaultName != "" {
		ordered := []string{defaultName}
		for _, name := range names {
			if name != defaultName {
				ordered = append(ordered, name)
			}
		}
		names = ordered
	}

	for _, name := range names {
		hasher, err := g.hashers.Get(name)
		if err != nil {
			return nil, err
		}
		token, err := g.repo.GetByTokenHash(ctx, hasher.Hash(plainToken))
		if err != nil {
			if apperrors.Is(err, domain.ErrTokenNotFound) {
				continue
			}
			return nil, err
		}
		if token.Hasher != "" && token.Hasher != name {
			continue
		}
		if !hasher.Verify(plainToken, token.TokenHash) {
			continue
		}
		return token, nil
	}
	return nil, domain.ErrTokenNotFound
}

// checkRateLimit consumes one request from the token's bucket. A failing limiter
// backend lets the request through.
func (g *Guard) checkRateLimit(
	ctx context.Context,
	req AuthRequest,
	token *domain.Token,
) (*ratelimit.Decision, *AuthResult) {
	if g.limiter == nil || g.limits == nil {
		return nil, nil
	}
	limit, ok := g.limits.Resolve(token)
	if !ok {
		return nil, nil
	}

	decision, err := g.limiter.Allow(ctx, token.ID.String(), limit)
	if err != nil {
		if g.logger != nil {
			g.logger.Warn("rate limiter unavailable, allowing request",
				slog.String("token_id", token.ID.String()),
				slog.Any("error", err),
			)
		}
		return nil, nil
	}
	if decision.Allowed {
		return &decision, nil
	}

	metadata := map[string]any{
		"limit_per_minute":    limit,
		"retry_after_seconds": decision.RetryAfter.Seconds(),
	}
	result := g.reject(ctx, req, token, audit.KindRateLimited,
		&domain.RateLimitExceededError{RetryAfter: decision.RetryAfter}, metadata)
	result.RetryAfter = decision.RetryAfter
	result.RateLimit = &decision
	return nil, result
}

func (g *Guard) reject(
	ctx context.Context,
	req AuthRequest,
	token *domain.Token,
	kind audit.EventKind,
	err error,
	metadata map[string]any,
) *AuthResult {
	tokenID := uuid.Nil
	if token != nil {
		tokenID = token.ID
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["reason"] = err.Error()

	if g.logger != nil {
		g.logger.Debug("authentication rejected",
			slog.String("kind", kind.String()),
			slog.String("token_id", tokenID.String()),
			slog.String("source_ip", req.SourceIP),
		)
	}

	g.emit(ctx, req, tokenID, kind, metadata)
	return &AuthResult{Kind: kind, Err: err}
}

func (g *Guard) emit(
	ctx context.Context,
	req AuthRequest,
	tokenID uuid.UUID,
	kind audit.EventKind,
	metadata map[string]any,
) {
	if g.auditor == nil {
		return
	}
	event := audit.NewEvent(kind, tokenID, metadata)
	event.IPAddress = req.SourceIP
	event.UserAgent = req.UserAgent
	if err := g.auditor.Emit(ctx, event); err != nil && g.logger != nil {
		g.logger.Warn("failed to emit audit event",
			slog.String("kind", kind.String()),
			slog.Any("error", err),
		)
	}
}
