package usecase

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/apikey/service"
	"github.com/allisson/apikeys/internal/audit"
	"github.com/allisson/apikeys/internal/database"
	"github.com/allisson/apikeys/internal/registry"
)

// tokenUseCase implements TokenUseCase. Every mutation and its audit events run in
// one transaction, so an outbox audit driver commits or rolls back with the change.
type tokenUseCase struct {
	txManager   database.TxManager
	repo        TokenRepository
	catalog     *domain.TypeCatalog
	codec       *service.Codec
	hashers     *registry.Registry[service.TokenHasher]
	revocations *registry.Registry[RevocationStrategy]
	rotations   *registry.Registry[RotationStrategy]
	hierarchy   *Hierarchy
	auditor     AuditEmitter
	now         func() time.Time
}

// Issue creates a root token.
//
// Nil abilities fall back to the type's default abilities and a nil expiration to
// the type's default lifetime. The environment must be allowed for the type.
func (uc *tokenUseCase) Issue(
	ctx context.Context,
	input *domain.IssueTokenInput,
) (*domain.IssueTokenOutput, error) {
	cfg, err := uc.catalog.Get(input.Type)
	if err != nil {
		return nil, err
	}

	token, plainToken, err := uc.newRootToken(cfg, input)
	if err != nil {
		return nil, err
	}

	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.repo.Create(ctx, token); err != nil {
			return err
		}
		return uc.emit(ctx, audit.KindCreated, token.ID, map[string]any{
			"type":        token.Type.String(),
			"environment": token.Environment,
		})
	})
	if err != nil {
		return nil, err
	}

	return &domain.IssueTokenOutput{Token: token, PlainToken: plainToken}, nil
}

// IssueGroup creates one token per requested type under a new group. Empty Types
// issues one token of every configured type. Repeated types are issued once.
func (uc *tokenUseCase) IssueGroup(
	ctx context.Context,
	input *domain.IssueGroupInput,
) (*domain.IssueGroupOutput, error) {
	types := input.Types
	if len(types) == 0 {
		types = uc.catalog.Types()
	}

	now := uc.now().UTC()
	group := &domain.TokenGroup{
		ID:        uuid.Must(uuid.NewV7()),
		Name:      input.Name,
		Owner:     input.Owner.Clone(),
		CreatedAt: now,
	}
	plainTokens := make(map[domain.TokenType]string, len(types))

	for _, tokenType := range types {
		if _, done := plainTokens[tokenType]; done {
			continue
		}
		cfg, err := uc.catalog.Get(tokenType)
		if err != nil {
			return nil, err
		}
		token, plainToken, err := uc.newRootToken(cfg, &domain.IssueTokenInput{
			Type:        tokenType,
			Environment: input.Environment,
			Name:        input.Name,
			AllowedIPs:  input.AllowedIPs,
			Owner:       input.Owner,
			Context:     input.Context,
			Boundary:    input.Boundary,
			Metadata:    input.Metadata,
		})
		if err != nil {
			return nil, err
		}
		groupID := group.ID
		token.GroupID = &groupID
		group.Tokens = append(group.Tokens, token)
		plainTokens[tokenType] = plainToken
	}

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.repo.CreateGroup(ctx, group); err != nil {
			return err
		}
		for _, token := range group.Tokens {
			if err := uc.repo.Create(ctx, token); err != nil {
				return err
			}
			if err := uc.emit(ctx, audit.KindCreated, token.ID, map[string]any{
				"type":        token.Type.String(),
				"environment": token.Environment,
				"group_id":    group.ID.String(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &domain.IssueGroupOutput{Group: group, PlainTokens: plainTokens}, nil
}

// Get retrieves a token by ID.
func (uc *tokenUseCase) Get(ctx context.Context, tokenID uuid.UUID) (*domain.Token, error) {
	return uc.repo.Get(ctx, tokenID)
}

// GetGroup retrieves a group with its members.
func (uc *tokenUseCase) GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.TokenGroup, error) {
	return uc.repo.GetGroup(ctx, groupID)
}

// Revoke revokes a token and whatever else the strategy affects. A revoked event is
// emitted for each token whose revocation instant actually changed, so repeating a
// revocation emits nothing.
func (uc *tokenUseCase) Revoke(
	ctx context.Context,
	tokenID uuid.UUID,
	strategyName string,
) ([]*domain.Token, error) {
	var affected []*domain.Token

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		token, err := uc.repo.Get(ctx, tokenID)
		if err != nil {
			return err
		}
		strategy, err := uc.revocationStrategy(token, strategyName)
		if err != nil {
			return err
		}

		preview, err := strategy.AffectedTokens(ctx, token)
		if err != nil {
			return err
		}
		before := make(map[uuid.UUID]*time.Time, len(preview))
		for _, t := range preview {
			before[t.ID] = t.RevokedAt
		}

		affected, err = strategy.Revoke(ctx, token)
		if err != nil {
			return err
		}

		for _, t := range affected {
			if previous, seen := before[t.ID]; seen && sameInstant(previous, t.RevokedAt) {
				continue
			}
			if err := uc.emit(ctx, audit.KindRevoked, t.ID, map[string]any{
				"strategy":     strategy.Name(),
				"initiated_by": token.ID.String(),
				"effective_at": t.RevokedAt.Format(time.RFC3339),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// PreviewRevocation returns the tokens Revoke would affect without mutating them.
func (uc *tokenUseCase) PreviewRevocation(
	ctx context.Context,
	tokenID uuid.UUID,
	strategyName string,
) ([]*domain.Token, error) {
	token, err := uc.repo.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	strategy, err := uc.revocationStrategy(token, strategyName)
	if err != nil {
		return nil, err
	}
	return strategy.AffectedTokens(ctx, token)
}

// Rotate replaces a token with a fresh one carrying the same type, environment,
// abilities, restrictions, references, parent and group. The two tokens are linked
// both ways and the strategy decides what happens to the old one.
func (uc *tokenUseCase) Rotate(
	ctx context.Context,
	tokenID uuid.UUID,
	strategyName string,
) (*domain.RotateTokenOutput, error) {
	var output *domain.RotateTokenOutput

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		oldToken, err := uc.repo.Get(ctx, tokenID)
		if err != nil {
			return err
		}

		now := uc.now().UTC()
		switch {
		case oldToken.IsRevokedAt(now):
			return domain.ErrTokenRevoked
		case oldToken.IsExpiredAt(now):
			return domain.ErrTokenExpired
		case oldToken.ReplacedByID != nil:
			return domain.ErrTokenAlreadyRotated
		}

		strategy, err := uc.rotationStrategy(oldToken, strategyName)
		if err != nil {
			return err
		}

		plainToken, err := uc.codec.Generate(oldToken.Prefix, oldToken.Environment)
		if err != nil {
			return err
		}
		newToken, err := uc.successor(oldToken, plainToken, now)
		if err != nil {
			return err
		}

		// Claim the link before the successor exists so a losing rotation creates nothing.
		if err := uc.repo.MarkReplaced(ctx, oldToken.ID, newToken.ID, now); err != nil {
			return err
		}
		newID := newToken.ID
		oldToken.RotatedAt = &now
		oldToken.ReplacedByID = &newID

		if err := uc.repo.Create(ctx, newToken); err != nil {
			return err
		}
		if err := strategy.Rotate(ctx, oldToken, newToken); err != nil {
			return err
		}

		metadata := map[string]any{
			"strategy":     strategy.Name(),
			"new_token_id": newToken.ID.String(),
		}
		if minutes, ok := strategy.GracePeriodMinutes(); ok {
			metadata["grace_period_minutes"] = minutes
		}
		if err := uc.emit(ctx, audit.KindRotated, oldToken.ID, metadata); err != nil {
			return err
		}

		output = &domain.RotateTokenOutput{
			OldToken:   oldToken,
			NewToken:   newToken,
			PlainToken: plainToken,
			Strategy:   strategy.Name(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return output, nil
}

// Derive creates a child token bounded by its parent. All derivation rules are
// checked before anything is written.
func (uc *tokenUseCase) Derive(
	ctx context.Context,
	parentID uuid.UUID,
	input *domain.DeriveTokenInput,
) (*domain.IssueTokenOutput, error) {
	parent, err := uc.repo.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	child, err := uc.hierarchy.Prepare(parent, input, now)
	if err != nil {
		return nil, err
	}
	if child.Name == "" {
		child.Name = parent.Name
	}

	plainToken, err := uc.codec.Generate(child.Prefix, child.Environment)
	if err != nil {
		return nil, err
	}
	if err := uc.seal(child, plainToken, now); err != nil {
		return nil, err
	}

	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.repo.Create(ctx, child); err != nil {
			return err
		}
		return uc.emit(ctx, audit.KindDerived, child.ID, map[string]any{
			"parent_id": parent.ID.String(),
			"depth":     child.Depth,
		})
	})
	if err != nil {
		return nil, err
	}

	return &domain.IssueTokenOutput{Token: child, PlainToken: plainToken}, nil
}

// Sibling returns the current group member of the given type. Members already
// replaced by a rotation are skipped.
func (uc *tokenUseCase) Sibling(
	ctx context.Context,
	tokenID uuid.UUID,
	tokenType domain.TokenType,
) (*domain.Token, error) {
	token, err := uc.repo.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.GroupID == nil {
		return nil, domain.ErrTokenNotFound
	}

	members, err := uc.repo.ListByGroup(ctx, *token.GroupID)
	if err != nil {
		return nil, err
	}
	for _, member := range members {
		if member.Type == tokenType && member.ReplacedByID == nil {
			return member, nil
		}
	}
	return nil, domain.ErrTokenNotFound
}

// Children returns the direct children of a token.
func (uc *tokenUseCase) Children(ctx context.Context, tokenID uuid.UUID) ([]*domain.Token, error) {
	token, err := uc.repo.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return uc.hierarchy.Children(ctx, token)
}

// Descendants returns every descendant of a token, shallowest first.
func (uc *tokenUseCase) Descendants(ctx context.Context, tokenID uuid.UUID) ([]*domain.Token, error) {
	token, err := uc.repo.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return uc.hierarchy.Descendants(ctx, token)
}

// RotationChain returns the token followed by each token it replaced, newest first.
func (uc *tokenUseCase) RotationChain(ctx context.Context, tokenID uuid.UUID) ([]*domain.Token, error) {
	token, err := uc.repo.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	chain := []*domain.Token{token}
	seen := map[uuid.UUID]bool{token.ID: true}
	for token.ReplacesID != nil && !seen[*token.ReplacesID] {
		token, err = uc.repo.Get(ctx, *token.ReplacesID)
		if err != nil {
			return nil, err
		}
		seen[token.ID] = true
		chain = append(chain, token)
	}
	return chain, nil
}

// newRootToken builds an unsaved root token and its plaintext from the type defaults.
func (uc *tokenUseCase) newRootToken(
	cfg domain.TokenTypeConfig,
	input *domain.IssueTokenInput,
) (*domain.Token, string, error) {
	if !cfg.AllowsEnvironment(input.Environment) {
		return nil, "", domain.ErrEnvironmentNotAllowed
	}
	if input.RateLimitPerMinute != nil && *input.RateLimitPerMinute <= 0 {
		return nil, "", domain.ErrInvalidRateLimit
	}
	if err := domain.ValidateRestrictions(input.AllowedIPs, input.AllowedDomains); err != nil {
		return nil, "", err
	}

	plainToken, err := uc.codec.GenerateWith(input.Generator, cfg.Prefix, input.Environment)
	if err != nil {
		return nil, "", err
	}

	now := uc.now().UTC()
	abilities := input.Abilities
	if abilities == nil {
		abilities = cfg.DefaultAbilities
	}

	token := &domain.Token{
		Name:               input.Name,
		Prefix:             cfg.Prefix,
		Environment:        input.Environment,
		Type:               cfg.Type,
		Abilities:          domain.NewAbilities(abilities...),
		AllowedIPs:         slices.Clone(input.AllowedIPs),
		AllowedDomains:     slices.Clone(input.AllowedDomains),
		RateLimitPerMinute: cloneIntPtr(input.RateLimitPerMinute),
		Owner:              input.Owner.Clone(),
		Context:            input.Context.Clone(),
		Boundary:           input.Boundary.Clone(),
		Metadata:           maps.Clone(input.Metadata),
	}
	switch {
	case input.ExpiresAt != nil:
		expiresAt := input.ExpiresAt.UTC()
		token.ExpiresAt = &expiresAt
	case cfg.DefaultExpiration > 0:
		expiresAt := now.Add(cfg.DefaultExpiration)
		token.ExpiresAt = &expiresAt
	}

	if err := uc.seal(token, plainToken, now); err != nil {
		return nil, "", err
	}
	return token, plainToken, nil
}

// successor builds the replacement for oldToken.
func (uc *tokenUseCase) successor(oldToken *domain.Token, plainToken string, now time.Time) (*domain.Token, error) {
	newToken := oldToken.Clone()
	oldID := oldToken.ID
	newToken.ReplacesID = &oldID
	newToken.ReplacedByID = nil
	newToken.RevokedAt = nil
	newToken.RotatedAt = nil
	newToken.LastUsedAt = nil
	if err := uc.seal(newToken, plainToken, now); err != nil {
		return nil, err
	}
	return newToken, nil
}

// seal assigns identity and the digest of plainToken.
func (uc *tokenUseCase) seal(token *domain.Token, plainToken string, now time.Time) error {
	hasher, err := uc.hashers.Default()
	if err != nil {
		return err
	}
	token.ID = uuid.Must(uuid.NewV7())
	token.TokenHash = hasher.Hash(plainToken)
	token.Hasher = hasher.Name()
	token.CreatedAt = now
	return nil
}

// revocationStrategy resolves the strategy: explicit name, then the type default,
// then the registry default.
func (uc *tokenUseCase) revocationStrategy(token *domain.Token, name string) (RevocationStrategy, error) {
	if name == "" {
		if cfg, err := uc.catalog.Get(token.Type); err == nil {
			name = cfg.RevocationStrategy
		}
	}
	return uc.revocations.Resolve(name)
}

// rotationStrategy resolves the strategy the same way as revocationStrategy.
func (uc *tokenUseCase) rotationStrategy(token *domain.Token, name string) (RotationStrategy, error) {
	if name == "" {
		if cfg, err := uc.catalog.Get(token.Type); err == nil {
			name = cfg.RotationStrategy
		}
	}
	return uc.rotations.Resolve(name)
}

func (uc *tokenUseCase) emit(ctx context.Context, kind audit.EventKind, tokenID uuid.UUID, metadata map[string]any) error {
	if uc.auditor == nil {
		return nil
	}
	return uc.auditor.Emit(ctx, audit.NewEvent(kind, tokenID, metadata))
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// NewTokenUseCase creates a new TokenUseCase with the provided dependencies.
func NewTokenUseCase(
	txManager database.TxManager,
	repo TokenRepository,
	catalog *domain.TypeCatalog,
	codec *service.Codec,
	hashers *registry.Registry[service.TokenHasher],
	revocations *registry.Registry[RevocationStrategy],
	rotations *registry.Registry[RotationStrategy],
	hierarchy *Hierarchy,
	auditor AuditEmitter,
	now func() time.Time,
) TokenUseCase {
	if now == nil {
		now = time.Now
	}
	return &tokenUseCase{
		txManager:   txManager,
		repo:        repo,
		catalog:     catalog,
		codec:       codec,
		hashers:     hashers,
		revocations: revocations,
		rotations:   rotations,
		hierarchy:   hierarchy,
		auditor:     auditor,
		now:         now,
	}
}
