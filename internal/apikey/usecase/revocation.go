package usecase

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/registry"
)

// Revocation strategy names.
const (
	RevocationNone               = "none"
	RevocationCascade            = "cascade"
	RevocationPartialCascade     = "partial_cascade"
	RevocationCascadeDescendants = "cascade_descendants"
	RevocationTimed              = "timed"
)

// revokeAt marks every token revoked at the given instant in one store batch and
// mirrors the change onto the in-memory tokens.
func revokeAt(ctx context.Context, repo TokenRepository, tokens []*domain.Token, at time.Time) ([]*domain.Token, error) {
	if len(tokens) == 0 {
		return tokens, nil
	}
	if _, err := repo.RevokeBatch(ctx, tokenIDs(tokens), at); err != nil {
		return nil, err
	}
	for _, token := range tokens {
		token.MarkRevoked(at)
	}
	return tokens, nil
}

// tokenIDs returns the IDs of tokens, preserving order.
func tokenIDs(tokens []*domain.Token) []uuid.UUID {
	ids := make([]uuid.UUID, len(tokens))
	for i, token := range tokens {
		ids[i] = token.ID
	}
	return ids
}

// groupMembers returns the token's group, or the token alone when it has no group.
// The token itself is always part of the result.
func groupMembers(ctx context.Context, repo TokenRepository, token *domain.Token) ([]*domain.Token, error) {
	if token.GroupID == nil {
		return []*domain.Token{token}, nil
	}
	members, err := repo.ListByGroup(ctx, *token.GroupID)
	if err != nil {
		return nil, err
	}
	result := []*domain.Token{token}
	for _, member := range members {
		if member.ID != token.ID {
			result = append(result, member)
		}
	}
	return result, nil
}

// noneRevocation affects only the given token.
type noneRevocation struct {
	repo TokenRepository
	now  func() time.Time
}

// NewNoneRevocation creates the strategy that revokes a single token.
func NewNoneRevocation(repo TokenRepository, now func() time.Time) RevocationStrategy {
	return &noneRevocation{repo: repo, now: now}
}

func (s *noneRevocation) Name() string { return RevocationNone }

func (s *noneRevocation) AffectedTokens(_ context.Context, token *domain.Token) ([]*domain.Token, error) {
	return []*domain.Token{token}, nil
}

func (s *noneRevocation) Revoke(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	return revokeAt(ctx, s.repo, []*domain.Token{token}, s.now())
}

// cascadeRevocation affects every member of the token's group.
type cascadeRevocation struct {
	repo TokenRepository
	now  func() time.Time
}

// NewCascadeRevocation creates the strategy that revokes the whole sibling group.
func NewCascadeRevocation(repo TokenRepository, now func() time.Time) RevocationStrategy {
	return &cascadeRevocation{repo: repo, now: now}
}

func (s *cascadeRevocation) Name() string { return RevocationCascade }

func (s *cascadeRevocation) AffectedTokens(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	return groupMembers(ctx, s.repo, token)
}

func (s *cascadeRevocation) Revoke(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	affected, err := s.AffectedTokens(ctx, token)
	if err != nil {
		return nil, err
	}
	return revokeAt(ctx, s.repo, affected, s.now())
}

// partialCascadeRevocation affects the group members whose type or prefix is listed.
// A member outside the list is spared even when it is the token named in the call.
type partialCascadeRevocation struct {
	repo  TokenRepository
	now   func() time.Time
	types []string
}

// NewPartialCascadeRevocation creates the strategy that revokes only the listed
// members of the group. Entries match either a token type or a prefix, so
// "secret" and "sk" select the same members with the default catalog.
func NewPartialCascadeRevocation(repo TokenRepository, now func() time.Time, types []string) RevocationStrategy {
	return &partialCascadeRevocation{repo: repo, now: now, types: slices.Clone(types)}
}

func (s *partialCascadeRevocation) Name() string { return RevocationPartialCascade }

func (s *partialCascadeRevocation) matches(token *domain.Token) bool {
	return slices.Contains(s.types, token.Type.String()) || slices.Contains(s.types, token.Prefix)
}

func (s *partialCascadeRevocation) AffectedTokens(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	members, err := groupMembers(ctx, s.repo, token)
	if err != nil {
		return nil, err
	}
	affected := make([]*domain.Token, 0, len(members))
	for _, member := range members {
		if s.matches(member) {
			affected = append(affected, member)
		}
	}
	return affected, nil
}

func (s *partialCascadeRevocation) Revoke(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	affected, err := s.AffectedTokens(ctx, token)
	if err != nil {
		return nil, err
	}
	return revokeAt(ctx, s.repo, affected, s.now())
}

// cascadeDescendantsRevocation affects the token and its whole derivation subtree.
type cascadeDescendantsRevocation struct {
	repo     TokenRepository
	now      func() time.Time
	maxDepth int
}

// NewCascadeDescendantsRevocation creates the strategy that revokes a token and every
// token derived from it. maxDepth bounds the traversal.
func NewCascadeDescendantsRevocation(repo TokenRepository, now func() time.Time, maxDepth int) RevocationStrategy {
	return &cascadeDescendantsRevocation{repo: repo, now: now, maxDepth: maxDepth}
}

func (s *cascadeDescendantsRevocation) Name() string { return RevocationCascadeDescendants }

func (s *cascadeDescendantsRevocation) AffectedTokens(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	descendants, err := s.repo.ListDescendants(ctx, token.ID, s.maxDepth)
	if err != nil {
		return nil, err
	}
	return append([]*domain.Token{token}, descendants...), nil
}

func (s *cascadeDescendantsRevocation) Revoke(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	affected, err := s.AffectedTokens(ctx, token)
	if err != nil {
		return nil, err
	}
	return revokeAt(ctx, s.repo, affected, s.now())
}

// timedRevocation schedules revocation of a single token after a delay.
//
// The delay runs from the first revoke call. A later call never postpones an
// earlier scheduled or effective revocation since revoked_at only moves earlier.
type timedRevocation struct {
	repo  TokenRepository
	now   func() time.Time
	delay time.Duration
}

// NewTimedRevocation creates the strategy that revokes a token delay after the call.
func NewTimedRevocation(repo TokenRepository, now func() time.Time, delay time.Duration) RevocationStrategy {
	return &timedRevocation{repo: repo, now: now, delay: delay}
}

func (s *timedRevocation) Name() string { return RevocationTimed }

func (s *timedRevocation) AffectedTokens(_ context.Context, token *domain.Token) ([]*domain.Token, error) {
	return []*domain.Token{token}, nil
}

func (s *timedRevocation) Revoke(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	return revokeAt(ctx, s.repo, []*domain.Token{token}, s.now().Add(s.delay))
}

// RevocationConfig configures the built-in revocation strategies.
type RevocationConfig struct {
	DefaultStrategy string
	TimedDelay      time.Duration
	PartialTypes    []string
	MaxDepth        int
}

// NewRevocationRegistry registers the built-in revocation strategies.
func NewRevocationRegistry(
	repo TokenRepository,
	now func() time.Time,
	cfg RevocationConfig,
) (*registry.Registry[RevocationStrategy], error) {
	strategies := registry.New[RevocationStrategy]("revocation strategy")
	strategies.Register(RevocationNone, NewNoneRevocation(repo, now))
	strategies.Register(RevocationCascade, NewCascadeRevocation(repo, now))
	strategies.Register(RevocationPartialCascade, NewPartialCascadeRevocation(repo, now, cfg.PartialTypes))
	strategies.Register(RevocationCascadeDescendants, NewCascadeDescendantsRevocation(repo, now, cfg.MaxDepth))
	strategies.Register(RevocationTimed, NewTimedRevocation(repo, now, cfg.TimedDelay))

	if cfg.DefaultStrategy != "" {
		if err := strategies.SetDefault(cfg.DefaultStrategy); err != nil {
			return nil, err
		}
	}
	return strategies, nil
}
