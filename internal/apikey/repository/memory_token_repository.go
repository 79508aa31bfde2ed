package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/apikeys/internal/apikey/domain"
	apperrors "github.com/allisson/apikeys/internal/errors"
)

// MemoryTokenRepository keeps tokens in process memory. Every call runs under one
// lock, so a lookup never observes a partially applied batch revocation. Tokens are
// copied on the way in and out.
type MemoryTokenRepository struct {
	mu     sync.RWMutex
	tokens map[uuid.UUID]*domain.Token
	byHash map[string]uuid.UUID
	groups map[uuid.UUID]*domain.TokenGroup
}

// Create stores a new token. Returns ErrConflict when the ID or digest is taken.
func (r *MemoryTokenRepository) Create(_ context.Context, token *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[token.ID]; exists {
		return apperrors.Wrap(apperrors.ErrConflict, "token already exists")
	}
	if _, exists := r.byHash[token.TokenHash]; exists {
		return apperrors.Wrap(apperrors.ErrConflict, "token hash already exists")
	}

	r.tokens[token.ID] = token.Clone()
	r.byHash[token.TokenHash] = token.ID
	return nil
}

// MarkReplaced sets the rotation link unless the token already has one.
func (r *MemoryTokenRepository) MarkReplaced(
	_ context.Context,
	tokenID, replacedByID uuid.UUID,
	rotatedAt time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tokens[tokenID]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if stored.ReplacedByID != nil {
		return domain.ErrTokenAlreadyRotated
	}

	rotated := rotatedAt
	stored.RotatedAt = &rotated
	stored.ReplacedByID = &replacedByID
	return nil
}

// Get retrieves a token by ID.
func (r *MemoryTokenRepository) Get(_ context.Context, tokenID uuid.UUID) (*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.tokens[tokenID]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return token.Clone(), nil
}

// GetByTokenHash retrieves a token by digest.
func (r *MemoryTokenRepository) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[tokenHash]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return r.tokens[id].Clone(), nil
}

// ListByGroup returns every member of a group ordered by creation time.
func (r *MemoryTokenRepository) ListByGroup(_ context.Context, groupID uuid.UUID) ([]*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(t *domain.Token) bool {
		return t.GroupID != nil && *t.GroupID == groupID
	}), nil
}

// ListChildren returns the direct children of a token ordered by creation time.
func (r *MemoryTokenRepository) ListChildren(_ context.Context, parentID uuid.UUID) ([]*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.childrenOf(parentID), nil
}

// ListDescendants walks the tree breadth first, at most maxDepth levels below rootID.
func (r *MemoryTokenRepository) ListDescendants(
	_ context.Context,
	rootID uuid.UUID,
	maxDepth int,
) ([]*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descendants := make([]*domain.Token, 0)
	level := []uuid.UUID{rootID}
	seen := map[uuid.UUID]bool{rootID: true}

	for depth := 0; depth < maxDepth && len(level) > 0; depth++ {
		var next []uuid.UUID
		for _, parentID := range level {
			for _, child := range r.childrenOf(parentID) {
				if seen[child.ID] {
					continue
				}
				seen[child.ID] = true
				descendants = append(descendants, child)
				next = append(next, child.ID)
			}
		}
		level = next
	}
	return descendants, nil
}

// RevokeBatch sets RevokedAt on every listed token whose revocation is absent or
// later than at. The whole batch is applied under one write lock.
func (r *MemoryTokenRepository) RevokeBatch(_ context.Context, tokenIDs []uuid.UUID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed int64
	for _, id := range tokenIDs {
		token, ok := r.tokens[id]
		if !ok {
			continue
		}
		if token.MarkRevoked(at) {
			changed++
		}
	}
	return changed, nil
}

// TouchLastUsed records a successful authentication. LastUsedAt never moves backwards.
func (r *MemoryTokenRepository) TouchLastUsed(_ context.Context, tokenID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[tokenID]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if token.LastUsedAt == nil || token.LastUsedAt.Before(at) {
		at = at.UTC()
		token.LastUsedAt = &at
	}
	return nil
}

// CreateGroup stores a new token group. Member tokens are stored separately.
func (r *MemoryTokenRepository) CreateGroup(_ context.Context, group *domain.TokenGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[group.ID]; exists {
		return apperrors.Wrap(apperrors.ErrConflict, "token group already exists")
	}
	r.groups[group.ID] = &domain.TokenGroup{
		ID:        group.ID,
		Name:      group.Name,
		Owner:     group.Owner.Clone(),
		CreatedAt: group.CreatedAt,
	}
	return nil
}

// GetGroup retrieves a group with its members.
func (r *MemoryTokenRepository) GetGroup(_ context.Context, groupID uuid.UUID) (*domain.TokenGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group, ok := r.groups[groupID]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	return &domain.TokenGroup{
		ID:        group.ID,
		Name:      group.Name,
		Owner:     group.Owner.Clone(),
		CreatedAt: group.CreatedAt,
		Tokens: r.collect(func(t *domain.Token) bool {
			return t.GroupID != nil && *t.GroupID == groupID
		}),
	}, nil
}

// Len returns the number of stored tokens.
func (r *MemoryTokenRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

func (r *MemoryTokenRepository) childrenOf(parentID uuid.UUID) []*domain.Token {
	return r.collect(func(t *domain.Token) bool {
		return t.ParentID != nil && *t.ParentID == parentID
	})
}

// collect returns copies of the matching tokens ordered by creation time, then ID.
// The caller must hold the lock.
func (r *MemoryTokenRepository) collect(match func(*domain.Token) bool) []*domain.Token {
	result := make([]*domain.Token, 0)
	for _, token := range r.tokens {
		if match(token) {
			result = append(result, token.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *domain.Token) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return result
}

// NewMemoryTokenRepository creates an empty in-memory token store.
func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{
		tokens: make(map[uuid.UUID]*domain.Token),
		byHash: make(map[string]uuid.UUID),
		groups: make(map[uuid.UUID]*domain.TokenGroup),
	}
}
