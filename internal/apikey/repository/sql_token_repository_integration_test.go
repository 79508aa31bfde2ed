package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/database"
	"github.com/allisson/apikeys/internal/testutil"
)

// sqlTokenStore is the subset of the repository surface exercised against real databases.
type sqlTokenStore interface {
	Create(ctx context.Context, token *domain.Token) error
	Get(ctx context.Context, tokenID uuid.UUID) (*domain.Token, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Token, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Token, error)
	ListDescendants(ctx context.Context, rootID uuid.UUID, maxDepth int) ([]*domain.Token, error)
	RevokeBatch(ctx context.Context, tokenIDs []uuid.UUID, at time.Time) (int64, error)
	MarkReplaced(ctx context.Context, tokenID, replacedByID uuid.UUID, rotatedAt time.Time) error
	TouchLastUsed(ctx context.Context, tokenID uuid.UUID, at time.Time) error
	CreateGroup(ctx context.Context, group *domain.TokenGroup) error
	GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.TokenGroup, error)
}

type sqlRepositoryCase struct {
	name    string
	setup   func(t *testing.T) *sql.DB
	newRepo func(db *sql.DB) sqlTokenStore
}

func sqlRepositoryCases() []sqlRepositoryCase {
	return []sqlRepositoryCase{
		{
			name:    "postgresql",
			setup:   testutil.SetupPostgresDB,
			newRepo: func(db *sql.DB) sqlTokenStore { return NewPostgreSQLTokenRepository(db) },
		},
		{
			name:    "mysql",
			setup:   testutil.SetupMySQLDB,
			newRepo: func(db *sql.DB) sqlTokenStore { return NewMySQLTokenRepository(db) },
		},
	}
}

func integrationToken(parent *domain.Token, groupID *uuid.UUID) *domain.Token {
	token := &domain.Token{
		ID:          uuid.Must(uuid.NewV7()),
		Name:        "integration",
		Prefix:      "sk",
		Environment: "live",
		Type:        domain.TypeSecret,
		TokenHash:   uuid.NewString(),
		Hasher:      "sha256",
		Abilities:   domain.NewAbilities("read", "write"),
		AllowedIPs:  []string{"10.0.0.0/8"},
		GroupID:     groupID,
		Metadata:    map[string]any{"plan": "pro"},
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	if parent != nil {
		token.ParentID = &parent.ID
		token.Depth = parent.Depth + 1
	}
	return token
}

func TestSQLTokenRepository_Integration(t *testing.T) {
	for _, tc := range sqlRepositoryCases() {
		t.Run(tc.name, func(t *testing.T) {
			db := tc.setup(t)
			defer testutil.TeardownDB(t, db)

			repo := tc.newRepo(db)
			ctx := context.Background()

			t.Run("Success_CreateAndLookup", func(t *testing.T) {
				token := integrationToken(nil, nil)
				require.NoError(t, repo.Create(ctx, token))

				byID, err := repo.Get(ctx, token.ID)
				require.NoError(t, err)
				assert.Equal(t, token.TokenHash, byID.TokenHash)
				assert.True(t, byID.Can("write"))
				assert.Equal(t, []string{"10.0.0.0/8"}, byID.AllowedIPs)
				assert.Equal(t, "pro", byID.Metadata["plan"])

				byHash, err := repo.GetByTokenHash(ctx, token.TokenHash)
				require.NoError(t, err)
				assert.Equal(t, token.ID, byHash.ID)
			})

			t.Run("Error_NotFound", func(t *testing.T) {
				_, err := repo.Get(ctx, uuid.New())
				assert.ErrorIs(t, err, domain.ErrTokenNotFound)

				_, err = repo.GetByTokenHash(ctx, "missing")
				assert.ErrorIs(t, err, domain.ErrTokenNotFound)
			})

			t.Run("Success_DescendantsAndRevokeBatch", func(t *testing.T) {
				root := integrationToken(nil, nil)
				child := integrationToken(root, nil)
				grandchild := integrationToken(child, nil)
				for _, token := range []*domain.Token{root, child, grandchild} {
					require.NoError(t, repo.Create(ctx, token))
				}

				children, err := repo.ListChildren(ctx, root.ID)
				require.NoError(t, err)
				require.Len(t, children, 1)
				assert.Equal(t, child.ID, children[0].ID)

				shallow, err := repo.ListDescendants(ctx, root.ID, 1)
				require.NoError(t, err)
				assert.Len(t, shallow, 1)

				all, err := repo.ListDescendants(ctx, root.ID, 5)
				require.NoError(t, err)
				require.Len(t, all, 2)
				assert.Equal(t, child.ID, all[0].ID)
				assert.Equal(t, grandchild.ID, all[1].ID)

				at := time.Now().UTC().Truncate(time.Second)
				affected, err := repo.RevokeBatch(ctx, []uuid.UUID{child.ID, grandchild.ID}, at)
				require.NoError(t, err)
				assert.Equal(t, int64(2), affected)

				// A later revocation never postpones an earlier one.
				affected, err = repo.RevokeBatch(ctx, []uuid.UUID{child.ID}, at.Add(time.Hour))
				require.NoError(t, err)
				assert.Equal(t, int64(0), affected)

				stored, err := repo.Get(ctx, child.ID)
				require.NoError(t, err)
				require.NotNil(t, stored.RevokedAt)
				assert.True(t, stored.RevokedAt.Equal(at))
			})

			t.Run("Success_MarkReplacedBeforeSuccessorExists", func(t *testing.T) {
				old := integrationToken(nil, nil)
				require.NoError(t, repo.Create(ctx, old))
				usedAt := time.Now().UTC().Truncate(time.Microsecond)
				require.NoError(t, repo.TouchLastUsed(ctx, old.ID, usedAt))

				successor := integrationToken(nil, nil)
				successor.ReplacesID = &old.ID
				rotatedAt := usedAt.Add(-time.Minute)

				txManager := database.NewTxManager(db)
				err := txManager.WithTx(ctx, func(ctx context.Context) error {
					if err := repo.MarkReplaced(ctx, old.ID, successor.ID, rotatedAt); err != nil {
						return err
					}
					return repo.Create(ctx, successor)
				})
				require.NoError(t, err)

				err = repo.MarkReplaced(ctx, old.ID, uuid.Must(uuid.NewV7()), rotatedAt)
				assert.ErrorIs(t, err, domain.ErrTokenAlreadyRotated)

				err = repo.MarkReplaced(ctx, uuid.Must(uuid.NewV7()), successor.ID, rotatedAt)
				assert.ErrorIs(t, err, domain.ErrTokenNotFound)

				stored, err := repo.Get(ctx, old.ID)
				require.NoError(t, err)
				require.NotNil(t, stored.ReplacedByID)
				assert.Equal(t, successor.ID, *stored.ReplacedByID)
				require.NotNil(t, stored.LastUsedAt)
				assert.True(t, stored.LastUsedAt.Equal(usedAt))
			})

			t.Run("Success_GroupWithMembers", func(t *testing.T) {
				group := &domain.TokenGroup{
					ID:        uuid.Must(uuid.NewV7()),
					Name:      "acme",
					Owner:     domain.NewEntityRef("team", "acme"),
					CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
				}
				require.NoError(t, repo.CreateGroup(ctx, group))

				member := integrationToken(nil, &group.ID)
				require.NoError(t, repo.Create(ctx, member))

				stored, err := repo.GetGroup(ctx, group.ID)
				require.NoError(t, err)
				assert.Equal(t, "acme", stored.Name)
				require.Len(t, stored.Tokens, 1)
				assert.Equal(t, member.ID, stored.Tokens[0].ID)
			})
		})
	}
}

func TestSQLTokenRepository_TxManagerRollback(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewPostgreSQLTokenRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()
	token := integrationToken(nil, nil)

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := repo.Create(ctx, token); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = repo.Get(ctx, token.ID)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}
