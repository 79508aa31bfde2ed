package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/database"
	apperrors "github.com/allisson/apikeys/internal/errors"
)

// PostgreSQLTokenRepository implements Token persistence for PostgreSQL.
// Uses native UUID types with transaction support via database.GetTx().
type PostgreSQLTokenRepository struct {
	db *sql.DB
}

// Create inserts a new Token into the PostgreSQL database.
func (p *PostgreSQLTokenRepository) Create(ctx context.Context, token *domain.Token) error {
	querier := database.GetTx(ctx, p.db)

	enc, err := encodeToken(token)
	if err != nil {
		return err
	}

	query := `INSERT INTO tokens (` + selectColumns("") + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			          $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`

	_, err = querier.ExecContext(
		ctx,
		query,
		token.ID,
		token.Name,
		token.Prefix,
		token.Environment,
		token.Type.String(),
		token.TokenHash,
		token.Hasher,
		enc.abilities,
		enc.allowedIPs,
		enc.allowedDomains,
		enc.rateLimit,
		token.ExpiresAt,
		token.RevokedAt,
		token.LastUsedAt,
		token.RotatedAt,
		nullUUID(token.GroupID),
		nullUUID(token.ParentID),
		token.Depth,
		nullUUID(token.ReplacesID),
		nullUUID(token.ReplacedByID),
		enc.ownerKind,
		enc.ownerID,
		enc.contextKind,
		enc.contextID,
		enc.boundaryKind,
		enc.boundaryID,
		enc.metadata,
		enc.derivedMetadata,
		token.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create token")
	}
	return nil
}

// MarkReplaced links a token to its successor. The replaced_by_id IS NULL predicate makes
// the link a compare-and-set, so concurrent rotations of one token cannot both succeed.
func (p *PostgreSQLTokenRepository) MarkReplaced(
	ctx context.Context,
	tokenID, replacedByID uuid.UUID,
	rotatedAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE tokens SET rotated_at = $1, replaced_by_id = $2
			  WHERE id = $3 AND replaced_by_id IS NULL`

	result, err := querier.ExecContext(ctx, query, rotatedAt.UTC(), replacedByID, tokenID)
	if err != nil {
		return apperrors.Wrap(err, "failed to link rotated token")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read rotated token count")
	}
	if affected == 0 {
		if _, err := p.Get(ctx, tokenID); err != nil {
			return err
		}
		return domain.ErrTokenAlreadyRotated
	}
	return nil
}

// Get retrieves a Token by ID. Returns ErrTokenNotFound if the token doesn't exist.
func (p *PostgreSQLTokenRepository) Get(ctx context.Context, tokenID uuid.UUID) (*domain.Token, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + selectColumns("") + ` FROM tokens WHERE id = $1`

	token, err := p.scanToken(querier.QueryRowContext(ctx, query, tokenID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get token")
	}
	return token, nil
}

// GetByTokenHash retrieves a Token by its digest. Returns ErrTokenNotFound if no token matches.
func (p *PostgreSQLTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + selectColumns("") + ` FROM tokens WHERE token_hash = $1`

	token, err := p.scanToken(querier.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get token by hash")
	}
	return token, nil
}

// ListByGroup returns every member of a group ordered by creation time.
func (p *PostgreSQLTokenRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Token, error) {
	query := `SELECT ` + selectColumns("") + ` FROM tokens WHERE group_id = $1 ORDER BY created_at ASC, id ASC`
	return p.queryTokens(ctx, "failed to list group tokens", query, groupID)
}

// ListChildren returns the direct children of a token ordered by creation time.
func (p *PostgreSQLTokenRepository) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Token, error) {
	query := `SELECT ` + selectColumns("") + ` FROM tokens WHERE parent_id = $1 ORDER BY created_at ASC, id ASC`
	return p.queryTokens(ctx, "failed to list child tokens", query, parentID)
}

// ListDescendants walks the derivation tree below rootID with a recursive CTE, at most
// maxDepth levels deep, shallowest first.
func (p *PostgreSQLTokenRepository) ListDescendants(
	ctx context.Context,
	rootID uuid.UUID,
	maxDepth int,
) ([]*domain.Token, error) {
	if maxDepth <= 0 {
		return []*domain.Token{}, nil
	}

	query := `WITH RECURSIVE subtree (id, level) AS (
			      SELECT id, 1 FROM tokens WHERE parent_id = $1
			      UNION ALL
			      SELECT c.id, s.level + 1 FROM tokens c
			      JOIN subtree s ON c.parent_id = s.id
			      WHERE s.level < $2
			  )
			  SELECT ` + selectColumns("t") + `
			  FROM tokens t JOIN subtree s ON t.id = s.id
			  ORDER BY s.level ASC, t.created_at ASC, t.id ASC`
	return p.queryTokens(ctx, "failed to list descendant tokens", query, rootID, maxDepth)
}

// RevokeBatch sets revoked_at on every listed token whose revocation is absent or
// later than at, in a single statement.
func (p *PostgreSQLTokenRepository) RevokeBatch(ctx context.Context, tokenIDs []uuid.UUID, at time.Time) (int64, error) {
	if len(tokenIDs) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, p.db)

	ids := make(pq.StringArray, len(tokenIDs))
	for i, id := range tokenIDs {
		ids[i] = id.String()
	}

	query := `UPDATE tokens
			  SET revoked_at = $1
			  WHERE id = ANY($2::uuid[])
			    AND (revoked_at IS NULL OR revoked_at > $1)`

	result, err := querier.ExecContext(ctx, query, at.UTC(), ids)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to revoke tokens")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read revoked token count")
	}
	return affected, nil
}

// TouchLastUsed records a successful authentication. last_used_at never moves backwards.
func (p *PostgreSQLTokenRepository) TouchLastUsed(ctx context.Context, tokenID uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE tokens SET last_used_at = $1
			  WHERE id = $2 AND (last_used_at IS NULL OR last_used_at < $1)`

	if _, err := querier.ExecContext(ctx, query, at.UTC(), tokenID); err != nil {
		return apperrors.Wrap(err, "failed to update token last use")
	}
	return nil
}

// CreateGroup inserts a new token group.
func (p *PostgreSQLTokenRepository) CreateGroup(ctx context.Context, group *domain.TokenGroup) error {
	querier := database.GetTx(ctx, p.db)

	ownerKind, ownerID := encodeRef(group.Owner)
	query := `INSERT INTO token_groups (id, name, owner_kind, owner_id, created_at)
			  VALUES ($1, $2, $3, $4, $5)`

	_, err := querier.ExecContext(ctx, query, group.ID, group.Name, ownerKind, ownerID, group.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create token group")
	}
	return nil
}

// GetGroup retrieves a group with its members. Returns ErrGroupNotFound if the group doesn't exist.
func (p *PostgreSQLTokenRepository) GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.TokenGroup, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, name, owner_kind, owner_id, created_at FROM token_groups WHERE id = $1`

	var (
		group     domain.TokenGroup
		ownerKind sql.NullString
		ownerID   sql.NullString
	)
	err := querier.QueryRowContext(ctx, query, groupID).Scan(
		&group.ID,
		&group.Name,
		&ownerKind,
		&ownerID,
		&group.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get token group")
	}
	group.Owner = decodeRef(ownerKind, ownerID)

	if group.Tokens, err = p.ListByGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return &group, nil
}

func (p *PostgreSQLTokenRepository) queryTokens(
	ctx context.Context,
	errMessage string,
	query string,
	args ...any,
) ([]*domain.Token, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, errMessage)
	}
	defer func() {
		_ = rows.Close()
	}()

	tokens := make([]*domain.Token, 0)
	for rows.Next() {
		token, err := p.scanToken(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, errMessage)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, errMessage)
	}
	return tokens, nil
}

func (p *PostgreSQLTokenRepository) scanToken(row rowScanner) (*domain.Token, error) {
	var (
		token        domain.Token
		tokenType    string
		groupID      uuid.NullUUID
		parentID     uuid.NullUUID
		replacesID   uuid.NullUUID
		replacedByID uuid.NullUUID
		enc          encodedToken
	)

	err := row.Scan(
		&token.ID,
		&token.Name,
		&token.Prefix,
		&token.Environment,
		&tokenType,
		&token.TokenHash,
		&token.Hasher,
		&enc.abilities,
		&enc.allowedIPs,
		&enc.allowedDomains,
		&enc.rateLimit,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.LastUsedAt,
		&token.RotatedAt,
		&groupID,
		&parentID,
		&token.Depth,
		&replacesID,
		&replacedByID,
		&enc.ownerKind,
		&enc.ownerID,
		&enc.contextKind,
		&enc.contextID,
		&enc.boundaryKind,
		&enc.boundaryID,
		&enc.metadata,
		&enc.derivedMetadata,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	token.Type = domain.TokenType(tokenType)
	token.GroupID = uuidPtr(groupID)
	token.ParentID = uuidPtr(parentID)
	token.ReplacesID = uuidPtr(replacesID)
	token.ReplacedByID = uuidPtr(replacedByID)
	if err := enc.decodeInto(&token); err != nil {
		return nil, fmt.Errorf("token %s: %w", token.ID, err)
	}
	return &token, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	u := id.UUID
	return &u
}

// NewPostgreSQLTokenRepository creates a new PostgreSQL Token repository.
func NewPostgreSQLTokenRepository(db *sql.DB) *PostgreSQLTokenRepository {
	return &PostgreSQLTokenRepository{db: db}
}
