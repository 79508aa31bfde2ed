package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/database"
	apperrors "github.com/allisson/apikeys/internal/errors"
)

// MySQLTokenRepository implements Token persistence for MySQL.
// Uses BINARY(16) for UUID storage with transaction support via database.GetTx().
type MySQLTokenRepository struct {
	db *sql.DB
}

// Create inserts a new Token into the MySQL database using BINARY(16) for UUIDs.
func (m *MySQLTokenRepository) Create(ctx context.Context, token *domain.Token) error {
	querier := database.GetTx(ctx, m.db)

	enc, err := encodeToken(token)
	if err != nil {
		return err
	}
	id, err := token.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal token id")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tokenColumns)), ", ")
	query := `INSERT INTO tokens (` + selectColumns("") + `) VALUES (` + placeholders + `)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
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
		binaryUUID(token.GroupID),
		binaryUUID(token.ParentID),
		token.Depth,
		binaryUUID(token.ReplacesID),
		binaryUUID(token.ReplacedByID),
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
func (m *MySQLTokenRepository) MarkReplaced(
	ctx context.Context,
	tokenID, replacedByID uuid.UUID,
	rotatedAt time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	id, err := tokenID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal token id")
	}
	successor, err := replacedByID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal successor id")
	}

	query := `UPDATE tokens SET rotated_at = ?, replaced_by_id = ?
			  WHERE id = ? AND replaced_by_id IS NULL`

	result, err := querier.ExecContext(ctx, query, rotatedAt.UTC(), successor, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to link rotated token")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read rotated token count")
	}
	if affected == 0 {
		if _, err := m.Get(ctx, tokenID); err != nil {
			return err
		}
		return domain.ErrTokenAlreadyRotated
	}
	return nil
}

// Get retrieves a Token by ID. Returns ErrTokenNotFound if the token doesn't exist.
func (m *MySQLTokenRepository) Get(ctx context.Context, tokenID uuid.UUID) (*domain.Token, error) {
	querier := database.GetTx(ctx, m.db)

	id, err := tokenID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal token id")
	}

	query := `SELECT ` + selectColumns("") + ` FROM tokens WHERE id = ?`

	token, err := m.scanToken(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get token")
	}
	return token, nil
}

// GetByTokenHash retrieves a Token by its digest. Returns ErrTokenNotFound if no token matches.
func (m *MySQLTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + selectColumns("") + ` FROM tokens WHERE token_hash = ?`

	token, err := m.scanToken(querier.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get token by hash")
	}
	return token, nil
}

// ListByGroup returns every member of a group ordered by creation time.
func (m *MySQLTokenRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Token, error) {
	id, err := groupID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal group id")
	}
	query := `SELECT ` + selectColumns("") + ` FROM tokens WHERE group_id = ? ORDER BY created_at ASC, id ASC`
	return m.queryTokens(ctx, "failed to list group tokens", query, id)
}

// ListChildren returns the direct children of a token ordered by creation time.
func (m *MySQLTokenRepository) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Token, error) {
	id, err := parentID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal parent id")
	}
	query := `SELECT ` + selectColumns("") + ` FROM tokens WHERE parent_id = ? ORDER BY created_at ASC, id ASC`
	return m.queryTokens(ctx, "failed to list child tokens", query, id)
}

// ListDescendants walks the derivation tree below rootID with a recursive CTE, at most
// maxDepth levels deep, shallowest first.
func (m *MySQLTokenRepository) ListDescendants(
	ctx context.Context,
	rootID uuid.UUID,
	maxDepth int,
) ([]*domain.Token, error) {
	if maxDepth <= 0 {
		return []*domain.Token{}, nil
	}
	id, err := rootID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal token id")
	}

	query := `WITH RECURSIVE subtree (id, level) AS (
			      SELECT id, 1 FROM tokens WHERE parent_id = ?
			      UNION ALL
			      SELECT c.id, s.level + 1 FROM tokens c
			      JOIN subtree s ON c.parent_id = s.id
			      WHERE s.level < ?
			  )
			  SELECT ` + selectColumns("t") + `
			  FROM tokens t JOIN subtree s ON t.id = s.id
			  ORDER BY s.level ASC, t.created_at ASC, t.id ASC`
	return m.queryTokens(ctx, "failed to list descendant tokens", query, id, maxDepth)
}

// RevokeBatch sets revoked_at on every listed token whose revocation is absent or
// later than at, in a single statement.
func (m *MySQLTokenRepository) RevokeBatch(ctx context.Context, tokenIDs []uuid.UUID, at time.Time) (int64, error) {
	if len(tokenIDs) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, m.db)

	at = at.UTC()
	args := make([]any, 0, len(tokenIDs)+2)
	args = append(args, at)
	for _, tokenID := range tokenIDs {
		id, err := tokenID.MarshalBinary()
		if err != nil {
			return 0, apperrors.Wrap(err, "failed to marshal token id")
		}
		args = append(args, id)
	}
	args = append(args, at)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tokenIDs)), ", ")
	query := `UPDATE tokens
			  SET revoked_at = ?
			  WHERE id IN (` + placeholders + `)
			    AND (revoked_at IS NULL OR revoked_at > ?)`

	result, err := querier.ExecContext(ctx, query, args...)
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
func (m *MySQLTokenRepository) TouchLastUsed(ctx context.Context, tokenID uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, m.db)

	id, err := tokenID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal token id")
	}

	at = at.UTC()
	query := `UPDATE tokens SET last_used_at = ?
			  WHERE id = ? AND (last_used_at IS NULL OR last_used_at < ?)`

	if _, err := querier.ExecContext(ctx, query, at, id, at); err != nil {
		return apperrors.Wrap(err, "failed to update token last use")
	}
	return nil
}

// CreateGroup inserts a new token group.
func (m *MySQLTokenRepository) CreateGroup(ctx context.Context, group *domain.TokenGroup) error {
	querier := database.GetTx(ctx, m.db)

	id, err := group.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal group id")
	}

	ownerKind, ownerID := encodeRef(group.Owner)
	query := `INSERT INTO token_groups (id, name, owner_kind, owner_id, created_at)
			  VALUES (?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, id, group.Name, ownerKind, ownerID, group.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create token group")
	}
	return nil
}

// GetGroup retrieves a group with its members. Returns ErrGroupNotFound if the group doesn't exist.
func (m *MySQLTokenRepository) GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.TokenGroup, error) {
	querier := database.GetTx(ctx, m.db)

	id, err := groupID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal group id")
	}

	query := `SELECT id, name, owner_kind, owner_id, created_at FROM token_groups WHERE id = ?`

	var (
		group     domain.TokenGroup
		idBytes   []byte
		ownerKind sql.NullString
		ownerID   sql.NullString
	)
	err = querier.QueryRowContext(ctx, query, id).Scan(
		&idBytes,
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
	if err := group.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal group id")
	}
	group.Owner = decodeRef(ownerKind, ownerID)

	if group.Tokens, err = m.ListByGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return &group, nil
}

func (m *MySQLTokenRepository) queryTokens(
	ctx context.Context,
	errMessage string,
	query string,
	args ...any,
) ([]*domain.Token, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, errMessage)
	}
	defer func() {
		_ = rows.Close()
	}()

	tokens := make([]*domain.Token, 0)
	for rows.Next() {
		token, err := m.scanToken(rows)
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

func (m *MySQLTokenRepository) scanToken(row rowScanner) (*domain.Token, error) {
	var (
		token        domain.Token
		idBytes      []byte
		tokenType    string
		groupID      []byte
		parentID     []byte
		replacesID   []byte
		replacedByID []byte
		enc          encodedToken
	)

	err := row.Scan(
		&idBytes,
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

	if err := token.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token id: %w", err)
	}
	token.Type = domain.TokenType(tokenType)
	for _, link := range []struct {
		raw    []byte
		target **uuid.UUID
	}{
		{groupID, &token.GroupID},
		{parentID, &token.ParentID},
		{replacesID, &token.ReplacesID},
		{replacedByID, &token.ReplacedByID},
	} {
		if link.raw == nil {
			continue
		}
		var id uuid.UUID
		if err := id.UnmarshalBinary(link.raw); err != nil {
			return nil, fmt.Errorf("failed to unmarshal token reference: %w", err)
		}
		*link.target = &id
	}
	if err := enc.decodeInto(&token); err != nil {
		return nil, fmt.Errorf("token %s: %w", token.ID, err)
	}
	return &token, nil
}

// binaryUUID encodes an optional UUID as BINARY(16), or NULL.
func binaryUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id[:]
}

// NewMySQLTokenRepository creates a new MySQL Token repository.
func NewMySQLTokenRepository(db *sql.DB) *MySQLTokenRepository {
	return &MySQLTokenRepository{db: db}
}
