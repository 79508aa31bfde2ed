// Package repository implements token persistence for PostgreSQL, MySQL and memory.
package repository

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/allisson/apikeys/internal/apikey/domain"
	apperrors "github.com/allisson/apikeys/internal/errors"
)

// tokenColumns lists the tokens table columns in scan order.
var tokenColumns = []string{
	"id",
	"name",
	"prefix",
	"environment",
	"token_type",
	"token_hash",
	"hasher",
	"abilities",
	"allowed_ips",
	"allowed_domains",
	"rate_limit_per_minute",
	"expires_at",
	"revoked_at",
	"last_used_at",
	"rotated_at",
	"group_id",
	"parent_id",
	"depth",
	"replaces_id",
	"replaced_by_id",
	"owner_kind",
	"owner_id",
	"context_kind",
	"context_id",
	"boundary_kind",
	"boundary_id",
	"metadata",
	"derived_metadata",
	"created_at",
}

// selectColumns renders the column list, qualified with alias when it is not empty.
func selectColumns(alias string) string {
	if alias == "" {
		return strings.Join(tokenColumns, ", ")
	}
	qualified := make([]string, len(tokenColumns))
	for i, column := range tokenColumns {
		qualified[i] = alias + "." + column
	}
	return strings.Join(qualified, ", ")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// encodedToken holds the column values shared by both dialects. Identifiers are
// encoded by each dialect.
type encodedToken struct {
	abilities       []byte
	allowedIPs      []byte
	allowedDomains  []byte
	rateLimit       sql.NullInt64
	ownerKind       sql.NullString
	ownerID         sql.NullString
	contextKind     sql.NullString
	contextID       sql.NullString
	boundaryKind    sql.NullString
	boundaryID      sql.NullString
	metadata        []byte
	derivedMetadata []byte
}

func encodeToken(token *domain.Token) (*encodedToken, error) {
	var (
		enc encodedToken
		err error
	)

	if enc.abilities, err = json.Marshal(token.Abilities); err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal abilities")
	}
	if enc.allowedIPs, err = marshalNullable(token.AllowedIPs); err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal allowed ips")
	}
	if enc.allowedDomains, err = marshalNullable(token.AllowedDomains); err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal allowed domains")
	}
	if enc.metadata, err = marshalNullable(token.Metadata); err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal metadata")
	}
	if enc.derivedMetadata, err = marshalNullable(token.DerivedMetadata); err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal derived metadata")
	}

	if token.RateLimitPerMinute != nil {
		enc.rateLimit = sql.NullInt64{Int64: int64(*token.RateLimitPerMinute), Valid: true}
	}
	enc.ownerKind, enc.ownerID = encodeRef(token.Owner)
	enc.contextKind, enc.contextID = encodeRef(token.Context)
	enc.boundaryKind, enc.boundaryID = encodeRef(token.Boundary)
	return &enc, nil
}

// decodeInto copies the shared column values onto token.
func (enc *encodedToken) decodeInto(token *domain.Token) error {
	if err := json.Unmarshal(enc.abilities, &token.Abilities); err != nil {
		return apperrors.Wrap(err, "failed to unmarshal abilities")
	}
	if err := unmarshalNullable(enc.allowedIPs, &token.AllowedIPs); err != nil {
		return apperrors.Wrap(err, "failed to unmarshal allowed ips")
	}
	if err := unmarshalNullable(enc.allowedDomains, &token.AllowedDomains); err != nil {
		return apperrors.Wrap(err, "failed to unmarshal allowed domains")
	}
	if err := unmarshalNullable(enc.metadata, &token.Metadata); err != nil {
		return apperrors.Wrap(err, "failed to unmarshal metadata")
	}
	if err := unmarshalNullable(enc.derivedMetadata, &token.DerivedMetadata); err != nil {
		return apperrors.Wrap(err, "failed to unmarshal derived metadata")
	}

	if enc.rateLimit.Valid {
		limit := int(enc.rateLimit.Int64)
		token.RateLimitPerMinute = &limit
	}
	token.Owner = decodeRef(enc.ownerKind, enc.ownerID)
	token.Context = decodeRef(enc.contextKind, enc.contextID)
	token.Boundary = decodeRef(enc.boundaryKind, enc.boundaryID)
	return nil
}

func marshalNullable[T any](value T) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

func unmarshalNullable(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

func encodeRef(ref *domain.EntityRef) (sql.NullString, sql.NullString) {
	if ref == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: ref.Kind, Valid: true}, sql.NullString{String: ref.ID, Valid: true}
}

func decodeRef(kind, id sql.NullString) *domain.EntityRef {
	if !kind.Valid && !id.Valid {
		return nil
	}
	return &domain.EntityRef{Kind: kind.String, ID: id.String}
}
