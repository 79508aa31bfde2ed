package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/apikey/http/dto"
	apikeyUseCase "github.com/allisson/apikeys/internal/apikey/usecase"
)

// RunRevokeToken revokes a token with the named strategy, or the type default when
// empty. With dryRun it only lists the tokens the revocation would affect.
//
// Requirements: Database must be migrated and accessible.
func RunRevokeToken(
	ctx context.Context,
	tokenUseCase apikeyUseCase.TokenUseCase,
	logger *slog.Logger,
	writer io.Writer,
	tokenIDStr string,
	strategy string,
	dryRun bool,
	format string,
) error {
	tokenID, err := uuid.Parse(tokenIDStr)
	if err != nil {
		return fmt.Errorf("invalid token ID format: %w", err)
	}

	logger.Info("revoking token",
		slog.String("token_id", tokenID.String()),
		slog.String("strategy", strategy),
		slog.Bool("dry_run", dryRun),
	)

	var affected []*domain.Token
	if dryRun {
		affected, err = tokenUseCase.PreviewRevocation(ctx, tokenID, strategy)
	} else {
		affected, err = tokenUseCase.Revoke(ctx, tokenID, strategy)
	}
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, dto.MapRevokedTokensToResponse(strategy, affected)); err != nil {
			return err
		}
	} else {
		outputRevokeText(writer, affected, dryRun)
	}

	logger.Info("revocation completed",
		slog.String("token_id", tokenID.String()),
		slog.Int("affected", len(affected)),
		slog.Bool("dry_run", dryRun),
	)

	return nil
}

// outputRevokeText outputs the affected tokens in human-readable text format.
func outputRevokeText(writer io.Writer, affected []*domain.Token, dryRun bool) {
	if dryRun {
		_, _ = fmt.Fprintf(writer, "Dry-run mode: Would revoke %d token(s)\n", len(affected))
	} else {
		_, _ = fmt.Fprintf(writer, "Successfully revoked %d token(s)\n", len(affected))
	}

	for _, token := range affected {
		line := fmt.Sprintf("  %s  %s  %s", token.ID.String(), token.Type, token.Name)
		if !dryRun && token.RevokedAt != nil {
			line += fmt.Sprintf("  effective %s", token.RevokedAt.Format(time.RFC3339))
		}
		_, _ = fmt.Fprintln(writer, line)
	}
}
