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

// RunRotateToken replaces a token with a fresh one using the named strategy, or the
// type default when empty, and prints the new plaintext once.
//
// Requirements: Database must be migrated and accessible.
func RunRotateToken(
	ctx context.Context,
	tokenUseCase apikeyUseCase.TokenUseCase,
	logger *slog.Logger,
	writer io.Writer,
	tokenIDStr string,
	strategy string,
	format string,
) error {
	tokenID, err := uuid.Parse(tokenIDStr)
	if err != nil {
		return fmt.Errorf("invalid token ID format: %w", err)
	}

	logger.Info("rotating token",
		slog.String("token_id", tokenID.String()),
		slog.String("strategy", strategy),
	)

	output, err := tokenUseCase.Rotate(ctx, tokenID, strategy)
	if err != nil {
		return fmt.Errorf("failed to rotate token: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, dto.MapRotateOutputToResponse(output)); err != nil {
			return err
		}
	} else {
		outputRotateText(writer, output)
	}

	logger.Info("token rotated successfully",
		slog.String("old_token_id", output.OldToken.ID.String()),
		slog.String("new_token_id", output.NewToken.ID.String()),
		slog.String("strategy", output.Strategy),
	)

	return nil
}

// outputRotateText outputs the rotation result in human-readable text format.
func outputRotateText(writer io.Writer, output *domain.RotateTokenOutput) {
	_, _ = fmt.Fprintln(writer, "\nToken rotated successfully!")
	_, _ = fmt.Fprintf(writer, "Strategy: %s\n", output.Strategy)
	_, _ = fmt.Fprintf(writer, "Old Token ID: %s\n", output.OldToken.ID.String())
	if output.OldToken.RevokedAt != nil {
		_, _ = fmt.Fprintf(writer, "Old Token Valid Until: %s\n", output.OldToken.RevokedAt.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(writer, "New Token ID: %s\n", output.NewToken.ID.String())
	_, _ = fmt.Fprintf(writer, "Token: %s\n", output.PlainToken)
	_, _ = fmt.Fprintln(writer, "\nIMPORTANT: The token is shown only once. Store it securely.")
}
