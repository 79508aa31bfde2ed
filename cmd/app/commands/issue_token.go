package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/apikey/http/dto"
	apikeyUseCase "github.com/allisson/apikeys/internal/apikey/usecase"
)

// IssueTokenOptions holds the issue-token flags. List flags are comma-separated.
type IssueTokenOptions struct {
	Type               string
	Environment        string
	Name               string
	Abilities          string
	AllowedIPs         string
	AllowedDomains     string
	RateLimitPerMinute int
	ExpiresInHours     int
	Owner              string // "kind:id"
	Group              bool
	Format             string
}

// RunIssueToken issues a root token, or a full token group when opts.Group is set,
// and prints the plaintext once. Useful to bootstrap the first tokens:manage key.
//
// Requirements: Database must be migrated and accessible.
func RunIssueToken(
	ctx context.Context,
	tokenUseCase apikeyUseCase.TokenUseCase,
	logger *slog.Logger,
	writer io.Writer,
	opts IssueTokenOptions,
) error {
	owner, err := parseEntityRef(opts.Owner)
	if err != nil {
		return err
	}

	if opts.Group {
		return issueGroup(ctx, tokenUseCase, logger, writer, opts, owner)
	}

	logger.Info("issuing token",
		slog.String("type", opts.Type),
		slog.String("environment", opts.Environment),
	)

	input := &domain.IssueTokenInput{
		Type:           domain.TokenType(opts.Type),
		Environment:    opts.Environment,
		Name:           opts.Name,
		Abilities:      splitCSV(opts.Abilities),
		AllowedIPs:     splitCSV(opts.AllowedIPs),
		AllowedDomains: splitCSV(opts.AllowedDomains),
		Owner:          owner,
	}
	if opts.RateLimitPerMinute > 0 {
		limit := opts.RateLimitPerMinute
		input.RateLimitPerMinute = &limit
	}
	if opts.ExpiresInHours > 0 {
		expiresAt := time.Now().UTC().Add(time.Duration(opts.ExpiresInHours) * time.Hour)
		input.ExpiresAt = &expiresAt
	}

	output, err := tokenUseCase.Issue(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	if opts.Format == "json" {
		if err := writeJSON(writer, dto.MapIssueOutputToResponse(output)); err != nil {
			return err
		}
	} else {
		outputIssueText(writer, output)
	}

	logger.Info("token issued successfully",
		slog.String("token_id", output.Token.ID.String()),
		slog.String("type", output.Token.Type.String()),
	)

	return nil
}

func issueGroup(
	ctx context.Context,
	tokenUseCase apikeyUseCase.TokenUseCase,
	logger *slog.Logger,
	writer io.Writer,
	opts IssueTokenOptions,
	owner *domain.EntityRef,
) error {
	logger.Info("issuing token group", slog.String("environment", opts.Environment))

	var types []domain.TokenType
	for _, tokenType := range splitCSV(opts.Type) {
		types = append(types, domain.TokenType(tokenType))
	}

	output, err := tokenUseCase.IssueGroup(ctx, &domain.IssueGroupInput{
		Name:        opts.Name,
		Environment: opts.Environment,
		Types:       types,
		AllowedIPs:  splitCSV(opts.AllowedIPs),
		Owner:       owner,
	})
	if err != nil {
		return fmt.Errorf("failed to issue token group: %w", err)
	}

	if opts.Format == "json" {
		if err := writeJSON(writer, dto.MapIssueGroupOutputToResponse(output)); err != nil {
			return err
		}
	} else {
		outputIssueGroupText(writer, output)
	}

	logger.Info("token group issued successfully", slog.String("group_id", output.Group.ID.String()))
	return nil
}

// parseEntityRef parses "kind:id". An empty value means no reference.
func parseEntityRef(value string) (*domain.EntityRef, error) {
	if value == "" {
		return nil, nil
	}
	kind, id, found := strings.Cut(value, ":")
	if !found || kind == "" || id == "" {
		return nil, fmt.Errorf("invalid entity reference %q (expected kind:id)", value)
	}
	return domain.NewEntityRef(kind, id), nil
}

// outputIssueText outputs the issued token in human-readable text format.
func outputIssueText(writer io.Writer, output *domain.IssueTokenOutput) {
	_, _ = fmt.Fprintln(writer, "\nToken issued successfully!")
	_, _ = fmt.Fprintf(writer, "Token ID: %s\n", output.Token.ID.String())
	_, _ = fmt.Fprintf(writer, "Type: %s\n", output.Token.Type)
	_, _ = fmt.Fprintf(writer, "Environment: %s\n", output.Token.Environment)
	_, _ = fmt.Fprintf(writer, "Abilities: %s\n", strings.Join(output.Token.Abilities.List(), ", "))
	if output.Token.ExpiresAt != nil {
		_, _ = fmt.Fprintf(writer, "Expires At: %s\n", output.Token.ExpiresAt.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(writer, "Token: %s\n", output.PlainToken)
	_, _ = fmt.Fprintln(writer, "\nIMPORTANT: The token is shown only once. Store it securely.")
}

// outputIssueGroupText outputs every member of an issued group.
func outputIssueGroupText(writer io.Writer, output *domain.IssueGroupOutput) {
	_, _ = fmt.Fprintln(writer, "\nToken group issued successfully!")
	_, _ = fmt.Fprintf(writer, "Group ID: %s\n", output.Group.ID.String())

	types := make([]string, 0, len(output.PlainTokens))
	for tokenType := range output.PlainTokens {
		types = append(types, tokenType.String())
	}
	sort.Strings(types)

	for _, tokenType := range types {
		_, _ = fmt.Fprintf(writer, "%s: %s\n", tokenType, output.PlainTokens[domain.TokenType(tokenType)])
	}
	_, _ = fmt.Fprintln(writer, "\nIMPORTANT: The tokens are shown only once. Store them securely.")
}
