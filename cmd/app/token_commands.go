package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/allisson/apikeys/cmd/app/commands"
	"github.com/allisson/apikeys/internal/app"
	"github.com/allisson/apikeys/internal/config"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

// tokenContainer loads and validates the configuration before building the container,
// so a bad TOKEN_* setting fails the command instead of issuing with defaults.
func tokenContainer() (*app.Container, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return app.NewContainer(cfg), nil
}

func getTokenCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "issue-token",
			Usage: "Issue a root API key, or a group of sibling keys with --group",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "type",
					Aliases: []string{"t"},
					Value:   "secret",
					Usage:   "Token type (with --group: comma-separated list, empty for every type)",
				},
				&cli.StringFlag{
					Name:     "environment",
					Aliases:  []string{"e"},
					Required: true,
					Usage:    "Token environment (e.g., test or live)",
				},
				&cli.StringFlag{
					Name:    "name",
					Aliases: []string{"n"},
					Usage:   "Human-readable token name",
				},
				&cli.StringFlag{
					Name:    "abilities",
					Aliases: []string{"a"},
					Usage:   "Comma-separated abilities (omit to use the type defaults)",
				},
				&cli.StringFlag{
					Name:  "allowed-ips",
					Usage: "Comma-separated IP addresses or CIDR ranges",
				},
				&cli.StringFlag{
					Name:  "allowed-domains",
					Usage: "Comma-separated domains, '*.example.com' wildcards allowed",
				},
				&cli.IntFlag{
					Name:  "rate-limit",
					Usage: "Requests per minute (0 uses the type default)",
				},
				&cli.IntFlag{
					Name:  "expires-in-hours",
					Usage: "Expiration in hours (0 uses the type default)",
				},
				&cli.StringFlag{
					Name:  "owner",
					Usage: "Owning entity as kind:id (e.g., user:42)",
				},
				&cli.BoolFlag{
					Name:  "group",
					Value: false,
					Usage: "Issue one token per type sharing a group",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := tokenContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				tokenUseCase, err := container.TokenUseCase()
				if err != nil {
					return err
				}

				tokenType := cmd.String("type")
				if cmd.Bool("group") && !cmd.IsSet("type") {
					tokenType = ""
				}

				return commands.RunIssueToken(
					ctx,
					tokenUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					commands.IssueTokenOptions{
						Type:               tokenType,
						Environment:        cmd.String("environment"),
						Name:               cmd.String("name"),
						Abilities:          cmd.String("abilities"),
						AllowedIPs:         cmd.String("allowed-ips"),
						AllowedDomains:     cmd.String("allowed-domains"),
						RateLimitPerMinute: int(cmd.Int("rate-limit")),
						ExpiresInHours:     int(cmd.Int("expires-in-hours")),
						Owner:              cmd.String("owner"),
						Group:              cmd.Bool("group"),
						Format:             cmd.String("format"),
					},
				)
			},
		},
		{
			Name:  "revoke-token",
			Usage: "Revoke an API key using a revocation strategy",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Token ID (UUID)",
				},
				&cli.StringFlag{
					Name:    "strategy",
					Aliases: []string{"s"},
					Usage:   "none, cascade, partial_cascade, cascade_descendants or timed (omit for the type default)",
				},
				&cli.BoolFlag{
					Name:    "dry-run",
					Aliases: []string{"n"},
					Value:   false,
					Usage:   "List the tokens that would be revoked without revoking",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := tokenContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				tokenUseCase, err := container.TokenUseCase()
				if err != nil {
					return err
				}

				return commands.RunRevokeToken(
					ctx,
					tokenUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.String("strategy"),
					cmd.Bool("dry-run"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rotate-token",
			Usage: "Rotate an API key using a rotation strategy",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Token ID (UUID)",
				},
				&cli.StringFlag{
					Name:    "strategy",
					Aliases: []string{"s"},
					Usage:   "immediate, grace_period or dual_valid (omit for the type default)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := tokenContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				tokenUseCase, err := container.TokenUseCase()
				if err != nil {
					return err
				}

				return commands.RunRotateToken(
					ctx,
					tokenUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.String("strategy"),
					cmd.String("format"),
				)
			},
		},
	}
}
