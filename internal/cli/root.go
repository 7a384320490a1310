package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcoot/tabletop/internal/dependencies/clock"
	"github.com/mcoot/tabletop/internal/services/auth"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "tabletop",
		Short: "CLI tool for the tabletop server",
		Long: `tabletop joins and administers a tabletop server.

"connect" performs the encrypted join handshake against the table port.
The remaining commands use the admin API, authenticating with a bearer token
given directly or minted from the admin secret.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Token == "" && cfg.AdminSecret != "" {
				token, err := auth.New(clock.New(), auth.Config{Secret: cfg.AdminSecret}).Issue("cli")
				if err != nil {
					return fmt.Errorf("failed to mint token: %w", err)
				}
				cfg.Token = token
			}

			client = NewClient(cfg.ServerURL, cfg.Token)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Admin API URL (env: TABLETOP_ADMIN_URL)")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "Admin bearer token (env: TABLETOP_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cfg.AdminSecret, "admin-secret", cfg.AdminSecret, "Mint a token from the admin secret (env: TABLETOP_ADMIN_SECRET)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newPlayersCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newWhoamiCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
