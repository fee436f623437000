// PortfolioBuddy is a conversational investment assistant. One binary
// serves every transport: Telegram, the HTTP API, the stdio MCP server and
// a one-shot CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/portfoliobuddy/internal/config"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the loaded configuration from the root command to its
// subcommands.
type cli struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "portfoliobuddy",
		Short: "PortfolioBuddy, a friendly investment assistant",
		Long: `PortfolioBuddy answers questions about your holdings, analyzes stocks
with live quotes and news sentiment, and explains its BUY / SELL / HOLD /
WATCH suggestions in plain language.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().String("config", "", "config file path (default: ./configs/config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		c.botCmd(),
		c.serveCmd(),
		c.askCmd(),
		c.mcpCmd(),
		c.migrateCmd(),
		versionCmd(),
	)
	return root
}

// setup loads .env, the configuration and Vault secrets, then initializes
// logging.
func (c *cli) setup(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(level)); err != nil {
			return fmt.Errorf("invalid --log-level %q", level)
		}
		cfg.App.LogLevel = level
	}

	// stdout carries the MCP protocol; the one-shot CLI prints only the
	// answer there.
	output := os.Stdout
	if cmd.Name() == "mcp" || cmd.Name() == "ask" {
		output = os.Stderr
	}
	config.SetupLogger(config.LoggerConfig{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
		Output: output,
	})

	if err := config.LoadSecretsFromVault(cmd.Context(), cfg, config.GetVaultConfigFromEnv()); err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	log.Debug().
		Str("environment", cfg.App.Environment).
		Str("llm_provider", cfg.LLM.Provider).
		Str("session_store", cfg.Session.Store).
		Msg("Configuration loaded")

	c.cfg = cfg
	return nil
}
