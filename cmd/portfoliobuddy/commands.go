package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/portfoliobuddy/internal/api"
	"github.com/ajitpratap0/portfoliobuddy/internal/config"
	"github.com/ajitpratap0/portfoliobuddy/internal/db"
	"github.com/ajitpratap0/portfoliobuddy/internal/mcpserver"
	"github.com/ajitpratap0/portfoliobuddy/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// --- Bot Command ---

func (c *cli) botCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		Long:  "Run the Telegram bot in polling mode, or webhook mode when telegram.webhook_url is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.RequireTelegram(); err != nil {
				return err
			}
			if err := c.cfg.RequireLLM(); err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := buildApp(ctx, c.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.startMonitoring(ctx); err != nil {
				return err
			}

			bot, err := telegram.NewBot(&c.cfg.Telegram, a.chat)
			if err != nil {
				return err
			}
			if h := a.history(); h != nil {
				bot.WithHistory(h)
			}

			log.Info().
				Str("mode", botMode(c.cfg.Telegram.WebhookURL)).
				Str("ledger", c.cfg.Ledger.Path).
				Msg("Starting PortfolioBuddy Telegram bot")

			errCh := make(chan error, 1)
			go func() { errCh <- bot.Start() }()

			select {
			case <-ctx.Done():
				log.Info().Msg("Received shutdown signal")
				bot.Stop()
				return nil
			case err := <-errCh:
				bot.Stop()
				return err
			}
		},
	}
}

func botMode(webhookURL string) string {
	if webhookURL != "" {
		return "webhook"
	}
	return "polling"
}

// --- Serve Command ---

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.RequireLLM(); err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := buildApp(ctx, c.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.startMonitoring(ctx); err != nil {
				return err
			}

			deps := api.Deps{
				Chat:     a.chat,
				Sessions: a.store,
				Version:  config.Version,
			}
			if h := a.history(); h != nil {
				deps.History = h
			}
			server := api.NewServer(c.cfg.API, deps)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case <-ctx.Done():
				log.Info().Msg("Received shutdown signal")
			case err := <-errCh:
				if err != nil {
					return err
				}
				return nil
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Stop(shutdownCtx)
		},
	}
}

// --- Ask Command ---

func (c *cli) askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   `ask "question"`,
		Short: "Ask PortfolioBuddy one question",
		Example: `  portfoliobuddy ask "How is my portfolio doing?"
  portfoliobuddy ask "Should I buy more NVDA?" --plain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.RequireLLM(); err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := buildApp(ctx, c.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			user, _ := cmd.Flags().GetString("user")
			reply, err := a.chat.HandleMessage(ctx, user, strings.Join(args, " "))
			if err != nil {
				return err
			}

			plain, _ := cmd.Flags().GetBool("plain")
			style, _ := cmd.Flags().GetString("style")
			return printReply(cmd.OutOrStdout(), reply.Text, plain, style)
		},
	}
	cmd.Flags().String("user", "cli", "session user id")
	cmd.Flags().Bool("plain", false, "print the raw reply without markdown rendering")
	cmd.Flags().String("style", "dark", "glamour style (dark, light, notty, dracula)")
	return cmd
}

// printReply renders markdown for the terminal. Rendering failures fall
// back to the raw text.
func printReply(w io.Writer, text string, plain bool, style string) error {
	if !plain {
		rendered, err := glamour.Render(text, style)
		if err == nil {
			_, err = io.WriteString(w, rendered)
			return err
		}
		log.Debug().Err(err).Str("style", style).Msg("Markdown rendering failed")
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// --- MCP Command ---

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve PortfolioBuddy tools over MCP on stdio",
		Long: `Serve the chat, analyze_symbol and portfolio_summary tools over the Model
Context Protocol on stdin/stdout. Without a model credential only the
analysis tools are offered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			withChat := true
			if err := c.cfg.RequireLLM(); err != nil {
				log.Warn().Err(err).Msg("No model credential, the chat tool is disabled")
				withChat = false
			}

			a, err := buildApp(ctx, c.cfg, withChat)
			if err != nil {
				return err
			}
			defer a.Close()

			deps := mcpserver.Deps{
				Ledger:   a.ledger,
				Enricher: a.enricher,
				Analyzer: a.analyzer,
			}
			if a.chat != nil {
				deps.Chat = a.chat
			}

			log.Info().Msg("Starting MCP server on stdio")
			return mcpserver.New(config.Version, deps).Run(ctx)
		},
	}
}

// --- Migrate Command ---

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the transcript schema to PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Database.URL == "" {
				return fmt.Errorf("database.url is required (DATABASE_URL)")
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			database, err := db.New(ctx, c.cfg.Database.Config)
			if err != nil {
				return err
			}
			defer database.Close()

			migrator := db.NewMigrator(database.Pool())
			out := cmd.OutOrStdout()

			if status, _ := cmd.Flags().GetBool("status"); status {
				statuses, err := migrator.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Fprintf(out, "%03d  %-8s %s\n", s.Version, state, s.Description)
				}
				return nil
			}

			applied, err := migrator.Migrate(ctx)
			if err != nil {
				return err
			}
			version, err := migrator.CurrentVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Applied %d migration(s), schema version %d\n", applied, version)
			return nil
		},
	}
	cmd.Flags().Bool("status", false, "list migrations and whether they are applied")
	return cmd
}

// --- Version Command ---

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "PortfolioBuddy %s\n", config.GetVersion())
		},
	}
}
