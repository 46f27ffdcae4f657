package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shohag/coinhook/internal/api"
	"github.com/shohag/coinhook/internal/coinbase"
	"github.com/shohag/coinhook/internal/config"
	"github.com/shohag/coinhook/internal/metrics"
	"github.com/shohag/coinhook/internal/signing"
	"github.com/shohag/coinhook/internal/webhook"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "coinhook",
		Short:         "Coinbase accounts client and webhook receiver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(opts.envFile)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading config")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(accountsCmd(opts))
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Coinbase webhook receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging, cmd.ErrOrStderr())

			if !cfg.Webhook.VerificationEnabled {
				log.Warn().Msg("no webhook secret configured, set COINBASE_WEBHOOK_SECRET to enable signature verification")
			}

			server := api.NewServer(cfg, webhook.NewDefaultDispatcher(), metrics.New(), log)

			errCh := make(chan error, 1)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			log.Info().
				Str("version", version).
				Str("addr", server.Addr()).
				Str("webhook_endpoint", fmt.Sprintf("http://localhost:%d%s", cfg.Server.Port, cfg.Webhook.Path)).
				Msg("webhook server is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-quit:
			case err := <-errCh:
				return fmt.Errorf("server error: %w", err)
			}

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			log.Info().Msg("webhook server stopped")
			return nil
		},
	}
}

func accountsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "Fetch accounts from the Coinbase API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging, cmd.ErrOrStderr())
			log.Info().Str("api_url", cfg.Coinbase.BaseURL).Msg("connecting to coinbase api")

			if !cfg.Coinbase.HasAPIKey() {
				log.Warn().Msg("coinbase api key not configured, set COINBASE_API_KEY in your environment")
			}

			return runAccounts(cmd.Context(), coinbase.NewClient(cfg.Coinbase, log), cmd.OutOrStdout(), log)
		},
	}
}

func runAccounts(ctx context.Context, client *coinbase.Client, out io.Writer, log zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := client.GetAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to coinbase api")
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Raw, "", "  "); err != nil {
		return fmt.Errorf("failed to format accounts: %w", err)
	}
	pretty.WriteByte('\n')

	_, err = out.Write(pretty.Bytes())
	return err
}

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute the X-Coinbase-Signature for a payload (reads stdin without --file)",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				secret = os.Getenv("COINBASE_WEBHOOK_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or COINBASE_WEBHOOK_SECRET is required")
			}

			var payload []byte
			var err error
			if file, _ := cmd.Flags().GetString("file"); file != "" {
				payload, err = os.ReadFile(file)
			} else {
				payload, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("failed to read payload: %w", err)
			}
			if len(payload) == 0 {
				return fmt.Errorf("payload is empty")
			}

			fmt.Fprintln(cmd.OutOrStdout(), signing.Sign(secret, payload))
			return nil
		},
	}
	cmd.Flags().String("secret", "", "webhook shared secret")
	cmd.Flags().String("file", "", "payload file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "coinhook v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).
			With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
