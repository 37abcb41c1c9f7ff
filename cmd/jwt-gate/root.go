package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/jwt-gate/config"
	"github.com/upb/jwt-gate/internal/observability"
	"go.uber.org/zap"
)

var (
	logLevel string

	// cfg and logger are set by the root PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "jwt-gate",
	Short: "Bearer token gate in front of HTTP handlers",
	Long: `jwt-gate verifies bearer tokens against the identity provider's public key,
caching the key on disk, and enforces permitted/denied role rules on the token claims.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initRuntime(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
}

func initRuntime(cmd *cobra.Command) error {
	var err error
	cfg, err = config.New(cmd.Context())
	if err != nil {
		return err
	}

	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}

	logger, err = observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	return nil
}
