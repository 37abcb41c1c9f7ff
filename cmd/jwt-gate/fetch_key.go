package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/jwt-gate/keycache"
	"github.com/upb/jwt-gate/token"
	"go.uber.org/zap"
)

var fetchKeyCmd = &cobra.Command{
	Use:   "fetch-key",
	Short: "Fetch the issuer's public key into the local cache",
	Long: `Download the PEM public key from <issuer>pem, check that it parses, and write it
to the key cache file, replacing any cached copy.`,
	RunE: runFetchKey,
}

func init() {
	rootCmd.AddCommand(fetchKeyCmd)
}

func runFetchKey(cmd *cobra.Command, args []string) error {
	provider := keycache.New(keycache.Config{
		Path:        cfg.KeyCache.Path,
		URL:         cfg.Auth.KeyURL(),
		HTTPTimeout: cfg.KeyCache.FetchTimeout,
	}, logger.Named("keycache"))

	key, err := provider.Fetch(cmd.Context())
	if err != nil {
		return err
	}
	if _, _, err := token.ParsePublicKey(key); err != nil {
		return fmt.Errorf("issuer returned an unusable key: %w", err)
	}

	if err := provider.Store(key); err != nil {
		return fmt.Errorf("failed to cache public key: %w", err)
	}

	logger.Info("public key cached",
		zap.String("url", cfg.Auth.KeyURL()),
		zap.String("path", provider.Path()))
	return nil
}
