package app

import (
	"context"
	"fmt"

	"github.com/upb/jwt-gate/config"
	"github.com/upb/jwt-gate/keycache"
	"github.com/upb/jwt-gate/middleware"
	"github.com/upb/jwt-gate/rbac"
	"github.com/upb/jwt-gate/token"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Auth
	Keys     *keycache.Provider
	Verifier *token.Verifier
	Gate     *middleware.Gate

	// Permissions is the spec loaded from Config.Auth.PermissionsFile, nil when unset
	Permissions rbac.Spec
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initAuth(cfg)

	if err := deps.initPermissions(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize permissions: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("issuer", cfg.Auth.Issuer),
		zap.String("key_cache", deps.Keys.Path()))
	return deps, nil
}

// initAuth builds the key provider, verifier and gate from one Config
func (d *Dependencies) initAuth(cfg *config.Config) {
	d.Keys = keycache.New(keycache.Config{
		Path:        cfg.KeyCache.Path,
		URL:         cfg.Auth.KeyURL(),
		HTTPTimeout: cfg.KeyCache.FetchTimeout,
	}, d.Logger.Named("keycache"))

	d.Verifier = token.NewVerifier(token.Options{
		Audience: cfg.Auth.Audience,
		Issuer:   cfg.Auth.Issuer,
	})

	d.Gate = middleware.NewGate(d.Keys, d.Verifier, middleware.GateOptions{
		Debug: cfg.Auth.Debug,
	}, d.Logger.Named("gate"))
}

// initPermissions loads the optional permission spec file
func (d *Dependencies) initPermissions(cfg *config.Config) error {
	if cfg.Auth.PermissionsFile == "" {
		return nil
	}

	spec, err := rbac.Load(cfg.Auth.PermissionsFile)
	if err != nil {
		return err
	}

	d.Permissions = spec
	d.Logger.Info("permission spec loaded",
		zap.String("path", cfg.Auth.PermissionsFile),
		zap.Int("claims", len(spec)))
	return nil
}

// Close stops key cache write-backs and waits for pending ones to finish
func (d *Dependencies) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.Keys.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for key cache writes: %w", ctx.Err())
	}
}
