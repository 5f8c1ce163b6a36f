package main

import (
	"context"
	"fmt"

	"github.com/lavishq/lavis/internal/config"
	"github.com/lavishq/lavis/internal/defaults"
	"github.com/lavishq/lavis/internal/svc"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

// Shared CLI flags.
var (
	verbose     bool
	dataDirFlag string
)

// loadConfig resolves the data directory (flag wins) and loads the
// configuration from it, creating the directory tree on first run.
func loadConfig() (config.Config, error) {
	dataDir := dataDirFlag
	if dataDir == "" {
		dir, err := defaults.EnsureDataDir()
		if err != nil {
			return config.Config{}, fmt.Errorf("initialize data directory: %w", err)
		}
		dataDir = dir
	}
	return config.Load(dataDir)
}

// buildContext loads config and wires the full service context. The
// caller owns svcCtx.Close.
func buildContext(ctx context.Context) (*svc.ServiceContext, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return svc.NewServiceContext(ctx, cfg, Version)
}
