package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lavishq/lavis/internal/keyring"
	"github.com/lavishq/lavis/internal/store"
)

type checkResult struct {
	name    string
	status  string // "ok", "warn", "error"
	message string
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and diagnose issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

func runDoctor() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var results []checkResult

	results = append(results, checkResult{"data dir", "ok", cfg.DataDir})

	switch cfg.Provider {
	case "gemini", "anthropic", "openai":
		if cfg.ResolveAPIKey() != "" {
			results = append(results, checkResult{"api key", "ok", cfg.Provider + " key resolved"})
		} else {
			results = append(results, checkResult{"api key", "error",
				"no key for " + cfg.Provider + " in env, config, or keychain"})
		}
	case "ollama":
		results = append(results, checkResult{"api key", "ok", "ollama needs no key"})
	default:
		results = append(results, checkResult{"api key", "error",
			fmt.Sprintf("unknown provider %q", cfg.Provider)})
	}

	if keyring.Available() {
		results = append(results, checkResult{"keychain", "ok", "OS keychain reachable"})
	} else {
		results = append(results, checkResult{"keychain", "warn", "OS keychain unavailable, using env/config only"})
	}

	if st, err := store.Open(cfg.SQLitePath()); err != nil {
		results = append(results, checkResult{"database", "error", err.Error()})
	} else {
		st.Close()
		results = append(results, checkResult{"database", "ok", cfg.SQLitePath()})
	}

	if info, err := os.Stat(cfg.SkillsDir()); err == nil && info.IsDir() {
		results = append(results, checkResult{"skills dir", "ok", cfg.SkillsDir()})
	} else {
		results = append(results, checkResult{"skills dir", "warn", cfg.SkillsDir() + " missing (created on first run)"})
	}

	failed := false
	for _, r := range results {
		mark := "✓"
		switch r.status {
		case "warn":
			mark = "!"
		case "error":
			mark = "✗"
			failed = true
		}
		fmt.Printf("  %s %-12s %s\n", mark, r.name, r.message)
	}
	if failed {
		return fmt.Errorf("doctor found problems")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}
