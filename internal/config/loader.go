package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// ErrRootRequired is returned when KATRA_ROOT is unset and no root was
// otherwise supplied; spec.md §6 maps this to exit code 1.
var ErrRootRequired = errors.New("config: KATRA_ROOT is required")

// Load builds a Config from defaults, then a KEY=VALUE file under
// config/, then the process environment — each layer overrides the
// previous one, mirroring the teacher's layered envconfig.Process calls.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Layer 1: an optional KEY=VALUE file under config/katra.env.
	if envPath := resolveEnvFilePath(); envPath != "" {
		if err := applyEnvFile(envPath); err != nil {
			return nil, fmt.Errorf("config: load env file: %w", err)
		}
	}

	// Layer 2: process environment, highest precedence.
	if err := envconfig.Process("KATRA", cfg); err != nil {
		return nil, fmt.Errorf("config: process env: %w", err)
	}
	if err := envconfig.Process("KATRA", &cfg.TCP); err != nil {
		return nil, fmt.Errorf("config: process tcp env: %w", err)
	}
	if err := envconfig.Process("KATRA", &cfg.Tiers); err != nil {
		return nil, fmt.Errorf("config: process tiers env: %w", err)
	}
	if err := envconfig.Process("KATRA", &cfg.Consolidation); err != nil {
		return nil, fmt.Errorf("config: process consolidation env: %w", err)
	}

	if cfg.Root == "" {
		return cfg, ErrRootRequired
	}
	return cfg, nil
}

// resolveEnvFilePath finds the KEY=VALUE override file, preferring an
// explicit KATRA_ENV_FILE, then config/katra.env relative to the cwd.
func resolveEnvFilePath() string {
	if explicit := os.Getenv("KATRA_ENV_FILE"); explicit != "" {
		return explicit
	}
	candidate := filepath.Join("config", "katra.env")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}
