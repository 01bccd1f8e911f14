package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/spachava753/buildmaster/internal/models"
)

const (
	EnvURL      = "BUILDMASTER_URL"
	EnvLogLevel = "BUILDMASTER_LOG_LEVEL"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides configuration values from the environment.
func ApplyEnv(cfg *models.MasterConfig, settings *models.Settings) {
	if v := os.Getenv(EnvURL); v != "" {
		settings.URL = v
		cfg.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if cfg.URL == "" {
		cfg.URL = settings.URL
	}
}
