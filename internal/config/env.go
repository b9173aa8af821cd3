package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvConfigPath  = "ESTATECRON_CONFIG"
	EnvFXURL       = "FX_API_URL"
	EnvDatabaseURL = "DATABASE_URL"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored;
// with no paths it reads ./.env.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg. DATABASE_URL sets the
// storage DSN and, when no driver is configured, selects postgres.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvFXURL)); v != "" {
		cfg.FX.URL = v
	}
	if v := strings.TrimSpace(getenv(EnvDatabaseURL)); v != "" {
		cfg.Storage.DSN = v
		if strings.TrimSpace(cfg.Storage.Driver) == "" {
			cfg.Storage.Driver = "postgres"
		}
	}
}
