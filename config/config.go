// Package config loads server configuration from a TOML file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/warp/timesheet-engine/periodlock"
)

// Config is the server configuration. Every field has a default so an empty
// file (or no file at all) yields a runnable server.
type Config struct {
	Addr               string   `toml:"addr"`
	DB                 string   `toml:"db"`
	CorsOrigins        []string `toml:"cors_origins"`
	MinJustification   int      `toml:"min_justification"`
	DeclarationBaseURL string   `toml:"declaration_base_url"`
}

func Default() Config {
	return Config{
		Addr:               ":8080",
		DB:                 "timesheets.db",
		CorsOrigins:        []string{"http://localhost:5173", "http://localhost:8080"},
		MinJustification:   periodlock.DefaultMinJustification,
		DeclarationBaseURL: "/declarations",
	}
}

// Load reads the TOML file at path and fills in defaults for anything the
// file leaves out.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DB == "" {
		cfg.DB = "timesheets.db"
	}
	if cfg.MinJustification <= 0 {
		cfg.MinJustification = periodlock.DefaultMinJustification
	}
	if cfg.DeclarationBaseURL == "" {
		cfg.DeclarationBaseURL = "/declarations"
	}
	return cfg, nil
}
