// Package config provides centralized configuration for the cardpilot
// server. Values come from a YAML file, environment variables and
// command-line flags, in increasing order of precedence, with defaults
// applied first.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envPrefix namespaces the environment variables, e.g. CARDPILOT_DB_PATH.
const envPrefix = "CARDPILOT_"

// Config holds all server configuration values.
type Config struct {
	// Port is the HTTP server listen port.
	Port string `koanf:"port" validate:"required"`

	// DBPath is the path to the SQLite database file.
	DBPath string `koanf:"db_path" validate:"required"`

	// CORSOrigin is the allowed CORS origin.
	CORSOrigin string `koanf:"cors_origin"`

	// OpenAIKey is the API key for the OpenAI-compatible services. When
	// empty, the server runs with stub collaborators.
	OpenAIKey string `koanf:"openai_api_key"`

	// OpenAIBaseURL overrides the chat/images API endpoint.
	OpenAIBaseURL string `koanf:"openai_base_url"`

	// OpenAIModel is the model identifier for candidate generation.
	OpenAIModel string `koanf:"openai_model"`

	// ImageModel is the model identifier for remote artwork generation.
	ImageModel string `koanf:"image_model"`

	// LocalArtworkURL is the base URL of an on-device image generation
	// server tried before the remote one. Empty disables the local tier.
	LocalArtworkURL string `koanf:"local_artwork_url"`

	// MaintainerInterval is the polling interval of the suggestion count
	// maintainer.
	MaintainerInterval time.Duration `koanf:"maintainer_interval" validate:"gt=0"`

	// EnricherInterval is the polling interval of the enrichment worker.
	EnricherInterval time.Duration `koanf:"enricher_interval" validate:"gt=0"`

	// BatchDelay is the mandatory pause between consecutive candidate
	// generation batches, protecting the collaborator's quota.
	BatchDelay time.Duration `koanf:"batch_delay" validate:"gt=0"`

	// HTTPTimeout is the timeout for outgoing collaborator requests.
	HTTPTimeout time.Duration `koanf:"http_timeout" validate:"gt=0"`
}

// Default returns the built-in configuration values.
func Default() Config {
	return Config{
		Port:               "8080",
		DBPath:             "cardpilot.db",
		CORSOrigin:         "*",
		OpenAIBaseURL:      "https://api.openai.com/v1",
		OpenAIModel:        "gpt-4o-mini",
		ImageModel:         "gpt-image-1",
		MaintainerInterval: 30 * time.Second,
		EnricherInterval:   10 * time.Second,
		BatchDelay:         2 * time.Second,
		HTTPTimeout:        60 * time.Second,
	}
}

// Load builds the configuration. configPath points at an optional YAML file;
// when empty, no file is read. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", configPath, err)
		}
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// Environment variables override the file:
	// CARDPILOT_DB_PATH -> db_path, CARDPILOT_BATCH_DELAY -> batch_delay.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return cfg, fmt.Errorf("load env: %w", err)
	}

	// Command-line flags override everything. Flag names map dashes to
	// underscores: --db-path -> db_path.
	if flags != nil {
		p := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(p, nil); err != nil {
			return cfg, fmt.Errorf("load flags: %w", err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// UseStubs returns true when no API key is configured and the server should
// run with stub collaborators.
func (c Config) UseStubs() bool {
	return c.OpenAIKey == ""
}
