// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the envconfig prefix. Every variable is looked up as WIDDLE_<NAME>
// first and then as the bare <NAME>, so OLLAMA_BASE_URL and friends work as-is.
const Prefix = "widdle"

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"sqlite"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"widdle.db"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	UploadsDir    string `envconfig:"UPLOADS_DIR" default:"public/uploads"`

	OllamaBaseURL      string        `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	OllamaModel        string        `envconfig:"OLLAMA_MODEL" default:"llama2"`
	OllamaTimeout      time.Duration `envconfig:"OLLAMA_TIMEOUT" default:"60s"`
	OllamaTokenURL     string        `envconfig:"OLLAMA_TOKEN_URL"`
	OllamaClientID     string        `envconfig:"OLLAMA_CLIENT_ID"`
	OllamaClientSecret string        `envconfig:"OLLAMA_CLIENT_SECRET"`

	StageTimeout     time.Duration `envconfig:"STAGE_TIMEOUT" default:"30s"`
	StageAttempts    int           `envconfig:"STAGE_ATTEMPTS" default:"1"`
	StageBackoff     time.Duration `envconfig:"STAGE_BACKOFF" default:"500ms"`
	ConcurrentStages bool          `envconfig:"CONCURRENT_STAGES" default:"false"`

	FFmpegPath string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
}

// Load reads the configuration and validates the storage selection.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("config: SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.StorageDriver)
	}
	if c.StageAttempts < 1 {
		return fmt.Errorf("config: STAGE_ATTEMPTS must be at least 1")
	}
	return nil
}

// OAuthEnabled reports whether the inference endpoint sits behind client-credential auth.
func (c Config) OAuthEnabled() bool {
	return c.OllamaTokenURL != "" && c.OllamaClientID != ""
}
