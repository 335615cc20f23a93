package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Eligibility age can be measured from card creation or from last activity;
// the deployment picks one explicitly.
const (
	AgeBasisActivity = "activity"
	AgeBasisCreation = "creation"
)

// Config is loaded once at startup and passed around as an immutable value.
// Nothing reads viper after Load returns.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Trello   TrelloConfig   `mapstructure:"trello"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Server   ServerConfig   `mapstructure:"server"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type TrelloConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"` // accepted for parity with older deployments, unused by token auth
	APIToken  string `mapstructure:"api_token"`
	BoardID   string `mapstructure:"board_id"`
	ListID    string `mapstructure:"list_id"`

	BaseURL           string        `mapstructure:"base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	DownloadTimeout   time.Duration `mapstructure:"download_timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

type ArchiveConfig struct {
	AttachmentDir string        `mapstructure:"attachment_dir"`
	RemoveAfter   bool          `mapstructure:"remove_after"`
	MinAge        time.Duration `mapstructure:"min_age"`
	AgeBasis      string        `mapstructure:"age_basis"`
	Workers       int           `mapstructure:"workers"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// Load reads config.toml from the working directory (optional) with
// ARCHIVER_-prefixed environment variables taking precedence. A .env file is
// honoured if present. Validation failures here are fatal configuration
// errors; no archival work starts before Load succeeds.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("archiver")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.path", "trello_archive.db")
	v.SetDefault("trello.base_url", "https://api.trello.com/1")
	v.SetDefault("trello.request_timeout", 30*time.Second)
	v.SetDefault("trello.download_timeout", 2*time.Minute)
	v.SetDefault("trello.max_attempts", 4)
	v.SetDefault("trello.requests_per_second", 8.0)
	v.SetDefault("archive.attachment_dir", ".")
	v.SetDefault("archive.remove_after", false)
	v.SetDefault("archive.min_age", 30*24*time.Hour)
	v.SetDefault("archive.age_basis", AgeBasisActivity)
	v.SetDefault("archive.workers", 4)
	v.SetDefault("server.port", "8080")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; everything can come from the environment.
	}

	// Environment variables don't register as set keys until bound explicitly.
	for _, key := range []string{
		"database.path",
		"trello.api_key", "trello.api_secret", "trello.api_token",
		"trello.board_id", "trello.list_id",
		"archive.attachment_dir", "archive.remove_after",
		"archive.min_age", "archive.age_basis", "archive.workers",
		"server.port",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.Trello.APIKey == "" {
		missing = append(missing, "trello.api_key")
	}
	if c.Trello.APIToken == "" {
		missing = append(missing, "trello.api_token")
	}
	if c.Trello.BoardID == "" {
		missing = append(missing, "trello.board_id")
	}
	if c.Trello.ListID == "" {
		missing = append(missing, "trello.list_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Archive.AgeBasis != AgeBasisActivity && c.Archive.AgeBasis != AgeBasisCreation {
		return fmt.Errorf("archive.age_basis must be %q or %q, got %q",
			AgeBasisActivity, AgeBasisCreation, c.Archive.AgeBasis)
	}
	if c.Archive.Workers < 1 {
		return fmt.Errorf("archive.workers must be at least 1, got %d", c.Archive.Workers)
	}
	if c.Trello.MaxAttempts < 1 {
		return fmt.Errorf("trello.max_attempts must be at least 1, got %d", c.Trello.MaxAttempts)
	}
	return nil
}
