// Package config provides centralized configuration for the orchestration
// core with multi-source priority: environment variables override an optional
// YAML file, which overrides sensible defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chatmesh/chatmesh/core"
)

var (
	// ErrInvalidAPIBase indicates the completion endpoint base URL is unusable.
	ErrInvalidAPIBase = errors.New("invalid api base")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidHistoryLimit indicates the history cap is out of range.
	ErrInvalidHistoryLimit = errors.New("invalid history limit")
)

// Config stores the orchestration core's tunables.
type Config struct {
	// Fallback completion endpoint.
	APIBase        string `mapstructure:"api_base"`
	Model          string `mapstructure:"model"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	SupportsVision bool   `mapstructure:"supports_vision"`

	// Conversation history.
	HistoryLimit int `mapstructure:"history_limit"`

	// Outbound client timeouts.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`

	// Registry maintenance.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepMaxAge   time.Duration `mapstructure:"sweep_max_age"`

	// Logging.
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Options configure loading.
type Options struct {
	// ConfigFile forces a specific file; when empty a chatmesh.yaml in the
	// working directory is used if present.
	ConfigFile string
}

// Load reads configuration from defaults, optional file and environment
// (prefix CHATMESH, e.g. CHATMESH_API_BASE).
func Load(optFns ...func(o *Options)) (*Config, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHATMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("chatmesh")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_base", "http://localhost:11434/v1")
	v.SetDefault("model", "llama3.1")
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("supports_vision", false)

	v.SetDefault("history_limit", 30)

	v.SetDefault("connect_timeout", 10*time.Second)
	v.SetDefault("read_timeout", 5*time.Minute)
	v.SetDefault("write_timeout", 30*time.Second)

	v.SetDefault("sweep_interval", time.Minute)
	v.SetDefault("sweep_max_age", 10*time.Minute)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Settings projects the fallback-path view of the configuration.
func (c *Config) Settings() core.Settings {
	return core.Settings{
		APIBase:        c.APIBase,
		Model:          c.Model,
		MaxTokens:      c.MaxTokens,
		SupportsVision: c.SupportsVision,
	}
}

// Validate performs range checks with clear error messages.
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.APIBase)
	if base == "" || (!strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://")) {
		return fmt.Errorf("%w: %q", ErrInvalidAPIBase, c.APIBase)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHistoryLimit, c.HistoryLimit)
	}
	return nil
}
