// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Components receive the
// sub-structs they need at construction time; nothing reads ambient globals.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	Screen      ScreenConfig      `mapstructure:"screen" yaml:"screen"`
	Screenshots ScreenshotsConfig `mapstructure:"screenshots" yaml:"screenshots"`
	Session     SessionConfig     `mapstructure:"session" yaml:"session"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Launcher    LauncherConfig    `mapstructure:"launcher" yaml:"launcher"`
	Input       InputConfig       `mapstructure:"input" yaml:"input"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// LLMConfig configures the vision-model inference endpoint. The endpoint is
// OpenAI-compatible and treated as an opaque capability: base URL plus model
// identifier plus sampling parameters.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ScreenConfig pins the target screen resolution. Zero values mean
// "auto-detect at startup"; after startup the values are immutable and
// passed explicitly into the executor and controller.
type ScreenConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// ScreenshotsConfig controls on-disk persistence of captured frames.
type ScreenshotsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// SessionConfig bounds the multi-step controller.
type SessionConfig struct {
	// MaxSteps is the hard ceiling on executed steps before the session
	// fails with TimeoutExceeded.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// HistoryWindow is the number of recent steps replayed verbatim in the
	// prompt; older steps are compacted to one-line summaries.
	HistoryWindow int `mapstructure:"history_window" yaml:"history_window"`
	// MaxConsecutiveFailures is the per-session budget of back-to-back step
	// failures before the session fails with ConsecutiveFailures.
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	// BlockDuplicates enables the repeat-action guard: an exact repeat of
	// the previous click/type/launch is skipped and recorded as a wait.
	BlockDuplicates bool `mapstructure:"block_duplicates" yaml:"block_duplicates"`
}

// ServerConfig holds the tool-server listen address.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr renders the host:port pair for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LauncherConfig is the declarative alias -> command registry used by the
// Launch action. It is validated at startup; an alias resolving to an empty
// command is a configuration error, and an unknown alias at execution time
// is an UnknownAppError.
type LauncherConfig struct {
	Aliases map[string]string `mapstructure:"aliases" yaml:"aliases"`
}

// InputConfig tunes the production input surface.
type InputConfig struct {
	// Pause is the minimum spacing between consecutive injection
	// primitives, mirroring the settle time real desktops need between
	// synthetic events.
	Pause time.Duration `mapstructure:"pause" yaml:"pause"`
	// MoveDuration is how long a pointer glide to a target takes.
	MoveDuration time.Duration `mapstructure:"move_duration" yaml:"move_duration"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.base_url", "http://localhost:1234/v1")
	v.SetDefault("llm.model", "mai-ui")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", "90s")

	// -- Screen --
	v.SetDefault("screen.width", 0)
	v.SetDefault("screen.height", 0)

	// -- Screenshots --
	v.SetDefault("screenshots.enabled", true)
	v.SetDefault("screenshots.dir", "screenshots")

	// -- Session --
	v.SetDefault("session.max_steps", 25)
	v.SetDefault("session.history_window", 3)
	v.SetDefault("session.max_consecutive_failures", 3)
	v.SetDefault("session.block_duplicates", true)

	// -- Server --
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3359)

	// -- Launcher --
	v.SetDefault("launcher.aliases", map[string]string{
		"terminal":   "x-terminal-emulator",
		"files":      "xdg-open .",
		"browser":    "xdg-open about:blank",
		"calculator": "gnome-calculator",
		"editor":     "gedit",
	})

	// -- Input --
	v.SetDefault("input.pause", "250ms")
	v.SetDefault("input.move_duration", "200ms")
}

// NewFromViper creates a validated configuration instance from a viper
// object. Env vars with the DESKPILOT prefix override file values.
func NewFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("llm.api_key", "DESKPILOT_LLM_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	cfg, err := NewFromViper(v)
	if err != nil {
		// Defaults must always validate.
		panic(fmt.Sprintf("failed to build default config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be a positive integer")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be a positive duration")
	}
	if c.Screen.Width < 0 || c.Screen.Height < 0 {
		return fmt.Errorf("screen.width and screen.height must not be negative")
	}
	if c.Session.MaxSteps <= 0 {
		return fmt.Errorf("session.max_steps must be a positive integer")
	}
	if c.Session.HistoryWindow < 0 {
		return fmt.Errorf("session.history_window must not be negative")
	}
	if c.Session.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("session.max_consecutive_failures must be a positive integer")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535]")
	}
	for alias, command := range c.Launcher.Aliases {
		if alias == "" || command == "" {
			return fmt.Errorf("launcher.aliases must not contain empty aliases or commands (alias %q)", alias)
		}
	}
	return nil
}
