package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"windci/internal/logging"
	"windci/internal/server"
	"windci/internal/template"
)

// Config is the complete windci configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   logging.Config  `koanf:"logging"`
	Templates TemplatesConfig `koanf:"templates"`
	Preview   PreviewConfig   `koanf:"preview"`
}

// ServerConfig defines the generation service's HTTP settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MaxBodyBytes limits the size of a submitted windfile.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// TemplatesConfig controls resolution of `use` actions.
type TemplatesConfig struct {
	Enabled bool `koanf:"enabled"`
	// DefaultBaseURL prefixes bare template slugs.
	DefaultBaseURL string        `koanf:"default_base_url"`
	Timeout        time.Duration `koanf:"timeout"`
	// LocalRoot is the directory ./ and file:// references are read from.
	LocalRoot string `koanf:"local_root"`
}

// PreviewConfig configures `windci preview`.
type PreviewConfig struct {
	ServerURL      string        `koanf:"server_url"`
	Debounce       time.Duration `koanf:"debounce"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Logging: logging.Config{Level: "info", Format: "json"},
		Templates: TemplatesConfig{
			Enabled:        true,
			DefaultBaseURL: template.DefaultBaseURL,
			Timeout:        30 * time.Second,
			LocalRoot:      ".",
		},
		Preview: PreviewConfig{
			ServerURL:      "http://localhost:8080",
			Debounce:       300 * time.Millisecond,
			RequestTimeout: 10 * time.Second,
		},
	}
}

// Load reads the configuration from defaults, configPath, WINDCI__* variables
// and the explicitly set flags named in flagKeys.
func Load(configPath string, flags *pflag.FlagSet, flagKeys map[string]string) (*Config, error) {
	loader := NewLoader(EnvPrefix)
	if err := loader.LoadWithDefaults(Defaults(), configPath); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags != nil {
		if err := loader.LoadFlags(flags, flagKeys); err != nil {
			return nil, fmt.Errorf("failed to apply flags: %w", err)
		}
	}
	var cfg Config
	if err := loader.UnmarshalAndValidate("", &cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs ValidationErrors
	errs = append(errs, c.Server.validate(NewPath("server"))...)
	errs.Add(
		MustBeOneOf(NewPath("logging").Child("level"), c.Logging.Level, []string{"debug", "info", "warn", "warning", "error"}),
		MustBeOneOf(NewPath("logging").Child("format"), c.Logging.Format, []string{"json", "text"}),
	)
	if c.Templates.Enabled {
		p := NewPath("templates")
		errs.Add(
			MustNotBeEmpty(p.Child("default_base_url"), c.Templates.DefaultBaseURL),
			MustBeGreaterThan(p.Child("timeout"), c.Templates.Timeout, 0),
		)
	}
	p := NewPath("preview")
	errs.Add(
		MustNotBeEmpty(p.Child("server_url"), c.Preview.ServerURL),
		MustBeInRange(p.Child("debounce"), c.Preview.Debounce, 0, 10*time.Second),
		MustBeGreaterThan(p.Child("request_timeout"), c.Preview.RequestTimeout, 0),
	)
	return errs.OrNil()
}

func (c *ServerConfig) validate(path *Path) ValidationErrors {
	var errs ValidationErrors
	errs.Add(
		MustBeInRange(path.Child("port"), c.Port, 1, 65535),
		MustBeInRange(path.Child("read_timeout"), c.ReadTimeout, 0, time.Hour),
		MustBeInRange(path.Child("write_timeout"), c.WriteTimeout, 0, time.Hour),
		MustBeInRange(path.Child("idle_timeout"), c.IdleTimeout, 0, time.Hour),
		MustBeInRange(path.Child("shutdown_timeout"), c.ShutdownTimeout, 0, time.Hour),
		MustBeGreaterThan(path.Child("max_body_bytes"), c.MaxBodyBytes, 0),
	)
	return errs
}

// ToServerConfig converts to the server package's config.
func (c *ServerConfig) ToServerConfig() server.Config {
	return server.Config{
		Addr:            fmt.Sprintf(":%d", c.Port),
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		IdleTimeout:     c.IdleTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}
