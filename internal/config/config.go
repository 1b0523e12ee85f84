// Package config loads and validates irisett's YAML configuration file,
// following the same load-then-override-then-validate shape as the
// teacher's internal/globals/config.go.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig   `yaml:"server" validate:"required"`
	Database DatabaseConfig `yaml:"database" validate:"required"`
	Auth     AuthConfig     `yaml:"auth" validate:"required"`
	Engine   EngineConfig   `yaml:"engine"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
	Debug    bool           `yaml:"debug"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig names the backing store. Driver selects between the
// "relational" (Postgres, via pgx) and "embedded-file" (sqlite, via
// modernc.org/sqlite) gateways described in spec.md §6.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "relational" | "embedded-file"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"ssl_mode"`
	// Location is the sqlite file path, used only when Driver == "embedded-file".
	Location string `yaml:"location"`
}

type AuthConfig struct {
	AdminUser     string `yaml:"admin_user"`
	AdminPassword string `yaml:"admin_password"`
	JWTSecret     string `yaml:"jwt_secret"`
}

// EngineConfig holds the scheduler/pipeline tunables from spec.md §4.6.
type EngineConfig struct {
	MaxConcurrentJobs  int `yaml:"max_concurrent_jobs"`
	DefaultIntervalSec int `yaml:"default_interval_seconds"`
	DownThreshold      int `yaml:"down_threshold"`
	UnknownThreshold   int `yaml:"unknown_threshold"`
	PluginTimeoutSec   int `yaml:"plugin_timeout_seconds"`
	FailsafeSec        int `yaml:"failsafe_seconds"`
}

type PluginsConfig struct {
	Directory string `yaml:"directory"`
}

type NotifyConfig struct {
	Email   EmailBackendConfig   `yaml:"email"`
	SMS     SMSBackendConfig     `yaml:"sms"`
	Webhook WebhookBackendConfig `yaml:"webhook"`
	Chat    ChatBackendConfig    `yaml:"chat"`
}

type EmailBackendConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type SMSBackendConfig struct {
	Enabled    bool   `yaml:"enabled"`
	GatewayURL string `yaml:"gateway_url"`
	APIKey     string `yaml:"api_key"`
}

type WebhookBackendConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

type ChatBackendConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" | "text"
}

// Load reads, parses, overrides from env, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.MaxConcurrentJobs == 0 {
		cfg.Engine.MaxConcurrentJobs = 200
	}
	if cfg.Engine.DefaultIntervalSec == 0 {
		cfg.Engine.DefaultIntervalSec = 180
	}
	if cfg.Engine.DownThreshold == 0 {
		cfg.Engine.DownThreshold = 3
	}
	if cfg.Engine.UnknownThreshold == 0 {
		cfg.Engine.UnknownThreshold = 5
	}
	if cfg.Engine.PluginTimeoutSec == 0 {
		cfg.Engine.PluginTimeoutSec = 30
	}
	if cfg.Engine.FailsafeSec == 0 {
		cfg.Engine.FailsafeSec = 600
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "relational"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate ensures required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Driver != "relational" && c.Database.Driver != "embedded-file" {
		return fmt.Errorf("database.driver must be 'relational' or 'embedded-file', got %q", c.Database.Driver)
	}
	if c.Database.Driver == "relational" {
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host and dbname are required for the relational driver")
		}
	} else if c.Database.Location == "" {
		return fmt.Errorf("database.location is required for the embedded-file driver")
	}

	if c.Auth.JWTSecret == "" || len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret is required and must be at least 32 characters")
	}
	if c.Auth.AdminPassword == "" || c.Auth.AdminPassword == "changeme" {
		return fmt.Errorf("auth.admin_password must be set to a strong password")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IRISETT_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("IRISETT_DATABASE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = n
		}
	}
	if v := os.Getenv("IRISETT_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("IRISETT_AUTH_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if v := os.Getenv("IRISETT_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("IRISETT_ENGINE_MAX_CONCURRENT_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxConcurrentJobs = n
		}
	}
}

// DefaultInterval returns the scheduler's steady-state polling interval.
func (e *EngineConfig) DefaultInterval() time.Duration {
	return time.Duration(e.DefaultIntervalSec) * time.Second
}

// PluginTimeout returns the per-run plugin execution timeout.
func (e *EngineConfig) PluginTimeout() time.Duration {
	return time.Duration(e.PluginTimeoutSec) * time.Second
}

// FailsafeInterval returns the scheduler's failsafe scan interval.
func (e *EngineConfig) FailsafeInterval() time.Duration {
	return time.Duration(e.FailsafeSec) * time.Second
}

// IsLogLevelValid reports whether the configured log level is recognized.
func (l *LoggingConfig) IsLogLevelValid() bool {
	return slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(l.Level))
}

// DumpExample writes a documented example configuration file to w.
func DumpExample(w io.Writer) error {
	example := &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Driver: "relational", Host: "localhost", Port: 5432,
			User: "irisett", Password: "changeme", DBName: "irisett", SSLMode: "disable",
		},
		Auth: AuthConfig{
			AdminUser:     "admin",
			AdminPassword: "changeme",
			JWTSecret:     "change-this-to-a-random-32-byte-string!",
		},
		Engine: EngineConfig{
			MaxConcurrentJobs: 200, DefaultIntervalSec: 180,
			DownThreshold: 3, UnknownThreshold: 5,
			PluginTimeoutSec: 30, FailsafeSec: 600,
		},
		Plugins: PluginsConfig{Directory: "./plugins"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}

	header := `# =============================================================================
# irisett example configuration. Copy to config.yaml and edit.
# Environment overrides follow IRISETT_<SECTION>_<KEY>, e.g. IRISETT_DATABASE_HOST.
# =============================================================================

`
	if _, err := fmt.Fprint(w, header); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(example); err != nil {
		return err
	}
	return enc.Close()
}

var (
	global *Config
	once   sync.Once
	mu     sync.RWMutex
)

// InitGlobal loads and installs the process-wide configuration singleton.
func InitGlobal(path string) *Config {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		cfg, err := Load(path)
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		global = cfg
	})
	return global
}

// Get returns the global configuration. Panics if InitGlobal was never called.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		panic("config.Get() called before InitGlobal()")
	}
	return global
}

// SetForTests installs a configuration instance for use in unit tests.
func SetForTests(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	global = cfg
}

// NewLogger builds the process-wide slog.Logger from LoggingConfig.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
