package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Build modes. They follow the bundler's own mode names so that the same
// value can be passed to both processes.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
	ModeTest        = "test"
)

// ErrInvalidMode is returned by Load when DEVGATE_MODE is not a known mode.
var ErrInvalidMode = errors.New("invalid mode")

// DefaultEnvPrefixes are the env var prefixes exposed to browser code.
var DefaultEnvPrefixes = []string{"VITE_", "OPENAI_LIKE_API_", "OLLAMA_API_BASE_URL", "LMSTUDIO_API_BASE_URL"}

// AppConfig holds all application-level configuration loaded from environment variables.
type AppConfig struct {
	// Port is the HTTP server port. Defaults to 5174, one above the Vite dev server.
	Port int `envconfig:"PORT" yaml:"port"`

	// Mode selects dev proxying (development, test) or bundle serving (production).
	Mode string `envconfig:"DEVGATE_MODE" yaml:"mode"`

	// ViteURL is the upstream Vite dev server.
	ViteURL string `envconfig:"DEVGATE_VITE_URL" yaml:"vite_url"`

	// DistDir serves the client bundle from disk in production. Empty uses the
	// bundle embedded in the binary.
	DistDir string `envconfig:"DEVGATE_DIST_DIR" yaml:"dist_dir"`

	// DataDir is the root data directory. Defaults to ~/.devgate.
	DataDir string `envconfig:"DEVGATE_DATA_DIR" yaml:"data_dir"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel string `envconfig:"LOG_LEVEL" yaml:"log_level"`

	// AllowedOrigins are the CORS origins allowed to call the server.
	AllowedOrigins []string `envconfig:"DEVGATE_ALLOWED_ORIGINS" yaml:"allowed_origins"`

	// EnvPrefixes limits which env vars are published to the browser.
	EnvPrefixes []string `envconfig:"DEVGATE_ENV_PREFIXES" yaml:"env_prefixes"`

	// EnvDir is the directory holding the .env files of the frontend project.
	EnvDir string `envconfig:"DEVGATE_ENV_DIR" yaml:"env_dir"`

	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otlp_endpoint"`

	// ConfigFile is an optional YAML file whose values act as defaults.
	ConfigFile string `envconfig:"DEVGATE_CONFIG" yaml:"-"`
}

// Load reads AppConfig from environment variables using envconfig.
//
// Precedence, lowest first: YAML file named by DEVGATE_CONFIG, .env files in
// the working directory, the process environment. DataDir defaults to
// ~/.devgate if not set.
func Load() (*AppConfig, error) {
	// .env never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var c AppConfig
	if path := os.Getenv("DEVGATE_CONFIG"); path != "" {
		if err := applyFile(&c, path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := c.applyDefaults(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// applyDefaults fills fields left empty by both the file and the environment.
// Defaults are applied here rather than through envconfig tags so that they
// do not overwrite values read from the YAML file.
func (c *AppConfig) applyDefaults() error {
	if c.Port == 0 {
		c.Port = 5174
	}
	if c.Mode == "" {
		c.Mode = ModeDevelopment
	}
	if c.ViteURL == "" {
		c.ViteURL = "http://localhost:5173"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if len(c.EnvPrefixes) == 0 {
		c.EnvPrefixes = append([]string(nil), DefaultEnvPrefixes...)
	}
	if c.EnvDir == "" {
		c.EnvDir = "."
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".devgate")
	}
	return nil
}

// Validate checks the fields that have a closed set of values.
func (c *AppConfig) Validate() error {
	switch c.Mode {
	case ModeDevelopment, ModeProduction, ModeTest:
		return nil
	default:
		return fmt.Errorf("%w %q: want %s, %s or %s", ErrInvalidMode, c.Mode, ModeDevelopment, ModeProduction, ModeTest)
	}
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction reports whether the server should serve the built bundle.
func (c *AppConfig) IsProduction() bool {
	return c.Mode == ModeProduction
}

// GuardEnabled reports whether the browser compatibility guard is active.
// The guard belongs to the dev server, so it is off in production.
func (c *AppConfig) GuardEnabled() bool {
	return !c.IsProduction()
}

// LogDir returns the path to the log directory (~/.devgate/logs).
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}
