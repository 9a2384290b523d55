package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is looked up in the working directory when no path is given.
	DefaultPath = "config.yaml"

	EnvConfigPath = "PLANT_DETECTOR_CONFIG"
	EnvAPIKey     = "XAI_API_KEY"
	EnvBaseURL    = "XAI_BASE_URL"
	EnvModel      = "PLANT_DETECTOR_MODEL"
	EnvTransport  = "PLANT_DETECTOR_TRANSPORT"
	EnvLogLevel   = "PLANT_DETECTOR_LOG_LEVEL"
	EnvAuthSecret = "PLANT_DETECTOR_AUTH_SECRET"
)

// Loader merges defaults, an optional YAML file, .env and process environment.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader that reads .env and looks for config.yaml.
func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath sets an explicit config file; a missing explicit file is an error.
func (l *Loader) WithPath(path string) *Loader {
	l.path = strings.TrimSpace(path)
	return l
}

// Result captures the loaded configuration and its origin.
type Result struct {
	Config *Config
	Path   string
	// Notes are informational messages for the caller to log once logging is up.
	Notes []string
}

// Load resolves the configuration. Nothing is written to stdout, which may be the MCP channel.
func (l *Loader) Load() (*Result, error) {
	result := &Result{Config: DefaultConfig(), Path: "defaults"}

	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				result.Notes = append(result.Notes, ".env not found, using process environment")
			} else {
				result.Notes = append(result.Notes, fmt.Sprintf("ignoring unreadable .env: %v", err))
			}
		}
	}

	path := l.path
	explicit := path != ""
	if !explicit {
		if envPath := strings.TrimSpace(os.Getenv(EnvConfigPath)); envPath != "" {
			path, explicit = envPath, true
		} else {
			path = DefaultPath
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, result.Config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		result.Path = path
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		result.Notes = append(result.Notes, fmt.Sprintf("%s not found, using built-in defaults", path))
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(result.Config)

	if err := l.validate(result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

func applyEnvOverrides(cfg *Config) {
	override := func(key string, target *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	override(EnvAPIKey, &cfg.Vision.APIKey)
	override(EnvBaseURL, &cfg.Vision.BaseURL)
	override(EnvModel, &cfg.Vision.ModelName)
	override(EnvTransport, &cfg.Transport.Type)
	override(EnvLogLevel, &cfg.Log.Level)
	override(EnvAuthSecret, &cfg.Transport.HTTP.Auth.Secret)
}

// validate checks structure only. A missing API key is allowed and surfaces on the first call.
func (l *Loader) validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	switch strings.ToLower(cfg.Transport.Type) {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %q", cfg.Transport.Type)
	}

	if cfg.Transport.HTTP.Port < 0 || cfg.Transport.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", cfg.Transport.HTTP.Port)
	}
	if strings.EqualFold(cfg.Transport.Type, TransportHTTP) &&
		cfg.Transport.HTTP.Auth.Enabled && cfg.Transport.HTTP.Auth.Secret == "" {
		return errors.New("http auth enabled but no secret configured")
	}

	if !strings.EqualFold(cfg.Vision.Type, "openai") {
		return fmt.Errorf("unsupported vision type: %q", cfg.Vision.Type)
	}
	if strings.TrimSpace(cfg.Vision.ModelName) == "" {
		return errors.New("vision model_name is required")
	}
	if cfg.Vision.MaxTokens <= 0 {
		return fmt.Errorf("invalid vision max_tokens: %d", cfg.Vision.MaxTokens)
	}

	for field, value := range map[string]string{
		"vision.request_timeout":        cfg.Vision.RequestTimeout,
		"transport.http.auth.token_ttl": cfg.Transport.HTTP.Auth.TokenTTL,
	} {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			return fmt.Errorf("invalid %s: %q", field, value)
		}
	}
	return nil
}

// Duration parses a validated duration string, returning 0 for empty values.
func Duration(value string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return d
}
