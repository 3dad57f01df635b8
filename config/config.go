// Package config loads gateway configuration from the environment.
//
// A local .env file is honored during development (via godotenv) but never
// required; in containers every value comes from real environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full gateway configuration.
type Config struct {
	Service   ServiceConfig
	Logging   LoggingConfig
	API       APIConfig
	Session   SessionConfig
	Guard     GuardConfig
	Tracing   TracingConfig
	Profiling ProfilingConfig

	// ShutdownTimeout and ReadinessDrainDelay are stored as raw strings so
	// Validate can report bad values instead of silently defaulting.
	ShutdownTimeout     string
	ReadinessDrainDelay string
}

// ServiceConfig identifies the running service instance.
type ServiceConfig struct {
	Name    string
	Version string
	Env     string // "development", "staging", "production"
	Port    string
}

// LoggingConfig controls zerolog.
type LoggingConfig struct {
	Level string
}

// APIConfig holds the base URLs of the external articles API.
// Server-side callers reach the API over the internal network (Docker
// service name); browser-facing URLs use the public host.
type APIConfig struct {
	ServerBaseURL  string
	BrowserBaseURL string
}

// SessionConfig points at the hosted session store.
type SessionConfig struct {
	StoreURL     string
	JWTPublicKey string // PEM-encoded public key for access token verification
	CookieName   string
}

// GuardConfig configures the route guard path sets.
type GuardConfig struct {
	ProtectedPrefixes []string
	AuthOnlyPaths     []string
	LoginPath         string
	HomePath          string
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled    bool
	Endpoint   string
	SampleRate float64
}

// ProfilingConfig controls Pyroscope.
type ProfilingConfig struct {
	Enabled  bool
	Endpoint string
}

// Load reads configuration from the environment, applying defaults for
// everything that has a sensible one. Call Validate before using the result.
func Load() *Config {
	// Best effort; absence of .env is the normal case outside development.
	_ = godotenv.Load()

	return &Config{
		Service: ServiceConfig{
			Name:    getEnv("SERVICE_NAME", "knowme-gateway"),
			Version: getEnv("SERVICE_VERSION", "dev"),
			Env:     getEnv("SERVICE_ENV", "development"),
			Port:    getEnv("SERVICE_PORT", "3000"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		API: APIConfig{
			ServerBaseURL:  getEnv("API_BASE_URL", "http://backend:8080/api/v1"),
			BrowserBaseURL: getEnv("PUBLIC_API_BASE_URL", "http://localhost:8080/api/v1"),
		},
		Session: SessionConfig{
			StoreURL:     getEnv("SESSION_STORE_URL", ""),
			JWTPublicKey: getEnv("SESSION_STORE_JWT_PUBLIC_KEY", ""),
			CookieName:   getEnv("SESSION_COOKIE_NAME", "knowme-session"),
		},
		Guard: GuardConfig{
			ProtectedPrefixes: getEnvList("GUARD_PROTECTED_PREFIXES",
				[]string{"/dashboard", "/profile", "/articles/new", "/articles/edit"}),
			AuthOnlyPaths: getEnvList("GUARD_AUTH_ONLY_PATHS",
				[]string{"/login", "/signup", "/register"}),
			LoginPath: getEnv("GUARD_LOGIN_PATH", "/login"),
			HomePath:  getEnv("GUARD_HOME_PATH", "/"),
		},
		Tracing: TracingConfig{
			Enabled:    getEnvBool("TRACING_ENABLED", false),
			Endpoint:   getEnv("TRACING_ENDPOINT", "localhost:4318"),
			SampleRate: getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Profiling: ProfilingConfig{
			Enabled:  getEnvBool("PROFILING_ENABLED", false),
			Endpoint: getEnv("PROFILING_ENDPOINT", "http://localhost:4040"),
		},
		ShutdownTimeout:     getEnv("SHUTDOWN_TIMEOUT", "15s"),
		ReadinessDrainDelay: getEnv("READINESS_DRAIN_DELAY", "0s"),
	}
}

// Validate checks that required values are present and parseable.
func (c *Config) Validate() error {
	if c.Session.StoreURL == "" {
		return fmt.Errorf("SESSION_STORE_URL is required")
	}
	if _, err := url.Parse(c.Session.StoreURL); err != nil {
		return fmt.Errorf("SESSION_STORE_URL is not a valid URL: %w", err)
	}
	if c.Session.JWTPublicKey == "" {
		return fmt.Errorf("SESSION_STORE_JWT_PUBLIC_KEY is required")
	}
	if c.API.ServerBaseURL == "" || c.API.BrowserBaseURL == "" {
		return fmt.Errorf("API_BASE_URL and PUBLIC_API_BASE_URL are required")
	}
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	if _, err := time.ParseDuration(c.ReadinessDrainDelay); err != nil {
		return fmt.Errorf("READINESS_DRAIN_DELAY: %w", err)
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local/dev environment.
// Controls the Secure attribute on session cookies.
func (c *Config) IsDevelopment() bool {
	return c.Service.Env == "development" || c.Service.Env == "local"
}

// GetShutdownTimeoutDuration returns the parsed shutdown timeout.
// Validate has already rejected unparseable values.
func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetReadinessDrainDelayDuration returns the parsed readiness drain delay.
func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.ReadinessDrainDelay)
	if err != nil {
		return 0
	}
	return d
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
