package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "simcheck"
	defaultAppEnv         = "development"
	defaultPort           = "4000"
	defaultLogLevel       = "info"
	defaultProviderURL    = "https://eu.api.tru.id"
	defaultCheckVersion   = "v0.1"
	defaultRequestTimeout = 20 * time.Second
	defaultMaxRedirects   = 10
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 10 * time.Minute
	defaultRedisTimeout   = 2 * time.Second
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	RedisURL     string
	RedisTimeout time.Duration

	ProviderBaseURL      string
	ProviderClientID     string
	ProviderClientSecret string
	CheckAPIVersion      string
	RequestTimeout       time.Duration

	CellularInterface string
	MaxRedirects      int
	BrokerURL         string
	StrictPhone       bool

	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:              getEnv("APP_NAME", defaultAppName),
		AppEnv:               getEnv("APP_ENV", defaultAppEnv),
		Port:                 getEnv("PORT", defaultPort),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		RedisURL:             os.Getenv("REDIS_URL"),
		ProviderBaseURL:      strings.TrimRight(getEnv("PROVIDER_BASE_URL", defaultProviderURL), "/"),
		ProviderClientID:     os.Getenv("PROVIDER_CLIENT_ID"),
		ProviderClientSecret: os.Getenv("PROVIDER_CLIENT_SECRET"),
		CheckAPIVersion:      getEnv("CHECK_API_VERSION", defaultCheckVersion),
		CellularInterface:    os.Getenv("CELLULAR_INTERFACE"),
		BrokerURL:            strings.TrimRight(os.Getenv("BROKER_URL"), "/"),
		MaxRedirects:         defaultMaxRedirects,
	}

	var err error
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.RedisTimeout, err = durationEnv("REDIS_TIMEOUT", defaultRedisTimeout); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("MAX_REDIRECTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid MAX_REDIRECTS: %q", v)
		}
		cfg.MaxRedirects = n
	}

	if v := os.Getenv("STRICT_PHONE_VALIDATION"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid STRICT_PHONE_VALIDATION: %w", err)
		}
		cfg.StrictPhone = strict
	}

	switch cfg.CheckAPIVersion {
	case "v0.1", "v0.2":
	default:
		return Config{}, fmt.Errorf("CHECK_API_VERSION must be v0.1 or v0.2, got %q", cfg.CheckAPIVersion)
	}

	return cfg, nil
}

// RequireProviderCredentials reports an error unless the provider client
// credentials are set. Only the broker and direct device mode need them.
func (c Config) RequireProviderCredentials() error {
	var missing []string
	if c.ProviderClientID == "" {
		missing = append(missing, "PROVIDER_CLIENT_ID")
	}
	if c.ProviderClientSecret == "" {
		missing = append(missing, "PROVIDER_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return errors.New(strings.Join(missing, " and ") + " must be set")
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads KEY_SECONDS as whole seconds, falling back to KEY as a
// Go duration string. The seconds form wins when both are set.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}
