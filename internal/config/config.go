package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envLogLevel        = "FM_LOG_LEVEL"
	envListenAddr      = "FM_LISTEN_ADDR"
	envServicesFile    = "FM_SERVICES_FILE"
	envPrometheusURL   = "FM_PROMETHEUS_URL"
	envHealthInterval  = "FM_HEALTH_INTERVAL"
	envMetricsInterval = "FM_METRICS_INTERVAL"
	envTestInterval    = "FM_TEST_INTERVAL"
	envHealthTimeout   = "FM_HEALTH_TIMEOUT"
	envMetricsTimeout  = "FM_METRICS_TIMEOUT"
)

const (
	defaultListenAddr      = ":8009"
	defaultServicesFile    = "config/services.yaml"
	defaultPrometheusURL   = "http://prometheus:9090"
	defaultHealthInterval  = 30 * time.Second
	defaultMetricsInterval = 60 * time.Second
	defaultTestInterval    = 5 * time.Minute
	defaultHealthTimeout   = 5 * time.Second
	defaultMetricsTimeout  = 10 * time.Second
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	LogLevel        string
	ListenAddr      string
	ServicesFile    string
	PrometheusURL   string
	HealthInterval  time.Duration
	MetricsInterval time.Duration
	TestInterval    time.Duration
	HealthTimeout   time.Duration
	MetricsTimeout  time.Duration
}

// Load reads configuration from environment variables and a local .env file
// if present. Existing environment variables take precedence over values in
// .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      defaultListenAddr,
		ServicesFile:    defaultServicesFile,
		PrometheusURL:   defaultPrometheusURL,
		HealthInterval:  defaultHealthInterval,
		MetricsInterval: defaultMetricsInterval,
		TestInterval:    defaultTestInterval,
		HealthTimeout:   defaultHealthTimeout,
		MetricsTimeout:  defaultMetricsTimeout,
	}

	if value, ok := lookupTrimmed(envLogLevel); ok {
		cfg.LogLevel = value
	}

	if value, ok := lookupTrimmed(envListenAddr); ok {
		cfg.ListenAddr = value
	}

	if value, ok := lookupTrimmed(envServicesFile); ok {
		cfg.ServicesFile = value
	}

	if value, ok := lookupTrimmed(envPrometheusURL); ok {
		cfg.PrometheusURL = value
	}

	durations := []struct {
		key  string
		dest *time.Duration
	}{
		{envHealthInterval, &cfg.HealthInterval},
		{envMetricsInterval, &cfg.MetricsInterval},
		{envTestInterval, &cfg.TestInterval},
		{envHealthTimeout, &cfg.HealthTimeout},
		{envMetricsTimeout, &cfg.MetricsTimeout},
	}
	for _, d := range durations {
		value, ok := lookupTrimmed(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", d.key)
		}
		*d.dest = parsed
	}

	if cfg.ListenAddr == "" {
		return Config{}, errors.New("FM_LISTEN_ADDR must not be empty")
	}

	if err := validateURL(cfg.PrometheusURL, envPrometheusURL); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
