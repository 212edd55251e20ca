package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Target describes one monitored service.
type Target struct {
	Name       string `yaml:"name,omitempty" json:"name"`
	HealthURL  string `yaml:"health_url" json:"health_url"`
	ReadyURL   string `yaml:"ready_url,omitempty" json:"ready_url,omitempty"`
	LiveURL    string `yaml:"live_url,omitempty" json:"live_url,omitempty"`
	MetricsURL string `yaml:"metrics_url,omitempty" json:"metrics_url,omitempty"`
	Port       int    `yaml:"port" json:"port"`
}

// Normalized returns a copy with the ready and live URLs derived from the
// health URL when unset.
func (t Target) Normalized() Target {
	if t.ReadyURL == "" {
		t.ReadyURL = swapHealthPath(t.HealthURL, "/ready")
	}
	if t.LiveURL == "" {
		t.LiveURL = swapHealthPath(t.HealthURL, "/live")
	}
	return t
}

// Validate reports whether the target carries the fields required for
// registration.
func (t Target) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if t.HealthURL == "" {
		return errors.New("health_url is required")
	}
	if err := validateURL(t.HealthURL, "health_url"); err != nil {
		return err
	}
	if t.Port <= 0 {
		return errors.New("port is required")
	}
	return nil
}

func swapHealthPath(healthURL, path string) string {
	return strings.Replace(healthURL, "/health", path, 1)
}

// servicesFile is the parsed YAML structure for the monitored fleet:
// services: {name: {health_url, ready_url, live_url, port, metrics_url}}
type servicesFile struct {
	Services map[string]Target `yaml:"services"`
}

// LoadTargets reads the services file and returns the fleet keyed by service
// name. A missing or unreadable file is not fatal: the built-in default
// fleet is returned instead.
func LoadTargets(path string, logger zerolog.Logger) map[string]Target {
	targets, err := readServicesFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("services file unavailable, using default fleet")
		return DefaultTargets()
	}
	if len(targets) == 0 {
		logger.Warn().Str("path", path).Msg("services file lists no services")
	}
	return targets
}

func readServicesFile(path string) (map[string]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file: %w", err)
	}

	var sf servicesFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse services file: %w", err)
	}

	targets := make(map[string]Target, len(sf.Services))
	for name, target := range sf.Services {
		if target.Name == "" {
			target.Name = name
		}
		targets[name] = target.Normalized()
	}
	return targets, nil
}

// DefaultTargets is the built-in fleet monitored when no services file is
// available.
func DefaultTargets() map[string]Target {
	defaults := []Target{
		{Name: "fleet-gateway", HealthURL: "http://fleet-gateway:8000/health", Port: 8000},
		{Name: "fleet-api", HealthURL: "http://fleet-api:8001/health", Port: 8001},
		{Name: "fleet-app", HealthURL: "http://fleet-app:8002/health", Port: 8002},
		{Name: "fleet-data", HealthURL: "http://fleet-data:8003/health", Port: 8003},
		{Name: "fleet-worker", HealthURL: "http://fleet-worker:8006/health", Port: 8006},
	}

	targets := make(map[string]Target, len(defaults))
	for _, t := range defaults {
		targets[t.Name] = t.Normalized()
	}
	return targets
}
