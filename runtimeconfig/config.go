// Package runtimeconfig loads the local server's runtime file.
package runtimeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Config describes how the local server runs. Values left empty fall back
// to the environment configuration.
type Config struct {
	Addr          string      `yaml:"addr" json:"addr"`
	Store         string      `yaml:"store" json:"store"`
	AllowedOrigin string      `yaml:"allowedOrigin" json:"allowedOrigin"`
	Jobs          []JobConfig `yaml:"jobs" json:"jobs"`
}

// JobConfig overrides the schedule of a registered job by name.
type JobConfig struct {
	Name     string `yaml:"name" json:"name"`
	Schedule string `yaml:"schedule" json:"schedule"`
	Enabled  *bool  `yaml:"enabled" json:"enabled"`
}

// IsEnabled treats an omitted enabled flag as true.
func (j JobConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// Job returns the override for name, if any.
func (c Config) Job(name string) (JobConfig, bool) {
	for _, j := range c.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return JobConfig{}, false
}

// Load reads a YAML (or JSON) runtime file.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Config{}, fmt.Errorf("config path is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %q: %w", absPath, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config file %q: %w", absPath, err)
	}

	cfg.Addr = strings.TrimSpace(cfg.Addr)
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.AllowedOrigin = strings.TrimSpace(cfg.AllowedOrigin)
	cleanJobs := make([]JobConfig, 0, len(cfg.Jobs))
	seen := map[string]bool{}
	for _, j := range cfg.Jobs {
		j.Name = strings.TrimSpace(j.Name)
		j.Schedule = strings.TrimSpace(j.Schedule)
		if j.Name == "" {
			continue
		}
		if seen[j.Name] {
			return Config{}, fmt.Errorf("config file %q lists job %q twice", absPath, j.Name)
		}
		seen[j.Name] = true
		cleanJobs = append(cleanJobs, j)
	}
	cfg.Jobs = cleanJobs
	return cfg, nil
}
