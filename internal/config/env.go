package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration shared by the deployed functions and
// the local server.
type Config struct {
	GCloudProject  string `env:"GCLOUD_PROJECT"`
	GoogleProject  string `env:"GOOGLE_CLOUD_PROJECT"`
	FirebaseConfig string `env:"FIREBASE_CONFIG"`
	BackupBucket   string `env:"BACKUP_BUCKET"`

	StoreBackend  string `env:"FUNCTIONS_STORE_BACKEND" envDefault:"firestore"`
	SQLitePath    string `env:"FUNCTIONS_SQLITE_PATH" envDefault:"./.functions/store.db"`
	RedisAddr     string `env:"FUNCTIONS_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"FUNCTIONS_REDIS_PASSWORD"`
	RedisDB       int    `env:"FUNCTIONS_REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"FUNCTIONS_REDIS_PREFIX" envDefault:"fnfin"`

	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	OTelEndpoint     string `env:"OTEL_ENDPOINT"`
	LocalTokenSecret string `env:"LOCAL_TOKEN_SECRET"`
	Port             int    `env:"PORT" envDefault:"8080"`
}

// FirebaseSettings is the subset of FIREBASE_CONFIG the functions read.
type FirebaseSettings struct {
	ProjectID     string `json:"projectId"`
	StorageBucket string `json:"storageBucket"`
	DatabaseURL   string `json:"databaseURL"`
}

// Load parses Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return cfg, nil
}

// LoadDotEnv loads variables from the given files without overriding ones
// already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Firebase decodes FIREBASE_CONFIG, which holds either inline JSON or the
// path of a JSON file. An empty value yields zero settings.
func (c Config) Firebase() (FirebaseSettings, error) {
	raw := strings.TrimSpace(c.FirebaseConfig)
	if raw == "" {
		return FirebaseSettings{}, nil
	}
	data := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		b, err := os.ReadFile(raw)
		if err != nil {
			return FirebaseSettings{}, fmt.Errorf("read FIREBASE_CONFIG file: %w", err)
		}
		data = b
	}
	var settings FirebaseSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return FirebaseSettings{}, fmt.Errorf("decode FIREBASE_CONFIG: %w", err)
	}
	return settings, nil
}

// ProjectID returns the first project id named by the environment, or "".
func (c Config) ProjectID() string {
	for _, v := range []string{c.GCloudProject, c.GoogleProject} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	if settings, err := c.Firebase(); err == nil {
		return strings.TrimSpace(settings.ProjectID)
	}
	return ""
}

// Bucket returns the backup bucket named by the environment, or "".
func (c Config) Bucket() string {
	if v := strings.TrimSpace(c.BackupBucket); v != "" {
		return v
	}
	if settings, err := c.Firebase(); err == nil {
		return strings.TrimSpace(settings.StorageBucket)
	}
	return ""
}
