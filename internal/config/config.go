package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	ObjectStore ObjectStoreConfig         `json:"object_store"`
}

type BasicConfig struct {
	ServerAddress        string `json:"server_address"`
	StagingDir           string `json:"staging_dir"`
	QuestionsFile        string `json:"questions_file"`
	SessionIdleMinutes   int    `json:"session_idle_minutes"`
	SessionSweepMinutes  int    `json:"session_sweep_minutes"`
	UploadConcurrency    int    `json:"upload_concurrency"`
	UploadTimeoutSeconds int    `json:"upload_timeout_seconds"`
	SubmitRatePerMinute  int    `json:"submit_rate_per_minute"`
	SubmitBurst          int    `json:"submit_burst"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ObjectStoreConfig struct {
	Driver        string `json:"driver"`
	BaseDir       string `json:"base_dir"`
	PublicBaseURL string `json:"public_base_url"`
	Bucket        string `json:"bucket"`
	Region        string `json:"region"`
	Endpoint      string `json:"endpoint"`
	AccessKey     string `json:"access_key"`
	SecretKey     string `json:"secret_key"`
	KeyPrefix     string `json:"key_prefix"`
	UsePathStyle  bool   `json:"use_path_style"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.normalize(filepath.Dir(absPath)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize(dir string) error {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":8080"
	}
	if b.StagingDir == "" {
		b.StagingDir = "staging"
	}
	if b.SessionIdleMinutes <= 0 {
		b.SessionIdleMinutes = 30
	}
	if b.SessionSweepMinutes <= 0 {
		b.SessionSweepMinutes = 5
	}
	if b.UploadTimeoutSeconds < 0 || b.UploadConcurrency < 0 {
		return fmt.Errorf("upload limits must not be negative")
	}
	if b.SubmitRatePerMinute <= 0 {
		b.SubmitRatePerMinute = 6
	}
	if b.SubmitBurst <= 0 {
		b.SubmitBurst = 2
	}
	b.StagingDir = resolve(dir, b.StagingDir)
	if b.QuestionsFile != "" {
		b.QuestionsFile = resolve(dir, b.QuestionsFile)
	}

	store := &c.ObjectStore
	switch store.Driver {
	case "", "file":
		store.Driver = "file"
		if store.BaseDir == "" {
			store.BaseDir = "objects"
		}
		store.BaseDir = resolve(dir, store.BaseDir)
		if store.PublicBaseURL == "" {
			store.PublicBaseURL = "/objects"
		}
	case "s3":
		if store.Bucket == "" {
			return fmt.Errorf("object_store.bucket must be configured for s3")
		}
	default:
		return fmt.Errorf("unsupported object store driver: %s", store.Driver)
	}

	for name, db := range c.Databases {
		if (name == "sqlite" || name == "sqlite3") && db.DSN != "" && db.DSN != ":memory:" {
			db.DSN = resolve(dir, db.DSN)
			c.Databases[name] = db
		}
	}
	return nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (b BasicConfig) SessionIdle() time.Duration {
	return time.Duration(b.SessionIdleMinutes) * time.Minute
}

func (b BasicConfig) SessionSweep() time.Duration {
	return time.Duration(b.SessionSweepMinutes) * time.Minute
}

func (b BasicConfig) UploadTimeout() time.Duration {
	return time.Duration(b.UploadTimeoutSeconds) * time.Second
}
