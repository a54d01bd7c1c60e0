package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures the account, API credentials, storage backend, and the
// optional stream and metrics endpoints.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Credentials CredentialsConfig `yaml:"credentials"`
	CouchDB     CouchDBConfig     `yaml:"couchdb"`
	Storage     StorageConfig     `yaml:"storage"`
	Stream      StreamConfig      `yaml:"stream"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Backfill    BackfillConfig    `yaml:"backfill"`
}

type AccountConfig struct {
	// Numeric user id of the account being archived.
	UserID     string `yaml:"userId"`
	ScreenName string `yaml:"screenName"`
}

type CredentialsConfig struct {
	// OAuth 1.0a credentials for the v1.1 API. Empty fields fall back to
	// TW_CONSUMER_KEY, TW_CONSUMER_SECRET, TW_ACCESS_TOKEN, TW_ACCESS_SECRET.
	ConsumerKey    string `yaml:"consumerKey"`
	ConsumerSecret string `yaml:"consumerSecret"`
	AccessToken    string `yaml:"accessToken"`
	AccessSecret   string `yaml:"accessSecret"`
}

type CouchDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	// If empty, read from env COUCHDB_PASSWORD.
	Password string `yaml:"password"`
}

type StorageConfig struct {
	// Backend selects the document store: "sqlite" or "couchdb".
	Backend string `yaml:"backend"`
	// DBPath is the SQLite file location when backend is "sqlite".
	DBPath string `yaml:"dbPath"`
}

type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type MetricsConfig struct {
	// Addr like ":9090"; empty disables the metrics server.
	Addr string `yaml:"addr"`
}

type BackfillConfig struct {
	// DrainLimit caps placeholders resolved per kind in one drain pass.
	DrainLimit int `yaml:"drainLimit"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		CouchDB: CouchDBConfig{
			URL:      "http://127.0.0.1:5984",
			Database: "magpie",
		},
		Storage:  StorageConfig{Backend: "sqlite", DBPath: "./magpie.db"},
		Backfill: BackfillConfig{DrainLimit: 100},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.ConsumerKey == "" {
		c.Credentials.ConsumerKey = os.Getenv("TW_CONSUMER_KEY")
	}
	if c.Credentials.ConsumerSecret == "" {
		c.Credentials.ConsumerSecret = os.Getenv("TW_CONSUMER_SECRET")
	}
	if c.Credentials.AccessToken == "" {
		c.Credentials.AccessToken = os.Getenv("TW_ACCESS_TOKEN")
	}
	if c.Credentials.AccessSecret == "" {
		c.Credentials.AccessSecret = os.Getenv("TW_ACCESS_SECRET")
	}
	if c.CouchDB.Password == "" {
		c.CouchDB.Password = os.Getenv("COUCHDB_PASSWORD")
	}
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Backfill.DrainLimit <= 0 {
		cfg.Backfill.DrainLimit = 100
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
