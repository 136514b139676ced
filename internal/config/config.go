package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for cms.
type Config struct {
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	ObjectStore ObjectStoreConfig `toml:"object_store"`
	Database    DatabaseConfig    `toml:"database"`
	Sync        SyncConfig        `toml:"sync"`
	Session     SessionConfig     `toml:"session"`
	HTTP        HTTPConfig        `toml:"http"`
	Snapshot    SnapshotConfig    `toml:"snapshot"`
}

// ObjectStoreConfig selects the blob store. The Type field determines which
// other fields are relevant.
type ObjectStoreConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "s3" or "gcs"

	// PublicBaseURL prefixes object keys to form public URLs. Each backend
	// has its own default when empty.
	PublicBaseURL string `toml:"public_base_url,omitempty"`

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	S3UsePathStyle    bool   `toml:"s3_use_path_style,omitempty"`

	// GCS-specific fields (only used when Type == "gcs")
	GCSBucket          string `toml:"gcs_bucket,omitempty"`
	GCSCredentialsFile string `toml:"gcs_credentials_file,omitempty"`
	GCSEndpoint        string `toml:"gcs_endpoint,omitempty"`
}

// DatabaseConfig selects the metadata store.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "postgres"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
	DSN     string `toml:"dsn,omitempty"`      // only used for type=postgres
}

// SyncConfig selects the change-notification transport.
type SyncConfig struct {
	Type               string `toml:"type"` // "journal", "memory" or "redis"
	MaxSubscriptions   int    `toml:"max_subscriptions"`
	PollIntervalMillis int    `toml:"poll_interval_ms,omitempty"`
	RedisAddr          string `toml:"redis_addr,omitempty"`
	RedisPassword      string `toml:"redis_password,omitempty"`
	RedisDB            int    `toml:"redis_db,omitempty"`
	Channel            string `toml:"channel,omitempty"`
}

// SessionConfig selects where visitor session flags live.
type SessionConfig struct {
	Type          string `toml:"type"` // "memory" or "redis"
	TTLSeconds    int    `toml:"ttl_seconds"`
	RedisAddr     string `toml:"redis_addr,omitempty"`
	RedisPassword string `toml:"redis_password,omitempty"`
	RedisDB       int    `toml:"redis_db,omitempty"`
	KeyPrefix     string `toml:"key_prefix,omitempty"`
}

// TTL returns the session flag lifetime.
func (c SessionConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// HTTPConfig configures `cms serve`.
type HTTPConfig struct {
	Addr            string `toml:"addr"`
	AdminToken      string `toml:"admin_token"`
	CacheSize       int    `toml:"cache_size"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
	ShutdownSeconds int    `toml:"shutdown_seconds"`
}

// SnapshotConfig holds paths to the age key pair used to seal metadata
// snapshots.
type SnapshotConfig struct {
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a Config rooted at baseDir: a filesystem object store,
// a SQLite metadata store that also journals sync changes, and in-process
// sessions.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		ObjectStore: ObjectStoreConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "objects"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Sync:    SyncConfig{Type: "journal", MaxSubscriptions: 256, PollIntervalMillis: 1000},
		Session: SessionConfig{Type: "memory", TTLSeconds: 86400},
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:8080",
			CacheSize:       256,
			CacheTTLSeconds: 300,
			ShutdownSeconds: 10,
		},
		Snapshot: SnapshotConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "cms.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "cms.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes cfg to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := (&Manager{}).Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file can hold credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := (&Manager{}).Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path, refusing to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
