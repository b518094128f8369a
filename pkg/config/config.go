// Package config loads client and blob server settings. Values are
// layered: defaults, then a YAML file, then the environment (a .env file
// fills in variables the process does not set), then command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// EnvPrefix prefixes every environment variable the config reads
const EnvPrefix = "ZENTALK_"

// Config holds all settings
type Config struct {
	// DataDir holds the client database and the blob store
	DataDir string `yaml:"data_dir"`

	// DatabasePath overrides <DataDir>/client.db
	DatabasePath string `yaml:"database_path"`

	// Passphrase unlocks the client database. Environment only.
	Passphrase string `yaml:"-"`

	// Identity is the local user's 8 character identity
	Identity string `yaml:"identity"`

	BlobServerURL string `yaml:"blob_server_url"`
	ListenAddr    string `yaml:"listen_addr"`

	ThumbnailTimeoutSeconds int    `yaml:"thumbnail_timeout_seconds"`
	LogLevel                string `yaml:"log_level"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:                 filepath.Join(home, ".zentalk"),
		BlobServerURL:           "http://localhost:8080",
		ListenAddr:              ":8080",
		ThumbnailTimeoutSeconds: 30,
		LogLevel:                "info",
	}
}

// Load builds the config from defaults, the YAML file at path (skipped
// when path is empty) and the environment. envFile may be empty or
// missing.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decodeYAML(f); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = vars
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	err := cfg.applyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides fields from ZENTALK_* variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATA_DIR":        &c.DataDir,
		"DATABASE_PATH":   &c.DatabasePath,
		"PASSPHRASE":      &c.Passphrase,
		"IDENTITY":        &c.Identity,
		"BLOB_SERVER_URL": &c.BlobServerURL,
		"LISTEN_ADDR":     &c.ListenAddr,
		"LOG_LEVEL":       &c.LogLevel,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "THUMBNAIL_TIMEOUT_SECONDS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %sTHUMBNAIL_TIMEOUT_SECONDS %q", EnvPrefix, v)
		}
		c.ThumbnailTimeoutSeconds = n
	}
	return nil
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	if c.DataDir == "" && c.DatabasePath == "" {
		return errors.New("data dir is required")
	}
	if c.Identity != "" {
		if _, err := protocol.ParseIdentity(c.Identity); err != nil {
			return fmt.Errorf("identity: %w", err)
		}
	}
	if c.ThumbnailTimeoutSeconds <= 0 {
		return fmt.Errorf("thumbnail timeout must be positive, got %d", c.ThumbnailTimeoutSeconds)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// DBPath returns the client database path
func (c *Config) DBPath() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.DataDir, "client.db")
}

// ThumbnailTimeout returns the thumbnail fetch timeout
func (c *Config) ThumbnailTimeout() time.Duration {
	return time.Duration(c.ThumbnailTimeoutSeconds) * time.Second
}

// LocalIdentity parses Identity
func (c *Config) LocalIdentity() (protocol.Identity, error) {
	if c.Identity == "" {
		return protocol.Identity{}, errors.New("local identity is not configured")
	}
	return protocol.ParseIdentity(c.Identity)
}

// YAML renders the config, without the passphrase
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Flags binds config fields to command line flags. Only flags the user
// actually set override the loaded config.
type Flags struct {
	fs     *pflag.FlagSet
	values Config
}

// BindFlags registers the config flags on fs
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	def := DefaultConfig()

	fs.StringVar(&f.values.DataDir, "data-dir", def.DataDir, "directory for the client database and blob store")
	fs.StringVar(&f.values.DatabasePath, "db", "", "client database path (default <data-dir>/client.db)")
	fs.StringVar(&f.values.Identity, "identity", "", "local identity")
	fs.StringVar(&f.values.BlobServerURL, "blob-server", def.BlobServerURL, "blob server base URL")
	fs.StringVar(&f.values.ListenAddr, "listen", def.ListenAddr, "blob server listen address")
	fs.IntVar(&f.values.ThumbnailTimeoutSeconds, "thumbnail-timeout", def.ThumbnailTimeoutSeconds, "thumbnail fetch timeout in seconds")
	fs.StringVar(&f.values.LogLevel, "log-level", def.LogLevel, "log level (debug, info, warn, error)")
	return f
}

// Apply copies the flags that were set onto cfg
func (f *Flags) Apply(cfg *Config) {
	set := func(name string, apply func()) {
		if f.fs.Changed(name) {
			apply()
		}
	}
	set("data-dir", func() { cfg.DataDir = f.values.DataDir })
	set("db", func() { cfg.DatabasePath = f.values.DatabasePath })
	set("identity", func() { cfg.Identity = f.values.Identity })
	set("blob-server", func() { cfg.BlobServerURL = f.values.BlobServerURL })
	set("listen", func() { cfg.ListenAddr = f.values.ListenAddr })
	set("thumbnail-timeout", func() { cfg.ThumbnailTimeoutSeconds = f.values.ThumbnailTimeoutSeconds })
	set("log-level", func() { cfg.LogLevel = f.values.LogLevel })
}
