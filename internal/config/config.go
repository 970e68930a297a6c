// Package config handles loading and managing mboxvault configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the mboxvault configuration.
type Config struct {
	Data   DataConfig   `toml:"data"`
	Ingest IngestConfig `toml:"ingest"`
	Server ServerConfig `toml:"server"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	ConfigPath string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir     string `toml:"data_dir"`
	DatabaseURL string `toml:"database_url"`
}

// IngestConfig holds archive ingestion configuration.
type IngestConfig struct {
	MboxDir            string   `toml:"mbox_dir"`            // Directory scanned by import-all and watch
	ProcessedDir       string   `toml:"processed_dir"`       // Completed archives are moved here
	Extension          string   `toml:"extension"`           // Archive file suffix (default: .mbox)
	CheckpointInterval int      `toml:"checkpoint_interval"` // Messages between commits
	MaxMessageBytes    int64    `toml:"max_message_bytes"`
	LabelHeaders       []string `toml:"label_headers"`  // Headers carrying labels
	ExcludeLabels      []string `toml:"exclude_labels"` // Extra exclusion prefixes
	DetectCharset      bool     `toml:"detect_charset"`
	Schedule           string   `toml:"schedule"`     // Cron expression for watch
	MetricsAddr        string   `toml:"metrics_addr"` // Optional listen address for /metrics during watch
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort        int      `toml:"api_port"`  // HTTP server port (default: 8080)
	BindAddr       string   `toml:"bind_addr"` // Listen address (default: 127.0.0.1)
	APIKey         string   `toml:"api_key"`   // API authentication key
	AllowInsecure  bool     `toml:"allow_insecure"`
	CORSOrigins    []string `toml:"cors_origins"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
}

// ErrInsecureBind is returned by ValidateSecure when the server would
// listen on a non-loopback address without an API key.
var ErrInsecureBind = errors.New("refusing to bind a non-loopback address without an api_key")

// ValidateSecure rejects a non-loopback bind address unless an API key is
// set or allow_insecure is true. An empty address means 127.0.0.1.
func (s ServerConfig) ValidateSecure() error {
	if s.APIKey != "" || s.AllowInsecure {
		return nil
	}
	if isLoopback(s.BindAddr) {
		return nil
	}
	return fmt.Errorf("%w: %q (set [server] api_key or allow_insecure)", ErrInsecureBind, s.BindAddr)
}

func isLoopback(addr string) bool {
	if addr == "" || strings.EqualFold(addr, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(addr, "[]"))
	return ip != nil && ip.IsLoopback()
}

// DefaultHome returns the default mboxvault home directory.
// Respects MBOXVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MBOXVAULT_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mboxvault"
	}
	return filepath.Join(home, ".mboxvault")
}

// NewDefaultConfig returns the configuration used when no file exists.
func NewDefaultConfig(homeDir string) *Config {
	return &Config{
		HomeDir:    homeDir,
		ConfigPath: filepath.Join(homeDir, "config.toml"),
		Data: DataConfig{
			DataDir: homeDir,
		},
		Ingest: IngestConfig{
			Extension:          ".mbox",
			CheckpointInterval: 1000,
			MaxMessageBytes:    128 << 20,
			LabelHeaders:       []string{"X-Gmail-Labels"},
			Schedule:           "*/15 * * * *",
		},
		Server: ServerConfig{
			APIPort:        8080,
			BindAddr:       "127.0.0.1",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
	}
}

// Load reads the configuration from the specified file.
// If path is empty, uses config.toml in homeDir, or in DefaultHome() when
// homeDir is empty as well. A missing default file yields the defaults; a
// missing explicit path is an error.
func Load(path, homeDir string) (*Config, error) {
	explicit := path != ""
	if homeDir == "" {
		if explicit {
			homeDir = filepath.Dir(expandPath(path))
		} else {
			homeDir = DefaultHome()
		}
	}
	homeDir = expandPath(homeDir)

	cfg := NewDefaultConfig(homeDir)
	if explicit {
		cfg.ConfigPath = expandPath(path)
	}

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(cfg.ConfigPath); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(cfg.ConfigPath, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Expand ~ in paths and resolve relative ones against the home dir
	cfg.Data.DataDir = cfg.resolve(cfg.Data.DataDir)
	cfg.Ingest.MboxDir = cfg.resolve(cfg.Ingest.MboxDir)
	cfg.Ingest.ProcessedDir = cfg.resolve(cfg.Ingest.ProcessedDir)
	if cfg.Ingest.Extension != "" && !strings.HasPrefix(cfg.Ingest.Extension, ".") {
		cfg.Ingest.Extension = "." + cfg.Ingest.Extension
	}

	return cfg, nil
}

func (c *Config) resolve(path string) string {
	path = expandPath(path)
	if path == "" || path == c.HomeDir || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.HomeDir, path)
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	if c.Data.DatabaseURL != "" {
		return c.Data.DatabaseURL
	}
	return filepath.Join(c.Data.DataDir, "mboxvault.db")
}

// MboxDir returns the directory scanned for archives.
func (c *Config) MboxDir() string {
	if c.Ingest.MboxDir != "" {
		return c.Ingest.MboxDir
	}
	return filepath.Join(c.Data.DataDir, "mbox")
}

// ProcessedDir returns the directory completed archives are moved into.
func (c *Config) ProcessedDir() string {
	if c.Ingest.ProcessedDir != "" {
		return c.Ingest.ProcessedDir
	}
	return filepath.Join(c.Data.DataDir, "processed")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
