package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/andy/tallybook/internal/logger"
)

type Config struct {
	// Database settings
	Database DatabaseConfig `yaml:"database"`

	// Accounts settings
	Accounts AccountsConfig `yaml:"accounts"`

	// Logging settings
	Log logger.Config `yaml:"log"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // Path to SQLite database
}

type AccountsConfig struct {
	// Invoice code prefixes per kind, e.g. "INV" produces INV-1000
	ARCodePrefix string `yaml:"ar_code_prefix"`
	APCodePrefix string `yaml:"ap_code_prefix"`

	// Counter seeds used the first time the allocator runs
	ARCodeStart int64 `yaml:"ar_code_start"`
	APCodeStart int64 `yaml:"ap_code_start"`

	// Default control accounts for new invoices (chart account ids)
	DefaultARAccount int64 `yaml:"default_ar_account"`
	DefaultAPAccount int64 `yaml:"default_ap_account"`
}

// DefaultConfigPath returns ~/.config/tallybook/config.yaml
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir unavailable
		return filepath.Join(".", ".config", "tallybook", "config.yaml")
	}
	return filepath.Join(homeDir, ".config", "tallybook", "config.yaml")
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(homeDir, ".config", "tallybook", "tallybook.db"),
		},
		Accounts: AccountsConfig{
			ARCodePrefix: "INV",
			APCodePrefix: "BILL",
			ARCodeStart:  1000,
			APCodeStart:  1000,
		},
		Log: logger.DefaultConfig(),
	}
}

// Load loads config from the given path, or returns defaults if the file
// doesn't exist. Environment variables override the file:
// TALLYBOOK_DB_PATH and TALLYBOOK_LOG_LEVEL.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("TALLYBOOK_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TALLYBOOK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

// LoadDefault loads from the default config path
func LoadDefault() (*Config, error) {
	return Load(DefaultConfigPath())
}

// Save writes the config to the given path
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// EnsureDirectories creates all necessary directories for the database
func (c *Config) EnsureDirectories() error {
	return os.MkdirAll(filepath.Dir(c.Database.Path), 0755)
}
