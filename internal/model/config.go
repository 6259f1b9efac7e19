package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// MailboxConfig holds the mailbox account settings. The app password is
// deliberately not part of the config file; it lives in the system
// keyring (see internal/credential).
type MailboxConfig struct {
	// Address is the mailbox email address used to log in.
	Address string `mapstructure:"address" yaml:"address"`

	// Region is the preferred server region code ("pro", "eu", "com",
	// "in", "au"). Empty means the default region.
	Region string `mapstructure:"region" yaml:"region"`
}

// SearchConfig holds user-tunable batch search settings.
type SearchConfig struct {
	// DateRangeDays widens the search window around the transaction
	// date by this many days in each direction.
	DateRangeDays int `mapstructure:"date_range_days" yaml:"date_range_days"`

	// SearchAllFields enables deriving extra search terms from the
	// transaction description in addition to the vendor name.
	SearchAllFields bool `mapstructure:"search_all_fields" yaml:"search_all_fields"`

	// TimeoutSec bounds a single batch or download operation.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mailbox MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	Search  SearchConfig  `mapstructure:"search" yaml:"search"`

	// StorePath is the SQLite database location.
	StorePath string `mapstructure:"store_path" yaml:"store_path"`

	// InvoiceDir is where downloaded invoice attachments are written.
	InvoiceDir string `mapstructure:"invoice_dir" yaml:"invoice_dir"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/invoice-finder/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "invoice-finder", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".local", "share", "invoice-finder")
	return &AppConfig{
		Search: SearchConfig{
			DateRangeDays:   0,
			SearchAllFields: true,
			TimeoutSec:      300,
		},
		StorePath:  filepath.Join(dataDir, "invoice-finder.db"),
		InvoiceDir: filepath.Join(dataDir, "invoices"),
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	defaults := defaultAppConfig()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("search.date_range_days", defaults.Search.DateRangeDays)
	v.SetDefault("search.search_all_fields", defaults.Search.SearchAllFields)
	v.SetDefault("search.timeout_sec", defaults.Search.TimeoutSec)
	v.SetDefault("store_path", defaults.StorePath)
	v.SetDefault("invoice_dir", defaults.InvoiceDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("mailbox", cfg.Mailbox)
	v.Set("search", cfg.Search)
	v.Set("store_path", cfg.StorePath)
	v.Set("invoice_dir", cfg.InvoiceDir)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
