// Package config loads homebook settings from config.yaml in the
// configuration directory, with HOMEBOOK_* environment overrides.
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// FileName is the config file inside the configuration directory.
const FileName = "config.yaml"

// EnvPrefix prefixes environment overrides: server.addr is read from
// HOMEBOOK_SERVER_ADDR.
const EnvPrefix = "HOMEBOOK"

// Keys.
const (
	KeyBackend       = "backend"
	KeyDataDir       = "data_dir"
	KeySyncStrategy  = "sync_strategy"
	KeyBatchSize     = "batch_size"
	KeyBatchInterval = "batch_interval"
	KeyEncryptFields = "encrypt_fields"
	KeyCurrency      = "currency"
	KeyUser          = "user"
	KeyLogLevel      = "log_level"
	KeyServerAddr    = "server.addr"
	KeyInboxDir      = "inbox.dir"
	KeyInboxLedger   = "inbox.ledger_id"
	KeyInboxDebounce = "inbox.debounce"
)

// Defaults.
const (
	DefaultLogLevel      = "info"
	DefaultServerAddr    = "127.0.0.1:8080"
	DefaultInboxDebounce = time.Second
)

// Log levels accepted by log_level.
var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var (
	ErrInvalidLogLevel = errors.New("log_level must be debug, info, warn or error")
	ErrInvalidDebounce = errors.New("inbox.debounce must be positive")
)

// Config is the resolved configuration.
type Config struct {
	Store    types.Config
	Currency string
	User     string
	LogLevel string
	Server   Server
	Inbox    Inbox
}

// Server configures the HTTP API.
type Server struct {
	Addr string
}

// Inbox configures the watched import directory. An empty LedgerID
// disables the inbox.
type Inbox struct {
	Dir      string
	LedgerID string
	Debounce time.Duration
}

// Load reads the configuration from configDir. A missing config.yaml is
// not an error: defaults and environment values apply.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	v.SetDefault(KeyBackend, types.BackendSQLite)
	v.SetDefault(KeyDataDir, "")
	v.SetDefault(KeySyncStrategy, types.SyncImmediate)
	v.SetDefault(KeyBatchSize, types.DefaultBatchSize)
	v.SetDefault(KeyBatchInterval, types.DefaultBatchInterval)
	v.SetDefault(KeyEncryptFields, false)
	v.SetDefault(KeyCurrency, types.DefaultCurrency)
	v.SetDefault(KeyUser, "")
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyServerAddr, DefaultServerAddr)
	v.SetDefault(KeyInboxDir, "")
	v.SetDefault(KeyInboxLedger, "")
	v.SetDefault(KeyInboxDebounce, DefaultInboxDebounce)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", filepath.Join(configDir, FileName), err)
		}
	}

	cfg := &Config{
		Store: types.Config{
			Backend:       v.GetString(KeyBackend),
			DataDir:       v.GetString(KeyDataDir),
			SyncStrategy:  v.GetString(KeySyncStrategy),
			BatchSize:     v.GetInt(KeyBatchSize),
			BatchInterval: v.GetInt(KeyBatchInterval),
			EncryptFields: v.GetBool(KeyEncryptFields),
		},
		Currency: strings.ToUpper(v.GetString(KeyCurrency)),
		User:     v.GetString(KeyUser),
		LogLevel: strings.ToLower(v.GetString(KeyLogLevel)),
		Server:   Server{Addr: v.GetString(KeyServerAddr)},
		Inbox: Inbox{
			Dir:      v.GetString(KeyInboxDir),
			LedgerID: v.GetString(KeyInboxLedger),
			Debounce: v.GetDuration(KeyInboxDebounce),
		},
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if !types.ValidCurrency(c.Currency) {
		return fmt.Errorf("%w: %q", types.ErrInvalidCurrency, c.Currency)
	}
	if !logLevels[c.LogLevel] {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Inbox.Debounce <= 0 {
		return ErrInvalidDebounce
	}
	return nil
}

// file is the shape of a written config.yaml.
type file struct {
	Backend       string     `yaml:"backend"`
	DataDir       string     `yaml:"data_dir,omitempty"`
	SyncStrategy  string     `yaml:"sync_strategy"`
	EncryptFields bool       `yaml:"encrypt_fields"`
	Currency      string     `yaml:"currency"`
	User          string     `yaml:"user,omitempty"`
	LogLevel      string     `yaml:"log_level"`
	Server        fileServer `yaml:"server"`
	Inbox         fileInbox  `yaml:"inbox,omitempty"`
}

type fileServer struct {
	Addr string `yaml:"addr"`
}

type fileInbox struct {
	Dir      string `yaml:"dir,omitempty"`
	LedgerID string `yaml:"ledger_id,omitempty"`
	Debounce string `yaml:"debounce,omitempty"`
}

// WriteDefault writes config.yaml into configDir unless it already exists.
// It reports whether a file was written.
func WriteDefault(configDir string, cfg *Config) (bool, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return false, fmt.Errorf("creating config directory: %w", err)
	}
	path := filepath.Join(configDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	f := file{
		Backend:       cfg.Store.Backend,
		DataDir:       cfg.Store.DataDir,
		SyncStrategy:  cfg.Store.EffectiveSyncStrategy(),
		EncryptFields: cfg.Store.EncryptFields,
		Currency:      cfg.Currency,
		User:          cfg.User,
		LogLevel:      cfg.LogLevel,
		Server:        fileServer{Addr: cfg.Server.Addr},
		Inbox:         fileInbox{Dir: cfg.Inbox.Dir, LedgerID: cfg.Inbox.LedgerID},
	}
	if cfg.Inbox.Debounce > 0 {
		f.Inbox.Debounce = cfg.Inbox.Debounce.String()
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return false, fmt.Errorf("encoding config: %w", err)
	}
	data = append([]byte("# homebook configuration. HOMEBOOK_<KEY> environment variables override these values.\n"), data...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}
