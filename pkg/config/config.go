// Package config provides configuration management for the clipbridge daemon
// and its command line tools.
//
// Configuration Sources:
//
// Configuration is loaded from multiple sources with the following precedence:
//  1. Command-line flags (highest priority)
//  2. Environment variables, including a .env file in the working directory
//  3. The YAML config file (default <data dir>/config.yaml)
//  4. Default values (lowest priority)
//
// Environment Variables:
//
// The daemon settings have short names:
//   - CLIPBRIDGE_DEVICE_ID: Unique identifier for this device
//   - CLIPBRIDGE_DEVICE_NAME: Human readable device name
//   - CLIPBRIDGE_SOCKET: Path of the local API socket
//   - CLIPBRIDGE_DATA_DIR: Directory holding the database and device id
//   - CLIPBRIDGE_POLL_INTERVAL: Clipboard polling frequency
//   - CLIPBRIDGE_SWEEP_INTERVAL: How often the recent-item cache is swept
//   - CLIPBRIDGE_CACHE_MAX_AGE: How long an item id suppresses duplicates
//   - CLIPBRIDGE_MAX_MESSAGE_AGE: Oldest protocol message accepted by inject
//   - CLIPBRIDGE_VERBOSE: Enable verbose logging
//
// Application settings follow their path in the file, for example
// CLIPBRIDGE_APP_SYNC_AUTOSYNC or CLIPBRIDGE_APP_GENERAL_HISTORYSIZE.
//
// Device Identity:
//
// When no device id is configured, one is generated once and kept in
// <data dir>/device-id so a device keeps its identity across restarts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CLIPBRIDGE"

// Defaults.
const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultSweepInterval = 30 * time.Second
	DefaultCacheMaxAge   = 60 * time.Second
	DefaultMaxMessageAge = 5 * time.Minute

	deviceIDFile = "device-id"
	databaseFile = "clipbridge.db"
)

// Config holds all configuration for a clipbridge device.
type Config struct {
	DeviceID   string
	DeviceName string
	Platform   protocol.Platform

	SocketPath string
	DataDir    string
	ConfigFile string

	PollInterval  time.Duration
	SweepInterval time.Duration
	CacheMaxAge   time.Duration
	MaxMessageAge time.Duration

	Verbose bool

	// Ephemeral keeps history and devices in memory instead of the database.
	Ephemeral bool

	App protocol.AppConfig
}

// fileConfig is the layout of the YAML config file.
type fileConfig struct {
	Device struct {
		ID       string            `yaml:"id,omitempty" mapstructure:"id"`
		Name     string            `yaml:"name,omitempty" mapstructure:"name"`
		Platform protocol.Platform `yaml:"platform,omitempty" mapstructure:"platform"`
	} `yaml:"device" mapstructure:"device"`
	Daemon struct {
		Socket        string `yaml:"socket,omitempty" mapstructure:"socket"`
		DataDir       string `yaml:"dataDir,omitempty" mapstructure:"dataDir"`
		PollInterval  string `yaml:"pollInterval" mapstructure:"pollInterval"`
		SweepInterval string `yaml:"sweepInterval" mapstructure:"sweepInterval"`
		CacheMaxAge   string `yaml:"cacheMaxAge" mapstructure:"cacheMaxAge"`
		MaxMessageAge string `yaml:"maxMessageAge" mapstructure:"maxMessageAge"`
		Verbose       bool   `yaml:"verbose" mapstructure:"verbose"`
		Ephemeral     bool   `yaml:"ephemeral" mapstructure:"ephemeral"`
	} `yaml:"daemon" mapstructure:"daemon"`
	App protocol.AppConfig `yaml:"app" mapstructure:"app"`
}

// envNames maps config keys to their short environment variable names.
var envNames = map[string]string{
	"device.id":            "DEVICE_ID",
	"device.name":          "DEVICE_NAME",
	"device.platform":      "PLATFORM",
	"daemon.socket":        "SOCKET",
	"daemon.dataDir":       "DATA_DIR",
	"daemon.pollInterval":  "POLL_INTERVAL",
	"daemon.sweepInterval": "SWEEP_INTERVAL",
	"daemon.cacheMaxAge":   "CACHE_MAX_AGE",
	"daemon.maxMessageAge": "MAX_MESSAGE_AGE",
	"daemon.verbose":       "VERBOSE",
	"daemon.ephemeral":     "EPHEMERAL",
}

// flagNames maps command line flags to config keys.
var flagNames = map[string]string{
	"device-id":       "device.id",
	"device-name":     "device.name",
	"socket":          "daemon.socket",
	"data-dir":        "daemon.dataDir",
	"poll-interval":   "daemon.pollInterval",
	"sweep-interval":  "daemon.sweepInterval",
	"cache-max-age":   "daemon.cacheMaxAge",
	"max-message-age": "daemon.maxMessageAge",
	"verbose":         "daemon.verbose",
	"ephemeral":       "daemon.ephemeral",
}

// NewConfig creates a config with defaults. DeviceID is left empty; Load
// fills it from the data directory.
func NewConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DeviceName:    defaultDeviceName(),
		Platform:      CurrentPlatform(),
		SocketPath:    DefaultSocketPath(),
		DataDir:       dataDir,
		ConfigFile:    filepath.Join(dataDir, "config.yaml"),
		PollInterval:  DefaultPollInterval,
		SweepInterval: DefaultSweepInterval,
		CacheMaxAge:   DefaultCacheMaxAge,
		MaxMessageAge: DefaultMaxMessageAge,
		App:           protocol.DefaultConfig(),
	}
}

// LoadOptions control where Load looks.
type LoadOptions struct {
	// ConfigFile overrides the default config file location. A missing
	// default file is not an error; a missing explicit file is.
	ConfigFile string

	// EnvFile is loaded into the environment first when it exists.
	// Defaults to ".env".
	EnvFile string

	// Flags are bound over every other source. Only flags the user set
	// take effect.
	Flags *pflag.FlagSet

	// NoDeviceID leaves DeviceID empty when none is configured instead of
	// reading or creating the persisted one. Client commands use it.
	NoDeviceID bool
}

// Load builds the configuration from defaults, the config file, the
// environment and flags, then makes sure a device id exists.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := newViper(NewConfig())

	if opts.Flags != nil {
		for flag, key := range flagNames {
			if f := opts.Flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
		}
	}

	configFile := opts.ConfigFile
	explicit := configFile != ""
	if !explicit {
		configFile = filepath.Join(v.GetString("daemon.dataDir"), "config.yaml")
	}
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound)
		if explicit || !missing {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	cfg, err := fc.toConfig()
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = configFile

	switch {
	case cfg.DeviceID != "" || opts.NoDeviceID:
	case cfg.Ephemeral:
		cfg.DeviceID = uuid.NewString()
	default:
		id, err := EnsureDeviceID(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		cfg.DeviceID = id
	}
	return cfg, nil
}

func newViper(defaults *Config) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, name := range envNames {
		_ = v.BindEnv(key, EnvPrefix+"_"+name)
	}

	fc := fromConfig(defaults)
	v.SetDefault("device.id", fc.Device.ID)
	v.SetDefault("device.name", fc.Device.Name)
	v.SetDefault("device.platform", string(fc.Device.Platform))
	v.SetDefault("daemon.socket", fc.Daemon.Socket)
	v.SetDefault("daemon.dataDir", fc.Daemon.DataDir)
	v.SetDefault("daemon.pollInterval", fc.Daemon.PollInterval)
	v.SetDefault("daemon.sweepInterval", fc.Daemon.SweepInterval)
	v.SetDefault("daemon.cacheMaxAge", fc.Daemon.CacheMaxAge)
	v.SetDefault("daemon.maxMessageAge", fc.Daemon.MaxMessageAge)
	v.SetDefault("daemon.verbose", fc.Daemon.Verbose)
	v.SetDefault("daemon.ephemeral", fc.Daemon.Ephemeral)

	app := fc.App
	v.SetDefault("app.general.autoStart", app.General.AutoStart)
	v.SetDefault("app.general.showNotifications", app.General.ShowNotifications)
	v.SetDefault("app.general.historySize", app.General.HistorySize)
	v.SetDefault("app.sync.mode", string(app.Sync.Mode))
	v.SetDefault("app.sync.autoSync", app.Sync.AutoSync)
	v.SetDefault("app.sync.syncImages", app.Sync.SyncImages)
	v.SetDefault("app.sync.syncFiles", app.Sync.SyncFiles)
	v.SetDefault("app.sync.maxItemSize", app.Sync.MaxItemSize)
	v.SetDefault("app.security.enableEncryption", app.Security.EnableEncryption)
	v.SetDefault("app.security.requireDeviceApproval", app.Security.RequireDeviceApproval)
	v.SetDefault("app.security.enableSensitiveFilter", app.Security.EnableSensitiveFilter)
	v.SetDefault("app.security.excludedApps", app.Security.ExcludedApps)
	v.SetDefault("app.network.relayServerUrl", app.Network.RelayServerURL)
	v.SetDefault("app.network.p2pPort", app.Network.P2PPort)
	v.SetDefault("app.network.discoveryEnabled", app.Network.DiscoveryEnabled)
	return v
}

func fromConfig(c *Config) fileConfig {
	var fc fileConfig
	fc.Device.ID = c.DeviceID
	fc.Device.Name = c.DeviceName
	fc.Device.Platform = c.Platform
	fc.Daemon.Socket = c.SocketPath
	fc.Daemon.DataDir = c.DataDir
	fc.Daemon.PollInterval = c.PollInterval.String()
	fc.Daemon.SweepInterval = c.SweepInterval.String()
	fc.Daemon.CacheMaxAge = c.CacheMaxAge.String()
	fc.Daemon.MaxMessageAge = c.MaxMessageAge.String()
	fc.Daemon.Verbose = c.Verbose
	fc.Daemon.Ephemeral = c.Ephemeral
	fc.App = c.App.Clone()
	return fc
}

func (fc fileConfig) toConfig() (*Config, error) {
	durations := []struct {
		key   string
		value string
		out   *time.Duration
	}{
		{"pollInterval", fc.Daemon.PollInterval, new(time.Duration)},
		{"sweepInterval", fc.Daemon.SweepInterval, new(time.Duration)},
		{"cacheMaxAge", fc.Daemon.CacheMaxAge, new(time.Duration)},
		{"maxMessageAge", fc.Daemon.MaxMessageAge, new(time.Duration)},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.key, d.value, err)
		}
		*d.out = parsed
	}

	return &Config{
		DeviceID:      fc.Device.ID,
		DeviceName:    fc.Device.Name,
		Platform:      fc.Device.Platform,
		SocketPath:    fc.Daemon.Socket,
		DataDir:       fc.Daemon.DataDir,
		PollInterval:  *durations[0].out,
		SweepInterval: *durations[1].out,
		CacheMaxAge:   *durations[2].out,
		MaxMessageAge: *durations[3].out,
		Verbose:       fc.Daemon.Verbose,
		Ephemeral:     fc.Daemon.Ephemeral,
		App:           fc.App.Clone(),
	}, nil
}

// Validate ensures the configuration is valid and internally consistent.
// Returns an error describing the first validation failure found.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return errors.New("device ID is required")
	}
	if c.DeviceName == "" {
		return errors.New("device name is required")
	}
	if !isPlatform(c.Platform) {
		return fmt.Errorf("invalid platform: %q", c.Platform)
	}
	if c.SocketPath == "" {
		return errors.New("socket path is required")
	}
	if c.DataDir == "" && !c.Ephemeral {
		return errors.New("data directory is required")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"poll interval", c.PollInterval},
		{"sweep interval", c.SweepInterval},
		{"cache max age", c.CacheMaxAge},
		{"max message age", c.MaxMessageAge},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	if c.App.Security.ExcludedApps == nil {
		c.App.Security.ExcludedApps = []string{}
	}
	if err := protocol.CheckConfig(c.App); err != nil {
		return fmt.Errorf("app config: %w", err)
	}
	return nil
}

// DatabasePath is the location of the SQLite store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, databaseFile)
}

// Device describes this device to its peers.
func (c *Config) Device(publicKey string, now time.Time) protocol.Device {
	return protocol.Device{
		ID:        c.DeviceID,
		Name:      c.DeviceName,
		Platform:  c.Platform,
		PublicKey: publicKey,
		LastSeen:  now.UnixMilli(),
		Capabilities: protocol.DeviceCapabilities{
			SupportsImages: c.App.Sync.SyncImages,
			SupportsFiles:  c.App.Sync.SyncFiles,
			MaxItemSize:    c.App.Sync.MaxItemSize,
		},
	}
}

// WriteFile renders the configuration as YAML at path, creating parent
// directories as needed. An existing file is not overwritten unless force is set.
func (c *Config) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// YAML renders the configuration in config file format.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(fromConfig(c))
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// EnsureDeviceID returns the device id stored in dataDir, generating and
// saving a new one on first use.
func EnsureDeviceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, deviceIDFile)

	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to save device id: %w", err)
	}
	return id, nil
}

// String returns a one-line summary for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DeviceID: %s, Name: %s, Platform: %s, Socket: %s, DataDir: %s, PollInterval: %s, SyncMode: %s, AutoSync: %v, Ephemeral: %v, Verbose: %v}",
		c.DeviceID, c.DeviceName, c.Platform, c.SocketPath, c.DataDir, c.PollInterval,
		c.App.Sync.Mode, c.App.Sync.AutoSync, c.Ephemeral, c.Verbose,
	)
}
