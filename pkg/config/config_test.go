package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// isolate points every default location into a temp directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	for _, name := range envNames {
		t.Setenv(EnvPrefix+"_"+name, "")
		require.NoError(t, os.Unsetenv(EnvPrefix+"_"+name))
	}
	return dir
}

func validConfig() *Config {
	cfg := NewConfig()
	cfg.DeviceID = "dev-test"
	cfg.DataDir = "/tmp/clipbridge-test"
	return cfg
}

func TestNewConfig(t *testing.T) {
	home := isolate(t)
	cfg := NewConfig()

	assert.Empty(t, cfg.DeviceID)
	assert.NotEmpty(t, cfg.DeviceName)
	assert.Equal(t, CurrentPlatform(), cfg.Platform)
	assert.Equal(t, filepath.Join(home, ".clipbridge"), cfg.DataDir)
	assert.Equal(t, filepath.Join(home, ".clipbridge", "config.yaml"), cfg.ConfigFile)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultSweepInterval, cfg.SweepInterval)
	assert.Equal(t, DefaultCacheMaxAge, cfg.CacheMaxAge)
	assert.Equal(t, DefaultMaxMessageAge, cfg.MaxMessageAge)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, protocol.DefaultConfig(), cfg.App)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "missing device id", modify: func(c *Config) { c.DeviceID = "" }, errMsg: "device ID is required"},
		{name: "missing device name", modify: func(c *Config) { c.DeviceName = "" }, errMsg: "device name is required"},
		{name: "unknown platform", modify: func(c *Config) { c.Platform = "plan9" }, errMsg: "invalid platform"},
		{name: "missing socket", modify: func(c *Config) { c.SocketPath = "" }, errMsg: "socket path is required"},
		{name: "missing data dir", modify: func(c *Config) { c.DataDir = "" }, errMsg: "data directory is required"},
		{name: "ephemeral needs no data dir", modify: func(c *Config) { c.DataDir = ""; c.Ephemeral = true }},
		{name: "zero poll interval", modify: func(c *Config) { c.PollInterval = 0 }, errMsg: "poll interval must be positive"},
		{name: "negative cache age", modify: func(c *Config) { c.CacheMaxAge = -time.Second }, errMsg: "cache max age must be positive"},
		{name: "invalid sync mode", modify: func(c *Config) { c.App.Sync.Mode = "fax" }, errMsg: "sync.mode"},
		{name: "nil excluded apps is normalized", modify: func(c *Config) { c.App.Security.ExcludedApps = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfigValidateAppErrorsWrapInvalid(t *testing.T) {
	cfg := validConfig()
	cfg.App.Network.P2PPort = 0
	assert.ErrorIs(t, cfg.Validate(), protocol.ErrInvalid)
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(LoadOptions{EnvFile: filepath.Join(home, "missing.env")})
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.DeviceID)
	assert.Equal(t, filepath.Join(home, ".clipbridge"), cfg.DataDir)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, protocol.DefaultConfig(), cfg.App)
	assert.NoError(t, cfg.Validate())

	// The generated id is kept for the next start.
	again, err := Load(LoadOptions{EnvFile: filepath.Join(home, "missing.env")})
	require.NoError(t, err)
	assert.Equal(t, cfg.DeviceID, again.DeviceID)
}

func TestLoadWithoutPersistedID(t *testing.T) {
	home := isolate(t)
	envFile := filepath.Join(home, "missing.env")

	cfg, err := Load(LoadOptions{EnvFile: envFile, NoDeviceID: true})
	require.NoError(t, err)
	assert.Empty(t, cfg.DeviceID)

	t.Setenv(EnvPrefix+"_EPHEMERAL", "true")
	cfg, err = Load(LoadOptions{EnvFile: envFile})
	require.NoError(t, err)
	assert.True(t, cfg.Ephemeral)
	assert.NotEmpty(t, cfg.DeviceID)

	_, err = os.Stat(filepath.Join(cfg.DataDir, deviceIDFile))
	assert.True(t, os.IsNotExist(err), "neither load should write a device id")
}

func TestLoadFromFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "custom.yaml")
	content := `
device:
  id: dev-file
  name: workstation
  platform: macos
daemon:
  socket: /tmp/cb-file.sock
  pollInterval: 2s
  cacheMaxAge: 90s
app:
  general:
    historySize: 25
  sync:
    mode: hybrid
    syncFiles: true
  security:
    excludedApps:
      - 1Password
      - KeePassXC
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(LoadOptions{ConfigFile: path, EnvFile: filepath.Join(home, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "dev-file", cfg.DeviceID)
	assert.Equal(t, "workstation", cfg.DeviceName)
	assert.Equal(t, protocol.PlatformMacOS, cfg.Platform)
	assert.Equal(t, "/tmp/cb-file.sock", cfg.SocketPath)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 90*time.Second, cfg.CacheMaxAge)
	assert.Equal(t, DefaultSweepInterval, cfg.SweepInterval)
	assert.Equal(t, 25, cfg.App.General.HistorySize)
	assert.Equal(t, protocol.SyncModeHybrid, cfg.App.Sync.Mode)
	assert.True(t, cfg.App.Sync.SyncFiles)
	assert.Equal(t, []string{"1Password", "KeePassXC"}, cfg.App.Security.ExcludedApps)

	// Keys the file leaves out keep their defaults.
	assert.True(t, cfg.App.Sync.AutoSync)
	assert.Equal(t, 7878, cfg.App.Network.P2PPort)
	assert.NoError(t, cfg.Validate())
}

func TestLoadPrecedence(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  id: dev-file\n  name: from-file\ndaemon:\n  pollInterval: 2s\n"), 0o600))

	envFile := filepath.Join(home, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CLIPBRIDGE_DEVICE_NAME=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CLIPBRIDGE_DEVICE_NAME") })

	t.Setenv("CLIPBRIDGE_POLL_INTERVAL", "3s")
	t.Setenv("CLIPBRIDGE_APP_SYNC_AUTOSYNC", "false")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("poll-interval", DefaultPollInterval, "")
	flags.String("device-id", "", "")
	flags.Bool("verbose", false, "")
	require.NoError(t, flags.Parse([]string{"--device-id=dev-flag"}))

	cfg, err := Load(LoadOptions{ConfigFile: path, EnvFile: envFile, Flags: flags})
	require.NoError(t, err)

	assert.Equal(t, "dev-flag", cfg.DeviceID, "flag beats file")
	assert.Equal(t, "from-dotenv", cfg.DeviceName, ".env beats file")
	assert.Equal(t, 3*time.Second, cfg.PollInterval, "env beats file and unset flags")
	assert.False(t, cfg.App.Sync.AutoSync)
	assert.False(t, cfg.Verbose)

	require.NoError(t, flags.Parse([]string{"--poll-interval=4s"}))
	cfg, err = Load(LoadOptions{ConfigFile: path, EnvFile: envFile, Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, cfg.PollInterval, "set flag beats env")
}

func TestLoadErrors(t *testing.T) {
	home := isolate(t)
	noEnv := filepath.Join(home, "missing.env")

	t.Run("explicit file missing", func(t *testing.T) {
		_, err := Load(LoadOptions{ConfigFile: filepath.Join(home, "nope.yaml"), EnvFile: noEnv})
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		path := filepath.Join(home, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("daemon:\n  pollInterval: soon\n"), 0o600))

		_, err := Load(LoadOptions{ConfigFile: path, EnvFile: noEnv})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pollInterval")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(home, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("device: [unclosed\n"), 0o600))

		_, err := Load(LoadOptions{ConfigFile: path, EnvFile: noEnv})
		assert.Error(t, err)
	})
}

func TestWriteFileRoundTrip(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "nested", "config.yaml")

	cfg := validConfig()
	cfg.DataDir = filepath.Join(home, "data")
	cfg.PollInterval = 750 * time.Millisecond
	cfg.App.Security.ExcludedApps = []string{"Bitwarden"}
	require.NoError(t, cfg.WriteFile(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pollInterval: 750ms")

	loaded, err := Load(LoadOptions{ConfigFile: path, EnvFile: filepath.Join(home, "missing.env")})
	require.NoError(t, err)
	assert.Equal(t, cfg.DeviceID, loaded.DeviceID)
	assert.Equal(t, cfg.DataDir, loaded.DataDir)
	assert.Equal(t, cfg.PollInterval, loaded.PollInterval)
	assert.Equal(t, cfg.App, loaded.App)

	err = cfg.WriteFile(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.NoError(t, cfg.WriteFile(path, true))
}

func TestEnsureDeviceID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	id, err := EnsureDeviceID(dir)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	again, err := EnsureDeviceID(dir)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	require.NoError(t, os.WriteFile(filepath.Join(dir, deviceIDFile), []byte("  dev-custom \n"), 0o600))
	custom, err := EnsureDeviceID(dir)
	require.NoError(t, err)
	assert.Equal(t, "dev-custom", custom)
}

func TestDefaultSocketPath(t *testing.T) {
	tests := []struct {
		name string
		xdg  string
		home string
		want string
	}{
		{"XDG set", "/run/user/1000", "/home/user", "/run/user/1000/clipbridge/clipbridge.sock"},
		{"XDG not set, HOME set", "", "/home/user", "/home/user/.clipbridge/clipbridge.sock"},
		{"Neither set", "", "", "~/.clipbridge/clipbridge.sock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_RUNTIME_DIR", tt.xdg)
			t.Setenv("HOME", tt.home)
			assert.Equal(t, tt.want, DefaultSocketPath())
		})
	}
}

func TestConfigDevice(t *testing.T) {
	cfg := validConfig()
	cfg.App.Sync.SyncFiles = true
	now := time.UnixMilli(1700000000000)

	device := cfg.Device("pk-test", now)
	assert.Equal(t, "dev-test", device.ID)
	assert.Equal(t, int64(1700000000000), device.LastSeen)
	assert.True(t, device.Capabilities.SupportsFiles)
	assert.Equal(t, cfg.App.Sync.MaxItemSize, device.Capabilities.MaxItemSize)
	assert.NoError(t, protocol.CheckDevice(device))
}

func TestConfigString(t *testing.T) {
	cfg := validConfig()
	s := cfg.String()

	for _, want := range []string{"DeviceID: dev-test", "SyncMode: p2p", "AutoSync: true"} {
		assert.True(t, strings.Contains(s, want), "missing %q in %s", want, s)
	}
}
