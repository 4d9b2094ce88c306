package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// DefaultSocketPath returns the default socket path based on XDG standards.
func DefaultSocketPath() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "clipbridge", "clipbridge.sock")
	}
	return filepath.Join(homeDir(), ".clipbridge", "clipbridge.sock")
}

// DefaultDataDir returns the directory for the database and device id.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "clipbridge")
	}
	return filepath.Join(homeDir(), ".clipbridge")
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home = "~"
	}
	return home
}

// CurrentPlatform maps the running OS to a protocol platform. Unknown systems
// report as linux.
func CurrentPlatform() protocol.Platform {
	switch runtime.GOOS {
	case "darwin":
		return protocol.PlatformMacOS
	case "windows":
		return protocol.PlatformWindows
	case "android":
		return protocol.PlatformAndroid
	case "ios":
		return protocol.PlatformIOS
	default:
		return protocol.PlatformLinux
	}
}

func isPlatform(p protocol.Platform) bool {
	for _, known := range protocol.Platforms {
		if p == known {
			return true
		}
	}
	return false
}

func defaultDeviceName() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	return hostname
}
