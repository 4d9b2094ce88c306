// Package main implements the clipbridge command line tool.
//
// # Overview
//
// clipbridge keeps clipboards consistent across a user's devices. The "run"
// command starts the daemon: it watches the local clipboard, feeds changes
// through the sync engine, records history, and serves a local Unix socket API.
// Every other command is a thin client of that API.
//
// A network transport is not part of this binary. A transport process reads
// outbound messages with "clipbridge outbox" and delivers received ones with
// "clipbridge inject"; both speak the protocol's JSON envelopes.
//
// # Configuration
//
// Flags override CLIPBRIDGE_* environment variables (a .env file in the working
// directory is loaded first), which override the YAML config file, which
// overrides built-in defaults. "clipbridge config init" writes a starting file.
//
// # Example Usage
//
//	# Start the daemon
//	clipbridge run
//
//	# Copy and paste through it
//	echo hello | clipbridge copy
//	clipbridge paste
//
//	# Bridge to a transport
//	clipbridge outbox | transport-send
//	transport-recv | clipbridge inject
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/clipbridge/pkg/client"
	"github.com/Veraticus/clipbridge/pkg/config"
)

var (
	// Version information (set by build flags).
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	// Global flags.
	configFile string
	socketPath string
	dataDir    string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "clipbridge",
		Short: "Clipboard synchronization across your devices",
		Long: `clipbridge keeps the clipboards of your devices in sync.

Run "clipbridge run" to start the daemon, then use copy, paste, status and
the other commands to talk to it over its local socket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: <data dir>/config.yaml)")
	flags.StringVar(&socketPath, "socket", config.DefaultSocketPath(), "Unix socket path for the local API")
	flags.StringVar(&dataDir, "data-dir", config.DefaultDataDir(), "Directory for the database and device id")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		runCmd,
		copyCmd,
		pasteCmd,
		statusCmd,
		historyCmd,
		devicesCmd,
		pauseCmd,
		resumeCmd,
		injectCmd,
		outboxCmd,
		scanCmd,
		configCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSilentExit) {
			rootCmd.PrintErrln("Error:", err)
		}
		os.Exit(1)
	}
}

// errSilentExit makes main exit non-zero without printing anything more.
var errSilentExit = errors.New("exit")

// loadConfig resolves the configuration for cmd. Client commands pass
// withDeviceID=false so they never create a device id.
func loadConfig(cmd *cobra.Command, withDeviceID bool) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		ConfigFile: configFile,
		Flags:      cmd.Flags(),
		NoDeviceID: !withDeviceID,
	})
}

// newClient connects to the socket configured for cmd.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return nil, err
	}
	return client.New(&client.Config{SocketPath: cfg.SocketPath}), nil
}
