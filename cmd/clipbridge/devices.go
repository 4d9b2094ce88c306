package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

var (
	devicesJSON bool

	devicesCmd = &cobra.Command{
		Use:   "devices",
		Short: "List, add and remove peer devices",
		Long: `Show the devices the daemon currently syncs with.

Items from a device are only accepted while it is registered. A transport
registers peers as it connects to them; "devices add" and "devices remove"
do the same by hand.

Examples:
  clipbridge devices
  clipbridge devices add peer.json
  clipbridge devices remove 3f0c5a52-...`,
		RunE: runDevices,
		Args: cobra.NoArgs,
	}

	devicesAddCmd = &cobra.Command{
		Use:   "add [file]",
		Short: "Register a device from its JSON record",
		Long: `Register a peer device. The device record is read as JSON from the
given file, or from stdin when no file is given or the file is "-".`,
		RunE: runDevicesAdd,
		Args: cobra.MaximumNArgs(1),
	}

	devicesRemoveCmd = &cobra.Command{
		Use:   "remove <device-id>",
		Short: "Unregister a device",
		RunE:  runDevicesRemove,
		Args:  cobra.ExactArgs(1),
	}
)

func init() {
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "Output devices as JSON")
	devicesCmd.AddCommand(devicesAddCmd, devicesRemoveCmd)
}

func runDevices(cmd *cobra.Command, _ []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	devices, err := c.Devices()
	if err != nil {
		return err
	}

	if devicesJSON {
		return writeJSON(cmd.OutOrStdout(), devices)
	}
	printDevices(cmd.OutOrStdout(), devices, time.Now())
	return nil
}

func printDevices(out io.Writer, devices []protocol.Device, now time.Time) {
	if len(devices) == 0 {
		_, _ = fmt.Fprintln(out, "No devices registered.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "ID\tNAME\tPLATFORM\tLAST SEEN")
	for _, d := range devices {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s ago\n",
			color.CyanString(d.ID),
			d.Name,
			d.Platform,
			formatDuration(now.Sub(time.UnixMilli(d.LastSeen))),
		)
	}
}

func runDevicesAdd(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = readInput(nil, cmd.InOrStdin(), 1<<20)
	}
	if err != nil {
		return err
	}

	var device protocol.Device
	if err := json.Unmarshal(data, &device); err != nil {
		return fmt.Errorf("failed to parse device record: %w", err)
	}
	if device.LastSeen == 0 {
		device.LastSeen = time.Now().UnixMilli()
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	if err := c.Register(device); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", device.ID)
	return nil
}

func runDevicesRemove(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	if err := c.Unregister(args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}
