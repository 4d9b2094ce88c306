package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Veraticus/clipbridge/pkg/api"
	clipsync "github.com/Veraticus/clipbridge/pkg/sync"
)

var (
	statusJSON bool

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		Long: `Display the current status of the clipbridge daemon.

Shows information about:
- Device identity and version
- Sync state and the last error
- Registered devices
- Synchronization and clipboard monitor statistics

Examples:
  # Show status in human-readable format
  clipbridge status

  # Show status as JSON
  clipbridge status --json`,
		RunE: runStatus,
		Args: cobra.NoArgs,
	}
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	status, err := c.Status()
	if err != nil {
		return err
	}

	if statusJSON {
		return writeJSON(cmd.OutOrStdout(), status)
	}
	printHumanStatus(cmd.OutOrStdout(), status, time.Now())
	return nil
}

// printHumanStatus prints status in a human-readable format.
func printHumanStatus(out io.Writer, status *api.StatusResponse, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintf(w, "Device ID:\t%s\n", status.DeviceID)
	if status.DeviceName != "" {
		_, _ = fmt.Fprintf(w, "Device Name:\t%s\n", status.DeviceName)
	}
	_, _ = fmt.Fprintf(w, "Version:\t%s\n", status.Version)
	_, _ = fmt.Fprintf(w, "Uptime:\t%s\n", formatDuration(now.Sub(status.Started)))
	_, _ = fmt.Fprintf(w, "State:\t%s\n", stateColor(status.State).Sprint(status.State))
	if status.LastError != "" {
		_, _ = fmt.Fprintf(w, "Last Error:\t%s\n", color.RedString(status.LastError))
	}

	_, _ = fmt.Fprintf(w, "\nDevices:\t%d\n", len(status.Devices))
	for _, id := range status.Devices {
		_, _ = fmt.Fprintf(w, "  - %s\n", id)
	}

	stats := status.Stats
	_, _ = fmt.Fprintf(w, "\nSynchronization:\n")
	_, _ = fmt.Fprintf(w, "  Items Sent:\t%d\n", stats.ItemsSent)
	_, _ = fmt.Fprintf(w, "  Items Received:\t%d\n", stats.ItemsReceived)
	_, _ = fmt.Fprintf(w, "  Duplicates:\t%d\n", stats.Duplicates)
	_, _ = fmt.Fprintf(w, "  Recent Items:\t%d\n", status.RecentItems)
	if rejected := stats.InvalidMessages + stats.InvalidItems + stats.UnknownSenders; rejected > 0 {
		_, _ = fmt.Fprintf(w, "  Rejected:\t%s\n", color.YellowString("%d (%d messages, %d items, %d unknown senders)",
			rejected, stats.InvalidMessages, stats.InvalidItems, stats.UnknownSenders))
	}
	if stats.ProcessingFailures > 0 {
		_, _ = fmt.Fprintf(w, "  Failures:\t%s\n", color.RedString("%d", stats.ProcessingFailures))
	}
	if stats.DroppedWhilePaused > 0 {
		_, _ = fmt.Fprintf(w, "  Dropped While Paused:\t%d\n", stats.DroppedWhilePaused)
	}
	if stats.LastSyncTime != "" {
		if t, err := time.Parse(time.RFC3339, stats.LastSyncTime); err == nil {
			_, _ = fmt.Fprintf(w, "  Last Sync:\t%s ago\n", formatDuration(now.Sub(t)))
		}
	}

	if m := status.Monitor; m != nil {
		_, _ = fmt.Fprintf(w, "\nClipboard:\n")
		_, _ = fmt.Fprintf(w, "  Captured:\t%d\n", m.Captured)
		_, _ = fmt.Fprintf(w, "  Applied:\t%d\n", m.Applied)
		_, _ = fmt.Fprintf(w, "  Filtered:\t%d\n", m.Filtered)
		_, _ = fmt.Fprintf(w, "  Rate Limited:\t%d\n", m.RateLimited)
		_, _ = fmt.Fprintf(w, "  Read Errors:\t%d\n", m.ReadErrors)
	}
}

func stateColor(state string) *color.Color {
	switch clipsync.State(state) {
	case clipsync.StateIdle:
		return color.New(color.FgGreen)
	case clipsync.StateSyncing:
		return color.New(color.FgCyan)
	case clipsync.StatePaused:
		return color.New(color.FgYellow)
	case clipsync.StateError:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.Reset)
	}
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return d.Round(time.Second).String()
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours()/24), int(d.Hours())%24)
	}
}
