package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

var (
	historyLimit int
	historyJSON  bool

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recent clipboard items",
		Long: `List the clipboard items the daemon has stored, newest first.

Both items copied on this device and items received from other devices are
recorded. The number of stored items is bounded by app.general.historySize.

Examples:
  clipbridge history
  clipbridge history --limit 5 --json`,
		RunE: runHistory,
		Args: cobra.NoArgs,
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of items")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output items as JSON")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if historyLimit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", historyLimit)
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	items, err := c.History(historyLimit)
	if err != nil {
		return err
	}

	if historyJSON {
		return writeJSON(cmd.OutOrStdout(), items)
	}
	printHistory(cmd.OutOrStdout(), items)
	return nil
}

func printHistory(out io.Writer, items []protocol.ClipboardItem) {
	if len(items) == 0 {
		_, _ = fmt.Fprintln(out, "No clipboard history.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "TIME\tFROM\tTYPE\tSIZE\tPREVIEW")
	for _, item := range items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			item.Time().Local().Format(time.DateTime),
			color.CyanString(item.DeviceID),
			item.DataType,
			protocol.FormatBytes(item.Content.Size),
			previewLine(item),
		)
	}
}

// previewLine is a single-line preview of an item.
func previewLine(item protocol.ClipboardItem) string {
	preview := item.Content.Preview
	if preview == "" {
		if item.DataType != protocol.DataTypePlainText {
			return "-"
		}
		preview = item.Text()
	}
	preview = strings.Join(strings.Fields(preview), " ")

	const maxRunes = 60
	if runes := []rune(preview); len(runes) > maxRunes {
		preview = string(runes[:maxRunes-1]) + "…"
	}
	return preview
}
