package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pasteCmd = &cobra.Command{
	Use:   "paste",
	Short: "Paste clipboard contents",
	Long: `Output the current clipboard contents from the clipbridge daemon.

The content is written exactly as stored, without a trailing newline.

Examples:
  # Paste to stdout
  clipbridge paste

  # Paste to file
  clipbridge paste > output.txt`,
	RunE: runPaste,
	Args: cobra.NoArgs,
}

func runPaste(cmd *cobra.Command, _ []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	data, err := c.Paste()
	if err != nil {
		return err
	}

	if _, err := cmd.OutOrStdout().Write(data.Content); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
