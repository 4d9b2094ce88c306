package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Stream messages this device sends",
	Long: `Print every protocol message the daemon sends, one JSON envelope per line,
until interrupted or the daemon stops.

A transport reads this stream and delivers each message to the peers. A
reader that falls behind misses messages rather than slowing the daemon.

Examples:
  clipbridge outbox
  clipbridge outbox | transport-send`,
	RunE: runOutbox,
	Args: cobra.NoArgs,
}

func runOutbox(cmd *cobra.Command, _ []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer func() { _ = out.Flush() }()

	return c.Outbox(ctx, func(message []byte) error {
		if _, err := out.Write(message); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
		if err := out.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
		return out.Flush()
	})
}

// contextOf returns the command's context, or Background when it was
// executed without one.
func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
