package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause synchronization",
	Long: `Stop sending and accepting clipboard items until "clipbridge resume".

Local copies still reach the local clipboard while paused; they are simply
not announced to other devices.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		if err := c.Pause(); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Synchronization paused")
		return nil
	},
	Args: cobra.NoArgs,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume synchronization",
	Long:  `Resume synchronization after "clipbridge pause". Resuming also clears an error state.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		if err := c.Resume(); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Synchronization resumed")
		return nil
	},
	Args: cobra.NoArgs,
}
