package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

var scanQuiet bool

var scanCmd = &cobra.Command{
	Use:   "scan [text]",
	Short: "Check text with the sensitive content filter",
	Long: `Run text through the same heuristics the daemon uses to keep passwords,
keys, card numbers and e-mail addresses off other devices.

The text is taken from the argument or stdin. The exit status is 1 when the
text looks sensitive, so scan can be used in scripts.

Examples:
  clipbridge scan "password: hunter2"
  pbpaste | clipbridge scan --quiet && echo clean`,
	RunE: runScan,
	Args: cobra.MaximumNArgs(1),
}

func init() {
	scanCmd.Flags().BoolVarP(&scanQuiet, "quiet", "q", false, "Only set the exit status")
}

func runScan(cmd *cobra.Command, args []string) error {
	content, err := readInput(args, cmd.InOrStdin(), protocol.DefaultMaxItemSize)
	if err != nil {
		return err
	}

	name := protocol.MatchSensitive(string(content))
	if name == "" {
		if !scanQuiet {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("clean"))
		}
		return nil
	}

	if !scanQuiet {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: matched %s pattern\n", color.RedString("sensitive"), name)
	}
	return errSilentExit
}
