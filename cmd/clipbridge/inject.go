package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/clipbridge/pkg/api"
	"github.com/Veraticus/clipbridge/pkg/client"
)

var injectCmd = &cobra.Command{
	Use:   "inject [file]",
	Short: "Deliver protocol messages to the daemon",
	Long: `Hand protocol messages received by a transport to the daemon.

Messages are JSON envelopes, read from the given file or from stdin when no
file is given or the file is "-". Any number of messages may follow each
other, typically one per line. Each is checked and handed to the sync
engine; a rejected message is reported and the rest are still delivered.

Examples:
  clipbridge inject message.json
  transport-recv | clipbridge inject`,
	RunE: runInject,
	Args: cobra.MaximumNArgs(1),
}

func runInject(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer func() { _ = f.Close() }()
		in = f
	} else if isTerminal(in) {
		return errNoInput
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	delivered, rejected, err := injectStream(in, c.Inject, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if delivered+rejected == 0 {
		return errNoInput
	}
	if rejected > 0 {
		return fmt.Errorf("%d of %d messages rejected", rejected, delivered+rejected)
	}
	return nil
}

// injectStream decodes consecutive JSON values from in and hands each to
// inject. Messages the daemon rejects are reported on errOut; decoding and
// connection failures stop the stream.
func injectStream(in io.Reader, inject func([]byte) error, errOut io.Writer) (delivered, rejected int, err error) {
	decoder := json.NewDecoder(bufio.NewReader(in))
	for n := 1; ; n++ {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return delivered, rejected, nil
			}
			return delivered, rejected, fmt.Errorf("failed to decode message %d: %w", n, err)
		}
		if len(raw) > api.MaxBodySize {
			rejected++
			_, _ = fmt.Fprintf(errOut, "message %d: larger than %d bytes\n", n, api.MaxBodySize)
			continue
		}

		if err := inject(raw); err != nil {
			var serverErr *client.ServerError
			if !errors.As(err, &serverErr) {
				return delivered, rejected, err
			}
			rejected++
			_, _ = fmt.Fprintf(errOut, "message %d: %s\n", n, serverErr.Message)
			continue
		}
		delivered++
	}
}
