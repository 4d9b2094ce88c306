package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/clipbridge/pkg/clipboard"
	"github.com/Veraticus/clipbridge/pkg/protocol"
)

var copyType string

var copyCmd = &cobra.Command{
	Use:   "copy [text]",
	Short: "Copy content to the clipboard",
	Long: `Copy content to the clipboard via the clipbridge daemon.

If text is provided as an argument, it will be copied directly.
If no argument is provided, content is read from stdin.

The content is written to the local clipboard and announced to your other
devices, subject to the sync settings (sensitive content filter, image and
file sync, size limit).

Examples:
  # Copy text directly
  clipbridge copy "Hello, World!"

  # Copy command output
  ls -la | clipbridge copy

  # Copy an image
  clipbridge copy --type image/png < screenshot.png`,
	RunE: runCopy,
	Args: cobra.MaximumNArgs(1),
}

func init() {
	copyCmd.Flags().StringVarP(&copyType, "type", "t", string(protocol.DataTypePlainText), "MIME type of the content")
}

func runCopy(cmd *cobra.Command, args []string) error {
	dataType := protocol.DataType(copyType)
	if !protocol.IsSupportedDataType(copyType) {
		var ok bool
		if dataType, ok = protocol.DataTypeFromMIME(copyType); !ok {
			return fmt.Errorf("unsupported content type: %s", copyType)
		}
	}

	content, err := readInput(args, cmd.InOrStdin(), protocol.DefaultMaxItemSize)
	if err != nil {
		return err
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	return c.Copy(clipboard.Data{Type: dataType, Content: content})
}
