package clipboard

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// Tool describes an external program pair that reads and writes the clipboard.
type Tool struct {
	Name      string
	ReadCmd   string
	ReadArgs  []string
	WriteCmd  string
	WriteArgs []string
	// TypeFlag selects the MIME type on write (e.g. "--type" for wl-copy). Tools
	// without one can only hold text.
	TypeFlag string
}

// Available reports whether both commands are on PATH.
func (t Tool) Available() bool {
	if _, err := exec.LookPath(t.ReadCmd); err != nil {
		return false
	}
	_, err := exec.LookPath(t.WriteCmd)
	return err == nil
}

// Supports reports whether the tool can hold the given data type.
func (t Tool) Supports(dataType protocol.DataType) bool {
	switch dataType {
	case protocol.DataTypePlainText, protocol.DataTypeFilePaths:
		return true
	default:
		return t.TypeFlag != ""
	}
}

// CommandClipboard implements Clipboard by running a Tool.
type CommandClipboard struct {
	tool   Tool
	config *CommandConfig
}

// NewCommandClipboard creates a clipboard backed by tool.
func NewCommandClipboard(tool Tool, config *CommandConfig) *CommandClipboard {
	return &CommandClipboard{
		tool:   tool,
		config: config.withDefaults(),
	}
}

// Tool returns the underlying tool.
func (c *CommandClipboard) Tool() Tool {
	return c.tool
}

// Read returns the clipboard text. Command tools are read as plain text.
func (c *CommandClipboard) Read() (Data, error) {
	output, err := RunCommand(context.Background(), c.tool.ReadCmd, c.tool.ReadArgs, c.config)
	if err != nil {
		return Data{}, fmt.Errorf("failed to read clipboard with %s: %w", c.tool.Name, err)
	}
	return Data{Type: protocol.DataTypePlainText, Content: output}, nil
}

// Write sets the clipboard contents. Non-text types need a tool with a TypeFlag.
func (c *CommandClipboard) Write(data Data) error {
	if !c.tool.Supports(data.Type) {
		return fmt.Errorf("%w: %s cannot hold %s", ErrUnsupportedType, c.tool.Name, data.Type)
	}

	args := append([]string(nil), c.tool.WriteArgs...)
	if c.tool.TypeFlag != "" && data.Type != protocol.DataTypePlainText && data.Type != protocol.DataTypeFilePaths {
		args = append(args, c.tool.TypeFlag, string(data.Type))
	}

	if err := RunCommandWithInput(context.Background(), c.tool.WriteCmd, args, data.Content, c.config); err != nil {
		return fmt.Errorf("failed to write clipboard with %s: %w", c.tool.Name, err)
	}
	return nil
}

// findTool returns the first available tool.
func findTool(tools []Tool) (Tool, bool) {
	for _, tool := range tools {
		if tool.Available() {
			return tool, true
		}
	}
	return Tool{}, false
}

func toolNames(tools []Tool) string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return strings.Join(names, ", ")
}
