//go:build darwin

package clipboard

import "fmt"

// darwinTools reads and writes the macOS pasteboard through pbcopy/pbpaste,
// which only carry text.
var darwinTools = []Tool{
	{
		Name:     "pbcopy",
		ReadCmd:  "pbpaste",
		WriteCmd: "pbcopy",
	},
}

func newPlatformClipboard(config *CommandConfig) (Clipboard, error) {
	tool, ok := findTool(darwinTools)
	if !ok {
		return nil, fmt.Errorf("%w: %s not found", ErrNotSupported, toolNames(darwinTools))
	}
	return NewCommandClipboard(tool, config), nil
}
