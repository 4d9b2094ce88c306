//go:build linux

package clipboard

import "fmt"

// linuxTools in order of preference. Wayland first, then the X11 tools.
var linuxTools = []Tool{
	{
		Name:     "wl-clipboard",
		ReadCmd:  "wl-paste",
		ReadArgs: []string{"--no-newline"},
		WriteCmd: "wl-copy",
		TypeFlag: "--type",
	},
	{
		Name:      "xclip",
		ReadCmd:   "xclip",
		ReadArgs:  []string{"-out", "-selection", "clipboard"},
		WriteCmd:  "xclip",
		WriteArgs: []string{"-in", "-selection", "clipboard"},
		TypeFlag:  "-t",
	},
	{
		Name:      "xsel",
		ReadCmd:   "xsel",
		ReadArgs:  []string{"--output", "--clipboard"},
		WriteCmd:  "xsel",
		WriteArgs: []string{"--input", "--clipboard"},
	},
}

func newPlatformClipboard(config *CommandConfig) (Clipboard, error) {
	tool, ok := findTool(linuxTools)
	if !ok {
		return nil, fmt.Errorf("%w: install one of %s", ErrNotSupported, toolNames(linuxTools))
	}
	config.withDefaults().Logger.Debug("using clipboard tool", "tool", tool.Name)
	return NewCommandClipboard(tool, config), nil
}
