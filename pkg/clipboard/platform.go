//go:build !darwin && !linux

package clipboard

// newPlatformClipboard returns ErrNotSupported on platforms without a known
// clipboard tool. Use MemoryClipboard there.
func newPlatformClipboard(_ *CommandConfig) (Clipboard, error) {
	return nil, ErrNotSupported
}
