// Package clipboard connects the sync engine to the operating system clipboard.
//
// It provides three things:
//   - Clipboard implementations: command-backed platform clipboards and an
//     in-memory one for headless daemons and tests
//   - A Fingerprinter for cheap "did the clipboard change" detection
//   - A Monitor that polls a Clipboard, filters captures through a Policy and
//     hands new items to the engine, and applies received items back
//
// The monitor never shares the engine's dedup cache. After writing a remote item
// it marks the content as seen in its Fingerprinter so the next poll does not
// announce it again.
package clipboard

import (
	"errors"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

var (
	// ErrNotSupported indicates the platform is not supported
	ErrNotSupported = errors.New("clipboard: platform not supported")

	// ErrUnsupportedType indicates the clipboard cannot hold the given data type.
	ErrUnsupportedType = errors.New("clipboard: data type not supported")

	// ErrContentTooLarge indicates content over the configured size limit.
	ErrContentTooLarge = errors.New("clipboard: content exceeds maximum size")

	// ErrInvalidText indicates text content that is not valid UTF-8.
	ErrInvalidText = errors.New("clipboard: text is not valid UTF-8")
)

// Data is one clipboard snapshot: the bytes and what kind of content they are.
type Data struct {
	Type    protocol.DataType
	Content []byte
}

// Text builds plain text Data.
func Text(s string) Data {
	return Data{Type: protocol.DataTypePlainText, Content: []byte(s)}
}

// IsEmpty reports whether there is no content.
func (d Data) IsEmpty() bool {
	return len(d.Content) == 0
}

// Clipboard defines the interface for platform-specific clipboard access
type Clipboard interface {
	// Read returns the current clipboard contents
	Read() (Data, error)

	// Write sets the clipboard contents
	Write(data Data) error
}

// Logger interface for clipboard logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewPlatformClipboard returns a clipboard implementation for the current
// platform, or ErrNotSupported when no clipboard tool is available.
func NewPlatformClipboard(config *CommandConfig) (Clipboard, error) {
	if config == nil {
		config = DefaultCommandConfig()
	}
	return newPlatformClipboard(config)
}
