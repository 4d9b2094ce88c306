// Package storage persists what clipbridge needs to survive a restart: the
// clipboard history, the application configuration and the devices this node
// has seen. The sync engine never touches storage directly; a HistoryRecorder
// subscribed to the engine does.
package storage

import (
	"context"
	"errors"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrClosed is returned by operations on a closed adapter.
var ErrClosed = errors.New("storage: closed")

// Adapter is a persistence backend.
//
// History is ordered newest first and holds at most general.historySize items
// of the stored configuration. Saving an item whose ID is already present moves
// it to the front instead of storing it twice.
type Adapter interface {
	// Init prepares the backend. It is safe to call more than once.
	Init(ctx context.Context) error

	SaveClipboardItem(ctx context.Context, item protocol.ClipboardItem) error

	// History returns up to limit items, newest first. A limit of zero or
	// less returns the whole history.
	History(ctx context.Context, limit int) ([]protocol.ClipboardItem, error)

	ClearHistory(ctx context.Context) error

	SaveConfig(ctx context.Context, config protocol.AppConfig) error

	// LoadConfig returns the saved configuration, or protocol.DefaultConfig
	// when none has been saved.
	LoadConfig(ctx context.Context) (protocol.AppConfig, error)

	// SaveDevice inserts or replaces a device record.
	SaveDevice(ctx context.Context, device protocol.Device) error

	// Devices returns every known device ordered by ID.
	Devices(ctx context.Context) ([]protocol.Device, error)

	// RemoveDevice deletes a device record. It returns ErrNotFound when the
	// device is not known.
	RemoveDevice(ctx context.Context, deviceID string) error

	Close() error
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
