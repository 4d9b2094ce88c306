// Package sync provides the clipboard synchronization engine for clipbridge.
// It is the one place where ordering, idempotence and multi-device state are
// decided; the clipboard, transport and storage layers around it are adapters.
//
// The sync engine handles:
//   - Validation of every inbound message and clipboard item
//   - Deduplication of re-delivered items through a time-bounded cache
//   - Tracking which devices are currently registered as reachable
//   - The engine lifecycle (idle, syncing, error, paused)
//
// Architecture Overview:
//
// The engine is driven by its callers and never starts goroutines of its own:
//   - Local captures enter through SendItem and leave as ItemSent events
//   - Transport messages enter through ProcessMessage and leave as ItemReceived events
//   - Cache sweeping is driven by a Sweeper owned by the surrounding application
//
// Every public operation runs to completion under the engine mutex, so the device
// registry, the recent-item cache and the state are never observed half updated.
// Subscribers are called synchronously inside that critical section, in emission
// order, exactly once per event. A subscriber must not call back into the engine
// from the goroutine that delivered the event; hand the work to another goroutine.
//
// Failure Handling:
//
// Nothing that arrives from the network can make an engine operation fail hard.
// Malformed input and unknown senders are reported as Error events and discarded;
// duplicates are dropped silently. A failure in the middle of processing (a cache
// rejection, a subscriber error or panic) moves the engine into the error state,
// which persists until Resume or the next successful operation.
//
// Example Usage:
//
//	engine, err := sync.NewEngine(&sync.Config{
//	    DeviceID:    "dev-self",
//	    Logger:      logger,
//	    Subscribers: []sync.Subscriber{clipboardWriter, transportSender},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine.RegisterDevice(peer)
//	engine.ProcessMessage(rawJSON)
package sync

import (
	"errors"
	"time"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

var (
	// ErrInvalidMessage indicates a malformed message envelope.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidItem indicates a malformed clipboard item.
	ErrInvalidItem = errors.New("invalid clipboard item")

	// ErrInvalidDevice indicates a malformed device record.
	ErrInvalidDevice = errors.New("invalid device")

	// ErrUnknownDevice indicates an item from a device that is not registered.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrProcessing indicates an unexpected fault while an item was being processed.
	ErrProcessing = errors.New("processing failed")
)

// Engine coordinates clipboard synchronization between this device and its peers.
type Engine interface {
	// ProcessIncomingItem accepts a clipboard item received from a peer. The
	// candidate may be a protocol.ClipboardItem, a decoded JSON object or raw JSON.
	ProcessIncomingItem(candidate any)

	// SendItem stamps the local device id onto a locally captured item and emits
	// it for transmission. Any DeviceID already on the item is replaced.
	SendItem(item protocol.ClipboardItem)

	// ProcessMessage accepts a protocol envelope from the transport.
	ProcessMessage(candidate any)

	// NewClipboardUpdate wraps an item in a broadcast clipboard_update envelope
	// from this device.
	NewClipboardUpdate(item protocol.ClipboardItem) (protocol.Message, error)

	// RegisterDevice adds or refreshes a reachable device.
	RegisterDevice(device protocol.Device) error

	// UnregisterDevice removes a device. Unknown ids are ignored.
	UnregisterDevice(deviceID string)

	// Device returns a registered device.
	Device(deviceID string) (protocol.Device, bool)

	// Devices returns every registered device ordered by id.
	Devices() []protocol.Device

	// Pause stops item processing and sending until Resume.
	Pause()

	// Resume leaves the paused state (or clears an error) and returns to idle.
	Resume()

	// IsPaused reports whether the engine is paused.
	IsPaused() bool

	// State returns the current lifecycle state.
	State() State

	// Sweep evicts cached items older than maxAge and returns how many were removed.
	Sweep(maxAge time.Duration) int

	// RecentItems returns the cached items, newest first.
	RecentItems() []protocol.ClipboardItem

	// Reset clears the cache and the registry and forces the idle state.
	Reset()

	// DeviceID returns the local device id.
	DeviceID() string

	// Stats returns current engine statistics.
	Stats() *Stats
}

// Stats contains sync engine statistics.
type Stats struct {
	StartTime          time.Time
	LastSyncTime       time.Time
	ItemsReceived      uint64
	ItemsSent          uint64
	Duplicates         uint64
	InvalidMessages    uint64
	InvalidItems       uint64
	UnknownSenders     uint64
	ProcessingFailures uint64
	DroppedWhilePaused uint64
}

// Config holds sync engine configuration.
type Config struct {
	// Now overrides the clock, mainly for tests. Defaults to time.Now.
	Now         func() time.Time
	Logger      Logger
	DeviceID    string
	Subscribers []Subscriber
}

// Logger interface for sync engine logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Validate checks if config is valid.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return errors.New("device ID is required")
	}
	for _, s := range c.Subscribers {
		if s == nil {
			return errors.New("subscribers must not be nil")
		}
	}

	// Apply defaults
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = &noopLogger{}
	}

	return nil
}

// noopLogger implements Logger with no operations.
type noopLogger struct{}

func (n *noopLogger) Debug(_ string, _ ...any) {}
func (n *noopLogger) Info(_ string, _ ...any)  {}
func (n *noopLogger) Error(_ string, _ ...any) {}
