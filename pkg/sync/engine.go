package sync

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// engine implements the Engine interface and is the core synchronization
// component of clipbridge. It decides, for every item that crosses the device
// boundary, whether it is valid, new and from a known device, and announces the
// outcome to its subscribers.
//
// State Management:
//   - Device registry of currently reachable peers
//   - Recent-item cache for deduplication
//   - Lifecycle state (idle, syncing, error, paused)
//   - Statistics for monitoring and debugging
//
// Event Processing:
//   - Remote items: from ProcessMessage or ProcessIncomingItem
//   - Local items: from SendItem
//   - Device membership: RegisterDevice, UnregisterDevice and device_goodbye
//
// Thread Safety:
//   - One mutex serializes every public operation end to end
//   - Atomic operations for statistics counters
//
// The engine owns no goroutines and no timers. Cache sweeping, transport and
// clipboard access all belong to its callers and subscribers.
type engine struct {
	config      *Config
	logger      Logger
	now         func() time.Time
	deviceID    string
	subscribers []Subscriber

	mu       sync.Mutex
	state    State
	paused   bool
	devices  *registry
	cache    *itemCache
	stats    Stats
	lastSync atomic.Int64
}

// NewEngine creates a new sync engine with the provided configuration. The
// engine starts idle with an empty registry and cache; subscribers are fixed for
// its lifetime.
func NewEngine(config *Config) (Engine, error) {
	if config == nil {
		return nil, errors.New("invalid config: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &engine{
		config:      config,
		logger:      config.Logger,
		now:         config.Now,
		deviceID:    config.DeviceID,
		subscribers: append([]Subscriber(nil), config.Subscribers...),
		state:       StateIdle,
		devices:     newRegistry(),
		cache:       newItemCache(),
		stats: Stats{
			StartTime: config.Now(),
		},
	}, nil
}

// ProcessIncomingItem runs the receive sequence for an item from a peer.
func (e *engine) ProcessIncomingItem(candidate any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.processIncoming(candidate)
}

// processIncoming is ProcessIncomingItem without locking. Callers must hold e.mu.
func (e *engine) processIncoming(candidate any) {
	if e.paused {
		atomic.AddUint64(&e.stats.DroppedWhilePaused, 1)
		return
	}

	if err := protocol.CheckClipboardItem(candidate); err != nil {
		e.reject(ErrInvalidItem, err, &e.stats.InvalidItems)
		return
	}
	item, err := protocol.DecodeItem(candidate)
	if err != nil {
		e.reject(ErrInvalidItem, err, &e.stats.InvalidItems)
		return
	}

	if e.cache.Has(item.ID) {
		atomic.AddUint64(&e.stats.Duplicates, 1)
		e.logger.Debug("dropping duplicate item", "id", item.ID, "device", item.DeviceID)
		return
	}

	if !e.devices.Has(item.DeviceID) {
		atomic.AddUint64(&e.stats.UnknownSenders, 1)
		e.logger.Info("dropping item from unknown device", "id", item.ID, "device", item.DeviceID)
		e.notify(Event{
			Type: EventError,
			Err:  fmt.Errorf("%w: %s", ErrUnknownDevice, item.DeviceID),
			Item: item,
		})
		return
	}

	if e.runItem(EventItemReceived, item) {
		atomic.AddUint64(&e.stats.ItemsReceived, 1)
		e.devices.Touch(item.DeviceID, e.now().UnixMilli())
		e.logger.Debug("received item", "id", item.ID, "device", item.DeviceID, "type", item.DataType)
	}
}

// SendItem runs the send sequence for a locally captured item.
func (e *engine) SendItem(item protocol.ClipboardItem) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		atomic.AddUint64(&e.stats.DroppedWhilePaused, 1)
		return
	}

	item.DeviceID = e.deviceID
	if err := protocol.CheckClipboardItem(item); err != nil {
		e.reject(ErrInvalidItem, err, &e.stats.InvalidItems)
		return
	}

	if e.runItem(EventItemSent, item) {
		atomic.AddUint64(&e.stats.ItemsSent, 1)
		e.logger.Debug("sent item", "id", item.ID, "type", item.DataType, "size", item.Content.Size)
	}
}

// runItem moves through syncing, caches the item and emits it. It reports
// whether the sequence completed; on failure the engine is left in the error
// state.
func (e *engine) runItem(eventType EventType, item protocol.ClipboardItem) bool {
	e.setState(StateSyncing)

	if err := e.cache.Put(item); err != nil {
		e.fail(err)
		return false
	}

	if err := e.emit(Event{Type: eventType, Item: item}); err != nil {
		e.fail(fmt.Errorf("%s subscriber: %w", eventType, err))
		return false
	}

	e.lastSync.Store(e.now().UnixNano())
	e.setState(StateIdle)
	return true
}

// ProcessMessage validates an envelope and dispatches it by type. Recipients
// are not consulted: routing a message to this device is the transport's job.
func (e *engine) ProcessMessage(candidate any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := protocol.CheckMessage(candidate); err != nil {
		e.reject(ErrInvalidMessage, err, &e.stats.InvalidMessages)
		return
	}
	msg, err := protocol.DecodeMessage(candidate)
	if err != nil {
		e.reject(ErrInvalidMessage, err, &e.stats.InvalidMessages)
		return
	}

	switch msg.Type {
	case protocol.MessageClipboardUpdate:
		e.processIncoming(msg.Payload)

	case protocol.MessageDeviceGoodbye:
		e.unregister(msg.From)

	default:
		// Handshake, history and keepalive messages belong to the transport.
		e.logger.Debug("ignoring message", "type", msg.Type, "from", msg.From)
	}
}

// NewClipboardUpdate wraps an item in a broadcast clipboard_update envelope.
func (e *engine) NewClipboardUpdate(item protocol.ClipboardItem) (protocol.Message, error) {
	return protocol.NewMessage(protocol.MessageClipboardUpdate, e.deviceID, item)
}

// RegisterDevice adds or refreshes a device. DeviceConnected is emitted only the
// first time an id is registered; later calls replace the record silently.
func (e *engine) RegisterDevice(device protocol.Device) error {
	if err := protocol.CheckDevice(device); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDevice, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.devices.Register(device) {
		e.logger.Debug("device refreshed", "device", device.ID)
		return nil
	}

	e.logger.Info("device connected", "device", device.ID, "name", device.Name, "platform", device.Platform)
	e.notify(Event{Type: EventDeviceConnected, Device: device})
	return nil
}

// UnregisterDevice removes a device if it is registered.
func (e *engine) UnregisterDevice(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unregister(deviceID)
}

func (e *engine) unregister(deviceID string) {
	device, removed := e.devices.Unregister(deviceID)
	if !removed {
		return
	}

	e.logger.Info("device disconnected", "device", device.ID, "name", device.Name)
	e.notify(Event{Type: EventDeviceDisconnected, Device: device})
}

// Device returns a registered device.
func (e *engine) Device(deviceID string) (protocol.Device, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.devices.Get(deviceID)
}

// Devices returns the registered devices ordered by id.
func (e *engine) Devices() []protocol.Device {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.devices.List()
}

// Pause drops all item traffic until Resume.
func (e *engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.paused {
		e.logger.Info("sync paused")
	}
	e.paused = true
	e.setState(StatePaused)
}

// Resume leaves the paused or error state.
func (e *engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		e.logger.Info("sync resumed")
	}
	e.paused = false
	if e.state == StatePaused || e.state == StateError {
		e.setState(StateIdle)
	}
}

// IsPaused reports whether the engine is paused.
func (e *engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.paused
}

// State returns the current lifecycle state.
func (e *engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Sweep evicts cached items older than maxAge.
func (e *engine) Sweep(maxAge time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := e.cache.Sweep(maxAge, e.now())
	if removed > 0 {
		e.logger.Debug("swept item cache", "removed", removed, "remaining", e.cache.Len())
	}
	return removed
}

// RecentItems returns the cached items, newest first.
func (e *engine) RecentItems() []protocol.ClipboardItem {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.cache.Items()
}

// Reset clears the cache and registry and forces the idle state. It is a hard
// reset: no DeviceDisconnected events are emitted for the cleared devices.
func (e *engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache.Clear()
	e.devices.Clear()
	e.paused = false
	e.setState(StateIdle)

	e.logger.Info("sync engine reset")
}

// DeviceID returns the local device id.
func (e *engine) DeviceID() string {
	return e.deviceID
}

// Stats returns current engine statistics.
func (e *engine) Stats() *Stats {
	stats := &Stats{
		StartTime:          e.stats.StartTime,
		ItemsReceived:      atomic.LoadUint64(&e.stats.ItemsReceived),
		ItemsSent:          atomic.LoadUint64(&e.stats.ItemsSent),
		Duplicates:         atomic.LoadUint64(&e.stats.Duplicates),
		InvalidMessages:    atomic.LoadUint64(&e.stats.InvalidMessages),
		InvalidItems:       atomic.LoadUint64(&e.stats.InvalidItems),
		UnknownSenders:     atomic.LoadUint64(&e.stats.UnknownSenders),
		ProcessingFailures: atomic.LoadUint64(&e.stats.ProcessingFailures),
		DroppedWhilePaused: atomic.LoadUint64(&e.stats.DroppedWhilePaused),
	}
	if last := e.lastSync.Load(); last != 0 {
		stats.LastSyncTime = time.Unix(0, last)
	}
	return stats
}

// reject reports a discarded input without touching the state.
func (e *engine) reject(kind error, cause error, counter *uint64) {
	atomic.AddUint64(counter, 1)
	err := fmt.Errorf("%w: %w", kind, cause)
	e.logger.Debug("rejected input", "error", err)
	e.notify(Event{Type: EventError, Err: err})
}

// fail moves the engine to the error state and reports the cause.
func (e *engine) fail(cause error) {
	atomic.AddUint64(&e.stats.ProcessingFailures, 1)
	err := fmt.Errorf("%w: %w", ErrProcessing, cause)
	e.logger.Error("sync processing failed", "error", err)

	e.setState(StateError)
	e.notify(Event{Type: EventError, Err: err})
}

// notify emits an event whose subscriber failures cannot fail an operation.
func (e *engine) notify(event Event) {
	if err := e.emit(event); err != nil {
		e.logger.Error("subscriber failed", "event", event.Type, "error", err)
	}
}

// emit delivers an event to every subscriber exactly once, in registration
// order. A failing subscriber does not stop delivery to the rest.
func (e *engine) emit(event Event) error {
	event.Time = e.now()

	var errs []error
	for _, subscriber := range e.subscribers {
		if err := deliver(subscriber, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(subscriber Subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return subscriber.HandleEvent(event)
}
