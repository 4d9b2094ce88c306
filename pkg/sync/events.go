package sync

import (
	"sync"
	"time"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// EventType represents the type of engine event
type EventType int

const (
	// EventItemReceived carries a peer's item for the clipboard writer to apply.
	EventItemReceived EventType = iota
	// EventItemSent carries a local item for the transport to deliver.
	EventItemSent
	// EventDeviceConnected indicates a device was registered for the first time.
	EventDeviceConnected
	// EventDeviceDisconnected carries the record of a device that was unregistered.
	EventDeviceDisconnected
	// EventError reports a discarded input or a processing failure.
	EventError
	// EventStateChanged carries the new engine state.
	EventStateChanged
)

// String returns the string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventItemReceived:
		return "ItemReceived"
	case EventItemSent:
		return "ItemSent"
	case EventDeviceConnected:
		return "DeviceConnected"
	case EventDeviceDisconnected:
		return "DeviceDisconnected"
	case EventError:
		return "Error"
	case EventStateChanged:
		return "StateChanged"
	default:
		return "Unknown"
	}
}

// Event is a notification emitted by the engine. Only the fields relevant to
// Type are set.
type Event struct {
	Time   time.Time
	Err    error
	State  State
	Device protocol.Device
	Item   protocol.ClipboardItem
	Type   EventType
}

// Subscriber receives engine events. HandleEvent is called synchronously while
// the engine lock is held; it must not call back into the engine. Returning an
// error from an ItemReceived or ItemSent event fails that item.
type Subscriber interface {
	HandleEvent(event Event) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(event Event) error

// HandleEvent calls f(event).
func (f SubscriberFunc) HandleEvent(event Event) error {
	return f(event)
}

// Recorder is a Subscriber that keeps the most recent events in a ring buffer.
// The daemon uses it to report the last error; tests use it to assert on
// emission order.
type Recorder struct {
	events []Event
	head   int
	tail   int
	size   int
	cap    int
	mu     sync.Mutex
}

// NewRecorder creates a recorder holding up to capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1000 // Default capacity
	}
	return &Recorder{
		events: make([]Event, capacity),
		cap:    capacity,
	}
}

// HandleEvent records the event, dropping the oldest when full.
func (r *Recorder) HandleEvent(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.tail] = event
	r.tail = (r.tail + 1) % r.cap

	if r.size < r.cap {
		r.size++
	} else {
		r.head = (r.head + 1) % r.cap
	}
	return nil
}

// Len returns the current number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Clear removes all recorded events.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.head = 0
	r.tail = 0
	r.size = 0
}

// Events returns the recorded events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	result := make([]Event, r.size)
	for i := 0; i < r.size; i++ {
		result[i] = r.events[(r.head+i)%r.cap]
	}
	return result
}

// OfType returns the recorded events of the given type, oldest first.
func (r *Recorder) OfType(eventType EventType) []Event {
	var result []Event
	for _, event := range r.Events() {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}

// Last returns the most recent event of the given type.
func (r *Recorder) Last(eventType EventType) (Event, bool) {
	events := r.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == eventType {
			return events[i], true
		}
	}
	return Event{}, false
}
