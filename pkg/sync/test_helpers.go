package sync

import (
	"errors"
	"sync"
	"time"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu   sync.Mutex
	logs []logEntry
}

type logEntry struct {
	level string
	msg   string
	kv    []any
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.log("DEBUG", msg, keysAndValues...)
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.log("INFO", msg, keysAndValues...)
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.log("ERROR", msg, keysAndValues...)
}

func (l *testLogger) log(level, msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, logEntry{
		level: level,
		msg:   msg,
		kv:    keysAndValues,
	})
}

func (l *testLogger) GetLogs() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	logs := make([]logEntry, len(l.logs))
	copy(logs, l.logs)
	return logs
}

// fakeClock is a settable clock for tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingSubscriber returns err for every event of the given type.
type failingSubscriber struct {
	err       error
	eventType EventType
	panics    bool
}

func (s *failingSubscriber) HandleEvent(event Event) error {
	if event.Type != s.eventType {
		return nil
	}
	if s.panics {
		panic("subscriber exploded")
	}
	return s.err
}

var errSubscriber = errors.New("subscriber refused")

// testHarness bundles an engine with a recorder that sees every event.
type testHarness struct {
	engine   Engine
	recorder *Recorder
	clock    *fakeClock
	logger   *testLogger
}

func newTestHarness(deviceID string, extra ...Subscriber) *testHarness {
	h := &testHarness{
		recorder: NewRecorder(100),
		clock:    newFakeClock(time.UnixMilli(1_700_000_000_000)),
		logger:   newTestLogger(),
	}

	subscribers := append([]Subscriber{h.recorder}, extra...)
	engine, err := NewEngine(&Config{
		DeviceID:    deviceID,
		Logger:      h.logger,
		Now:         h.clock.Now,
		Subscribers: subscribers,
	})
	if err != nil {
		panic(err)
	}
	h.engine = engine
	return h
}

// states returns the sequence of states announced by StateChanged events.
func (h *testHarness) states() []State {
	var states []State
	for _, event := range h.recorder.OfType(EventStateChanged) {
		states = append(states, event.State)
	}
	return states
}

func testDevice(id string) protocol.Device {
	return protocol.Device{
		ID:        id,
		Name:      "Device " + id,
		Platform:  protocol.PlatformLinux,
		PublicKey: "pk-" + id,
		LastSeen:  1_700_000_000_000,
		Capabilities: protocol.DeviceCapabilities{
			SupportsImages: true,
			SupportsFiles:  true,
			MaxItemSize:    protocol.DefaultMaxItemSize,
		},
	}
}

// testItemMap returns an item shaped as it arrives decoded from JSON.
func testItemMap(id, deviceID string, timestamp int64) map[string]any {
	return map[string]any{
		"id":        id,
		"deviceId":  deviceID,
		"timestamp": float64(timestamp),
		"dataType":  "text/plain",
		"content":   map[string]any{"size": float64(5)},
		"metadata":  map[string]any{"encrypted": false, "compressed": false},
		"signature": "",
	}
}

func testItem(id string, timestamp int64) protocol.ClipboardItem {
	return protocol.ClipboardItem{
		ID:        id,
		Timestamp: timestamp,
		DataType:  protocol.DataTypePlainText,
		Content:   protocol.ClipboardContent{Raw: []byte("abc"), Size: 3},
	}
}
