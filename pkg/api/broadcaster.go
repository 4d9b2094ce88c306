package api

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Veraticus/clipbridge/pkg/protocol"
	clipsync "github.com/Veraticus/clipbridge/pkg/sync"
)

// DefaultOutboxBuffer is the number of messages queued per OUTBOX stream.
const DefaultOutboxBuffer = 64

// Broadcaster is an engine subscriber that turns ItemSent events into encoded
// clipboard_update messages and fans them out to every OUTBOX stream. A slow
// stream loses messages rather than stalling the engine.
type Broadcaster struct {
	logger    *slog.Logger
	deviceID  string
	listeners map[chan []byte]struct{}
	buffer    int
	dropped   atomic.Uint64
	mu        sync.RWMutex
	closed    bool
}

// NewBroadcaster creates a broadcaster for messages sent from deviceID.
func NewBroadcaster(deviceID string, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Broadcaster{
		logger:    logger,
		deviceID:  deviceID,
		listeners: make(map[chan []byte]struct{}),
		buffer:    DefaultOutboxBuffer,
	}
}

// HandleEvent implements clipsync.Subscriber.
func (b *Broadcaster) HandleEvent(event clipsync.Event) error {
	if event.Type != clipsync.EventItemSent {
		return nil
	}

	msg, err := protocol.NewMessage(protocol.MessageClipboardUpdate, b.deviceID, event.Item)
	if err != nil {
		return err
	}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	b.Publish(data)
	return nil
}

// Publish sends an encoded message to every listener without blocking.
func (b *Broadcaster) Publish(data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for ch := range b.listeners {
		select {
		case ch <- data:
		default:
			b.dropped.Add(1)
			b.logger.Debug("outbox stream full, message dropped")
		}
	}
}

// Subscribe registers a new stream. The returned function unsubscribes and
// closes the channel.
func (b *Broadcaster) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.listeners[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.listeners[ch]; ok {
				delete(b.listeners, ch)
				close(ch)
			}
		})
	}
}

// Dropped returns how many messages were lost to full streams.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Listeners returns the number of open streams.
func (b *Broadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Close closes every stream. Later subscriptions receive a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.listeners {
		close(ch)
	}
	b.listeners = nil
}
