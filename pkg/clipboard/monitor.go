package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Veraticus/clipbridge/pkg/protocol"
	clipsync "github.com/Veraticus/clipbridge/pkg/sync"
)

// DefaultPollInterval is how often the monitor reads the clipboard.
const DefaultPollInterval = 500 * time.Millisecond

// MonitorConfig holds configuration for a Monitor.
type MonitorConfig struct {
	Clipboard     Clipboard
	Logger        Logger
	Fingerprinter *Fingerprinter
	Limiter       *RateLimiter

	// Send hands a captured item to the engine, normally Engine.SendItem.
	Send func(protocol.ClipboardItem)

	DeviceID     string
	Policy       Policy
	PollInterval time.Duration
}

// MonitorStats contains monitor counters.
type MonitorStats struct {
	Captured    uint64 `json:"captured"`
	Applied     uint64 `json:"applied"`
	Filtered    uint64 `json:"filtered"`
	RateLimited uint64 `json:"rate_limited"`
	ReadErrors  uint64 `json:"read_errors"`
}

// Monitor is the bridge between the local clipboard and the sync engine. Run
// polls for local changes and announces them; HandleEvent writes items received
// from peers to the clipboard.
type Monitor struct {
	clipboard   Clipboard
	logger      Logger
	fingerprint *Fingerprinter
	limiter     *RateLimiter
	send        func(protocol.ClipboardItem)
	policy      atomic.Pointer[Policy]
	deviceID    string
	interval    time.Duration
	stats       MonitorStats
}

// NewMonitor creates a monitor.
func NewMonitor(config MonitorConfig) (*Monitor, error) {
	if config.Clipboard == nil {
		return nil, errors.New("clipboard is required")
	}
	if config.Send == nil {
		return nil, errors.New("send function is required")
	}
	if config.DeviceID == "" {
		return nil, errors.New("device ID is required")
	}
	if config.Logger == nil {
		config.Logger = noopLogger{}
	}
	if config.Fingerprinter == nil {
		config.Fingerprinter = NewFingerprinter()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	m := &Monitor{
		clipboard:   config.Clipboard,
		logger:      config.Logger,
		fingerprint: config.Fingerprinter,
		limiter:     config.Limiter,
		send:        config.Send,
		deviceID:    config.DeviceID,
		interval:    config.PollInterval,
	}
	m.SetPolicy(config.Policy)
	return m, nil
}

// SetPolicy replaces the capture policy, e.g. after the configuration changes.
func (m *Monitor) SetPolicy(policy Policy) {
	m.policy.Store(&policy)
}

// Policy returns the current capture policy.
func (m *Monitor) Policy() Policy {
	return *m.policy.Load()
}

// Run polls the clipboard until ctx is cancelled. Whatever is on the clipboard
// when Run starts is treated as already seen.
func (m *Monitor) Run(ctx context.Context) error {
	if data, err := m.clipboard.Read(); err == nil {
		m.fingerprint.Mark(data.Content)
	}

	m.logger.Info("clipboard monitor started", "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("clipboard monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll reads the clipboard once and announces the content if it changed.
func (m *Monitor) Poll() {
	data, err := m.clipboard.Read()
	if err != nil {
		atomic.AddUint64(&m.stats.ReadErrors, 1)
		m.logger.Debug("failed to read clipboard", "error", err)
		return
	}
	if data.IsEmpty() || !m.fingerprint.HasChanged(data.Content) {
		return
	}

	if _, err := m.Capture(data, protocol.ClipboardMetadata{}, false); err != nil {
		if errors.Is(err, ErrRateLimited) {
			// Forget the content so the next poll retries it.
			m.fingerprint.Reset()
		}
		m.logger.Debug("clipboard change not synced", "reason", err)
	}
}

// Capture turns local content into an item and sends it. explicit marks a user
// action (a copy command) rather than a background poll.
func (m *Monitor) Capture(data Data, metadata protocol.ClipboardMetadata, explicit bool) (protocol.ClipboardItem, error) {
	if err := m.Policy().AllowCapture(data, metadata, explicit); err != nil {
		atomic.AddUint64(&m.stats.Filtered, 1)
		return protocol.ClipboardItem{}, err
	}
	if m.limiter != nil && !m.limiter.Allow() {
		atomic.AddUint64(&m.stats.RateLimited, 1)
		return protocol.ClipboardItem{}, ErrRateLimited
	}

	item := protocol.NewClipboardItem(m.deviceID, data.Type, data.Content, metadata)
	m.send(item)
	atomic.AddUint64(&m.stats.Captured, 1)

	m.logger.Debug("captured clipboard item", "id", item.ID, "type", item.DataType, "size", item.Content.Size)
	return item, nil
}

// Copy writes content to the local clipboard and announces it.
func (m *Monitor) Copy(data Data, metadata protocol.ClipboardMetadata) (protocol.ClipboardItem, error) {
	if err := m.Policy().AllowCapture(data, metadata, true); err != nil {
		atomic.AddUint64(&m.stats.Filtered, 1)
		return protocol.ClipboardItem{}, err
	}
	if err := m.clipboard.Write(data); err != nil {
		return protocol.ClipboardItem{}, fmt.Errorf("failed to write clipboard: %w", err)
	}
	m.fingerprint.Mark(data.Content)

	return m.Capture(data, metadata, true)
}

// Paste returns the current local clipboard content.
func (m *Monitor) Paste() (Data, error) {
	return m.clipboard.Read()
}

// HandleEvent applies items received from peers to the local clipboard. It is
// registered as an engine subscriber.
func (m *Monitor) HandleEvent(event clipsync.Event) error {
	if event.Type != clipsync.EventItemReceived {
		return nil
	}
	return m.Apply(event.Item)
}

// Apply writes a received item to the clipboard. Items the policy refuses, and
// items that carry no content bytes, are skipped without error.
func (m *Monitor) Apply(item protocol.ClipboardItem) error {
	if err := m.Policy().AllowApply(item); err != nil {
		atomic.AddUint64(&m.stats.Filtered, 1)
		m.logger.Debug("not applying received item", "id", item.ID, "reason", err)
		return nil
	}
	if len(item.Content.Raw) == 0 {
		m.logger.Debug("received item has no content", "id", item.ID)
		return nil
	}

	// Mark first so a poll racing the write does not announce it.
	m.fingerprint.Mark(item.Content.Raw)
	if err := m.clipboard.Write(Data{Type: item.DataType, Content: item.Content.Raw}); err != nil {
		if errors.Is(err, ErrUnsupportedType) {
			atomic.AddUint64(&m.stats.Filtered, 1)
			m.logger.Debug("clipboard cannot hold received item", "id", item.ID, "type", item.DataType)
			return nil
		}
		return fmt.Errorf("failed to apply item %s: %w", item.ID, err)
	}

	atomic.AddUint64(&m.stats.Applied, 1)
	m.logger.Info("applied clipboard item", "id", item.ID, "from", item.DeviceID, "size", protocol.FormatBytes(item.Content.Size))
	return nil
}

// Stats returns current monitor statistics.
func (m *Monitor) Stats() MonitorStats {
	return MonitorStats{
		Captured:    atomic.LoadUint64(&m.stats.Captured),
		Applied:     atomic.LoadUint64(&m.stats.Applied),
		Filtered:    atomic.LoadUint64(&m.stats.Filtered),
		RateLimited: atomic.LoadUint64(&m.stats.RateLimited),
		ReadErrors:  atomic.LoadUint64(&m.stats.ReadErrors),
	}
}
