package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// MemoryStorage keeps everything in process memory. It backs tests and the
// daemon's --ephemeral mode.
type MemoryStorage struct {
	mu      sync.RWMutex
	history []protocol.ClipboardItem
	config  protocol.AppConfig
	devices map[string]protocol.Device
	closed  bool
}

// NewMemoryStorage creates an empty store holding the default configuration.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		config:  protocol.DefaultConfig(),
		devices: make(map[string]protocol.Device),
	}
}

// Init implements Adapter.
func (m *MemoryStorage) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
	return ctx.Err()
}

// SaveClipboardItem implements Adapter.
func (m *MemoryStorage) SaveClipboardItem(ctx context.Context, item protocol.ClipboardItem) error {
	if item.ID == "" {
		return fmt.Errorf("%w: item has no id", protocol.ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	history := make([]protocol.ClipboardItem, 0, len(m.history)+1)
	history = append(history, item)
	for _, existing := range m.history {
		if existing.ID != item.ID {
			history = append(history, existing)
		}
	}
	if limit := m.config.General.HistorySize; len(history) > limit {
		history = history[:limit]
	}
	m.history = history
	return nil
}

// History implements Adapter.
func (m *MemoryStorage) History(ctx context.Context, limit int) ([]protocol.ClipboardItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	n := len(m.history)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]protocol.ClipboardItem{}, m.history[:n]...), nil
}

// ClearHistory implements Adapter.
func (m *MemoryStorage) ClearHistory(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	m.history = nil
	return nil
}

// SaveConfig implements Adapter. A smaller history size trims the history
// immediately.
func (m *MemoryStorage) SaveConfig(ctx context.Context, config protocol.AppConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	m.config = config.Clone()
	if limit := m.config.General.HistorySize; len(m.history) > limit {
		m.history = m.history[:limit]
	}
	return nil
}

// LoadConfig implements Adapter.
func (m *MemoryStorage) LoadConfig(ctx context.Context) (protocol.AppConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return protocol.AppConfig{}, err
	}
	return m.config.Clone(), nil
}

// SaveDevice implements Adapter.
func (m *MemoryStorage) SaveDevice(ctx context.Context, device protocol.Device) error {
	if device.ID == "" {
		return fmt.Errorf("%w: device has no id", protocol.ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	m.devices[device.ID] = device
	return nil
}

// Devices implements Adapter.
func (m *MemoryStorage) Devices(ctx context.Context) ([]protocol.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	devices := make([]protocol.Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

// RemoveDevice implements Adapter.
func (m *MemoryStorage) RemoveDevice(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	if _, ok := m.devices[deviceID]; !ok {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	delete(m.devices, deviceID)
	return nil
}

// Close implements Adapter. The contents are kept; Init reopens the store.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// check must be called with the lock held.
func (m *MemoryStorage) check(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	return ctx.Err()
}
