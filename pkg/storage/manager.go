package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// Manager wraps an Adapter and caches the application configuration. The
// cached copy is replaced only after the adapter has accepted a write.
type Manager struct {
	adapter Adapter

	mu     sync.RWMutex
	config *protocol.AppConfig
}

// NewManager creates a manager around adapter.
func NewManager(adapter Adapter) *Manager {
	return &Manager{adapter: adapter}
}

// Init initializes the adapter and loads the configuration.
func (m *Manager) Init(ctx context.Context) error {
	if err := m.adapter.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	config, err := m.adapter.LoadConfig(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.config = &config
	m.mu.Unlock()
	return nil
}

// Config returns a copy of the current configuration, loading it on first use.
func (m *Manager) Config(ctx context.Context) (protocol.AppConfig, error) {
	m.mu.RLock()
	cached := m.config
	m.mu.RUnlock()
	if cached != nil {
		return cached.Clone(), nil
	}

	config, err := m.adapter.LoadConfig(ctx)
	if err != nil {
		return protocol.AppConfig{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		m.config = &config
	}
	return m.config.Clone(), nil
}

// UpdateConfig applies update to a copy of the current configuration, validates
// the result and saves it. On any failure the cached configuration is left as
// it was.
func (m *Manager) UpdateConfig(ctx context.Context, update func(*protocol.AppConfig)) (protocol.AppConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		config, err := m.adapter.LoadConfig(ctx)
		if err != nil {
			return protocol.AppConfig{}, err
		}
		m.config = &config
	}

	next := m.config.Clone()
	update(&next)
	if next.Security.ExcludedApps == nil {
		next.Security.ExcludedApps = []string{}
	}
	if err := protocol.CheckConfig(next); err != nil {
		return protocol.AppConfig{}, err
	}

	if err := m.adapter.SaveConfig(ctx, next); err != nil {
		return protocol.AppConfig{}, fmt.Errorf("failed to save config: %w", err)
	}
	m.config = &next
	return next.Clone(), nil
}

// SaveClipboardItem adds an item to the history.
func (m *Manager) SaveClipboardItem(ctx context.Context, item protocol.ClipboardItem) error {
	return m.adapter.SaveClipboardItem(ctx, item)
}

// History returns up to limit items, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]protocol.ClipboardItem, error) {
	return m.adapter.History(ctx, limit)
}

// ClearHistory removes every item from the history.
func (m *Manager) ClearHistory(ctx context.Context) error {
	return m.adapter.ClearHistory(ctx)
}

// SaveDevice records a known device.
func (m *Manager) SaveDevice(ctx context.Context, device protocol.Device) error {
	return m.adapter.SaveDevice(ctx, device)
}

// Devices returns every known device.
func (m *Manager) Devices(ctx context.Context) ([]protocol.Device, error) {
	return m.adapter.Devices(ctx)
}

// RemoveDevice forgets a device.
func (m *Manager) RemoveDevice(ctx context.Context, deviceID string) error {
	return m.adapter.RemoveDevice(ctx, deviceID)
}

// Close closes the adapter.
func (m *Manager) Close() error {
	return m.adapter.Close()
}
