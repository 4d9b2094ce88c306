package clipboard

import (
	"sync"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// MemoryClipboard is a clipboard that lives only in process memory. It is
// useful on headless servers, where clipbridge acts as a relay with no desktop
// clipboard, and in tests.
type MemoryClipboard struct {
	mu     sync.RWMutex
	data   Data
	writes int
}

// NewMemoryClipboard creates an empty in-memory clipboard.
func NewMemoryClipboard() *MemoryClipboard {
	return &MemoryClipboard{
		data: Data{Type: protocol.DataTypePlainText},
	}
}

// Read returns a copy of the current content.
func (m *MemoryClipboard) Read() (Data, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Data{Type: m.data.Type, Content: append([]byte(nil), m.data.Content...)}, nil
}

// Write replaces the content.
func (m *MemoryClipboard) Write(data Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = Data{Type: data.Type, Content: append([]byte(nil), data.Content...)}
	m.writes++
	return nil
}

// Writes returns how many times Write has been called.
func (m *MemoryClipboard) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
