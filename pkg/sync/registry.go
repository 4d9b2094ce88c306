package sync

import (
	"sort"
	"sync"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// registry tracks the devices currently considered reachable. It lives only as
// long as the process; persisting trusted devices is the storage layer's job.
type registry struct {
	devices map[string]protocol.Device
	mu      sync.RWMutex
}

func newRegistry() *registry {
	return &registry{
		devices: make(map[string]protocol.Device),
	}
}

// Register inserts or replaces the device keyed by its id. It reports whether the
// device was not registered before.
func (r *registry) Register(device protocol.Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.devices[device.ID]
	r.devices[device.ID] = device
	return !exists
}

// Unregister removes a device and returns the removed record.
func (r *registry) Unregister(deviceID string) (protocol.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, exists := r.devices[deviceID]
	if exists {
		delete(r.devices, deviceID)
	}
	return device, exists
}

// Get returns a registered device.
func (r *registry) Get(deviceID string) (protocol.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, exists := r.devices[deviceID]
	return device, exists
}

// Has reports whether a device is registered.
func (r *registry) Has(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.devices[deviceID]
	return exists
}

// List returns all registered devices sorted by id.
func (r *registry) List() []protocol.Device {
	r.mu.RLock()
	result := make([]protocol.Device, 0, len(r.devices))
	for _, device := range r.devices {
		result = append(result, device)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Len returns the number of registered devices.
func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Touch records a successful interaction with a device. Timestamps never move
// backwards.
func (r *registry) Touch(deviceID string, lastSeen int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, exists := r.devices[deviceID]
	if !exists || lastSeen <= device.LastSeen {
		return
	}
	device.LastSeen = lastSeen
	r.devices[deviceID] = device
}

// Clear removes every device.
func (r *registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]protocol.Device)
}
