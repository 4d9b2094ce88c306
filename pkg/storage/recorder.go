package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Veraticus/clipbridge/pkg/protocol"
	clipsync "github.com/Veraticus/clipbridge/pkg/sync"
)

// DefaultWriteTimeout bounds each write a HistoryRecorder makes.
const DefaultWriteTimeout = 2 * time.Second

// Store is the part of Adapter a HistoryRecorder writes to. Both Adapter and
// Manager satisfy it.
type Store interface {
	SaveClipboardItem(ctx context.Context, item protocol.ClipboardItem) error
	SaveDevice(ctx context.Context, device protocol.Device) error
	RemoveDevice(ctx context.Context, deviceID string) error
}

// HistoryRecorder is an engine subscriber that saves synchronized items to the
// history and keeps the known-device list in step with registrations.
//
// Storage failures are logged and counted but not returned: a full disk must
// not stop clipboard items from reaching the clipboard or the network.
type HistoryRecorder struct {
	store    Store
	logger   Logger
	timeout  time.Duration
	failures atomic.Uint64
}

// NewHistoryRecorder creates a recorder writing to store.
func NewHistoryRecorder(store Store, logger Logger) *HistoryRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &HistoryRecorder{
		store:   store,
		logger:  logger,
		timeout: DefaultWriteTimeout,
	}
}

// HandleEvent implements clipsync.Subscriber.
func (r *HistoryRecorder) HandleEvent(event clipsync.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	switch event.Type {
	case clipsync.EventItemReceived, clipsync.EventItemSent:
		if err := r.store.SaveClipboardItem(ctx, event.Item); err != nil {
			r.failures.Add(1)
			r.logger.Error("failed to record clipboard item", "id", event.Item.ID, "error", err)
		}
	case clipsync.EventDeviceConnected:
		if err := r.store.SaveDevice(ctx, event.Device); err != nil {
			r.failures.Add(1)
			r.logger.Error("failed to record device", "device", event.Device.ID, "error", err)
		}
	case clipsync.EventDeviceDisconnected:
		err := r.store.RemoveDevice(ctx, event.Device.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			r.failures.Add(1)
			r.logger.Error("failed to forget device", "device", event.Device.ID, "error", err)
		}
	}
	return nil
}

// Failures returns the number of writes that failed.
func (r *HistoryRecorder) Failures() uint64 {
	return r.failures.Load()
}
