package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := newRegistry()

	assert.True(t, r.Register(testDevice("b")))
	assert.True(t, r.Register(testDevice("a")))
	assert.False(t, r.Register(testDevice("a")), "second registration is an update")
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("c"))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	removed, ok := r.Unregister("a")
	require.True(t, ok)
	assert.Equal(t, "a", removed.ID)

	_, ok = r.Unregister("a")
	assert.False(t, ok)

	r.Clear()
	assert.Equal(t, 0, r.Len())
}

func TestRegistryTouch(t *testing.T) {
	r := newRegistry()
	device := testDevice("a")
	r.Register(device)

	r.Touch("a", device.LastSeen+100)
	got, _ := r.Get("a")
	assert.Equal(t, device.LastSeen+100, got.LastSeen)

	r.Touch("a", device.LastSeen)
	got, _ = r.Get("a")
	assert.Equal(t, device.LastSeen+100, got.LastSeen, "last seen never moves backwards")

	r.Touch("missing", 1)
	assert.False(t, r.Has("missing"))
}
