package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperEvictsOnSchedule(t *testing.T) {
	engine, err := NewEngine(&Config{DeviceID: "dev-self"})
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour).UnixMilli()
	engine.SendItem(testItem("stale", old))
	engine.SendItem(testItem("fresh", time.Now().UnixMilli()))
	require.Len(t, engine.RecentItems(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := &Sweeper{
		Engine:   engine,
		Logger:   newTestLogger(),
		Interval: 10 * time.Millisecond,
		MaxAge:   time.Minute,
	}

	done := make(chan error, 1)
	go func() {
		done <- sweeper.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return len(engine.RecentItems()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "fresh", engine.RecentItems()[0].ID)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperRequiresEngine(t *testing.T) {
	err := (&Sweeper{}).Run(context.Background())
	assert.Error(t, err)
}
