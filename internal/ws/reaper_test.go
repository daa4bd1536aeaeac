package ws

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpireIdleEvictsStaleRooms(t *testing.T) {
	saver := newFakeSaver()
	hub := newTestHub(saver, 100)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return base }

	stale := &fakeConn{}
	staleID, err := hub.Connect(stale, "stale", "Alice")
	require.NoError(t, err)
	require.NoError(t, hub.Dispatch("stale", staleID, Envelope{
		Type: TypeCodeUpdate,
		Data: rawData(t, map[string]string{"code": "old"}),
	}))

	hub.now = func() time.Time { return base.Add(2 * time.Hour) }
	fresh := &fakeConn{}
	_, err = hub.Connect(fresh, "fresh", "Bob")
	require.NoError(t, err)

	evicted := hub.ExpireIdle(base.Add(time.Hour))
	assert.Equal(t, []string{"stale"}, evicted)

	// The stale room is gone and its members were force-closed with the
	// timeout reason.
	assert.Equal(t, 0, hub.Count("stale"))
	_, _, ok := hub.State("stale")
	assert.False(t, ok)
	assert.True(t, stale.closed)
	assert.Equal(t, 1008, stale.closeCode)
	assert.Equal(t, CloseTimeout, stale.closeReason)
	assert.Equal(t, "old", saver.get("stale"))

	// The active room is untouched.
	assert.Equal(t, 1, hub.Count("fresh"))
	assert.False(t, fresh.closed)
}

func TestExpireIdleNothingStale(t *testing.T) {
	hub := newTestHub(nil, 100)

	_, err := hub.Connect(&fakeConn{}, "room-1", "Alice")
	require.NoError(t, err)

	evicted := hub.ExpireIdle(hub.now().Add(-time.Hour))
	assert.Empty(t, evicted)
	assert.Equal(t, 1, hub.Count("room-1"))
}

func TestReaperSweepsOnInterval(t *testing.T) {
	hub := newTestHub(nil, 100)

	var mu sync.Mutex
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	hub.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	conn := &fakeConn{}
	_, err := hub.Connect(conn, "room-1", "Alice")
	require.NoError(t, err)

	mu.Lock()
	clock = clock.Add(2 * time.Hour)
	mu.Unlock()

	reaper := NewReaper(hub, slog.New(slog.NewTextHandler(io.Discard, nil)), ReaperConfig{
		Interval:    5 * time.Millisecond,
		IdleTimeout: time.Hour,
		Backoff:     5 * time.Millisecond,
	})
	reaper.Start()
	defer reaper.Stop()

	require.Eventually(t, func() bool {
		return hub.Count("room-1") == 0
	}, time.Second, 5*time.Millisecond)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.closed)
	assert.Equal(t, CloseTimeout, conn.closeReason)
}

func TestReaperStopIsClean(t *testing.T) {
	hub := newTestHub(nil, 100)
	reaper := NewReaper(hub, slog.New(slog.NewTextHandler(io.Discard, nil)), ReaperConfig{
		Interval:    time.Hour,
		IdleTimeout: time.Hour,
		Backoff:     time.Minute,
	})

	reaper.Start()
	done := make(chan struct{})
	go func() {
		reaper.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop between sweeps")
	}
}
