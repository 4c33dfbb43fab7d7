package events

import (
	"context"
	"testing"
	"time"

	"farm-ledger/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(id string) core.ChangeEvent {
	return core.ChangeEvent{Entity: "sale", Kind: "created", ID: id, Actor: "tester", At: time.Now().UTC()}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(4, nil)
	defer b.Close()

	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.NotifyChange(context.Background(), event("S-1"))

	for _, ch := range []<-chan core.ChangeEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "S-1", ev.ID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBroadcaster_FullBufferDrops(t *testing.T) {
	b := NewBroadcaster(1, nil)
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	b.NotifyChange(context.Background(), event("S-1"))
	b.NotifyChange(context.Background(), event("S-2"))

	assert.Equal(t, int64(1), b.Dropped())
	ev := <-ch
	assert.Equal(t, "S-1", ev.ID)
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(1, nil)
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// No subscribers left, nothing is counted as dropped.
	b.NotifyChange(context.Background(), event("S-1"))
	assert.Zero(t, b.Dropped())
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(1, nil)
	ch, _ := b.Subscribe()
	b.Close()

	_, ok := <-ch
	require.False(t, ok)

	late, _ := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscriptions after Close start closed")

	b.NotifyChange(context.Background(), event("S-1"))
}
