package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBusBroadcast(t *testing.T) {
	b := NewBus()
	a := b.Subscribe()
	c := b.Subscribe()

	b.Emit(PingResult, 42)

	for _, ch := range []<-chan Event{a, c} {
		ev := receive(t, ch)
		assert.Equal(t, PingResult, ev.Channel)
		assert.Equal(t, 42, ev.Payload)
	}
}

func TestBusPreservesOrder(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()

	b.Emit(PingResult, 1)
	b.Emit(PingResult, 2)
	b.Emit(StatsUpdate, 3)

	assert.Equal(t, 1, receive(t, ch).Payload)
	assert.Equal(t, 2, receive(t, ch).Payload)
	assert.Equal(t, StatsUpdate, receive(t, ch).Channel)
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Emit(PingResult, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)

	b.Emit(PingResult, 1) // must not panic on a closed channel
	b.Unsubscribe(ch)
}

func TestBusClose(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after Close yields a closed channel")

	b.Emit(StateChange, "stopped")
}
