package eventbus_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/verimail/internal/eventbus"
)

func TestPublishAndReceive(t *testing.T) {
	bus := eventbus.New(2, nil)

	var received []eventbus.Event
	var mu sync.Mutex

	bus.Subscribe(func(e eventbus.Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})

	ok := bus.Publish(eventbus.DispatchCompleted, map[string]string{eventbus.KeyMessageID: "m-1"})
	require.True(t, ok)

	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, eventbus.DispatchCompleted, received[0].Type)
	assert.Equal(t, "m-1", received[0].Payload[eventbus.KeyMessageID])
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestMultipleListeners(t *testing.T) {
	bus := eventbus.New(2, nil)

	var count int32
	for i := 0; i < 3; i++ {
		bus.Subscribe(func(_ eventbus.Event) {
			atomic.AddInt32(&count, 1)
		})
	}

	bus.Publish(eventbus.DispatchFailed, nil)
	bus.Close()

	assert.EqualValues(t, 3, atomic.LoadInt32(&count))
}

func TestListenerPanicDoesNotCrash(t *testing.T) {
	bus := eventbus.New(1, nil)

	var goodCalled int32
	bus.Subscribe(func(_ eventbus.Event) {
		panic("intentional panic in listener")
	})
	bus.Subscribe(func(_ eventbus.Event) {
		atomic.AddInt32(&goodCalled, 1)
	})

	bus.Publish("panic.event", nil)
	bus.Close()

	assert.EqualValues(t, 1, atomic.LoadInt32(&goodCalled))
}

func TestCloseDrainsQueue(t *testing.T) {
	bus := eventbus.New(2, nil)

	var count int32
	bus.Subscribe(func(_ eventbus.Event) {
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&count, 1)
	})

	for i := 0; i < 5; i++ {
		bus.Publish("evt", nil)
	}
	bus.Close()

	assert.EqualValues(t, 5, atomic.LoadInt32(&count))
}

func TestPublishAfterClose(t *testing.T) {
	bus := eventbus.New(1, nil)
	bus.Close()

	assert.False(t, bus.Publish("late", nil))
	assert.NotPanics(t, bus.Close, "second close is a no-op")
}

func TestDefaultWorkers(t *testing.T) {
	bus := eventbus.New(0, nil)
	require.NotNil(t, bus)
	bus.Close()
}
