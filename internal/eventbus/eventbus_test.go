package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	bus.Publish(7, true)

	select {
	case ev := <-ch:
		assert.Equal(t, Event{ConfigID: 7, Running: true}, ev)
	case <-time.After(time.Second):
		t.Fatal("did not receive published event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe(4)
	unsubscribe()

	bus.Publish(1, false)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestPerConfigOrderIsPreserved(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe(8)
	defer unsubscribe()

	bus.Publish(1, true)
	bus.Publish(1, false)
	bus.Publish(1, true)

	want := []bool{true, false, true}
	for _, w := range want {
		ev := <-ch
		assert.Equal(t, w, ev.Running)
	}
}
