package notify

import (
	"testing"
	"time"

	"github.com/samlabs/sam-gateway/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToastFansOutToAllSubscribers(t *testing.T) {
	h := NewHub()
	a := make(chan any, 4)
	b := make(chan any, 4)
	h.Subscribe(a)
	h.Subscribe(b)

	h.Toast("Failed to send message.", LevelError)

	for _, ch := range []chan any{a, b} {
		require.Len(t, ch, 1)
		msg := (<-ch).(types.WSToastResponse)
		assert.Equal(t, "toast", msg.Type)
		assert.Equal(t, "Failed to send message.", msg.Message)
		assert.Equal(t, "error", msg.Level)
		assert.NotEmpty(t, msg.ID)
	}
}

func TestToastIDsAreUnique(t *testing.T) {
	h := NewHub()
	ch := make(chan any, 4)
	h.Subscribe(ch)

	h.Toast("one", LevelInfo)
	h.Toast("two", LevelInfo)

	first := (<-ch).(types.WSToastResponse)
	second := (<-ch).(types.WSToastResponse)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestUnsubscribedChannelReceivesNothing(t *testing.T) {
	h := NewHub()
	ch := make(chan any, 4)
	h.Subscribe(ch)
	h.Unsubscribe(ch)

	h.Toast("gone", LevelInfo)
	assert.Empty(t, ch)
}

func TestFullSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	full := make(chan any) // unbuffered, nobody reading
	h.Subscribe(full)

	done := make(chan struct{})
	go func() {
		h.Toast("dropped", LevelInfo)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Toast blocked on a full subscriber")
	}
}

func TestToastWithNoSubscribers(t *testing.T) {
	NewHub().Toast("into the void", LevelInfo)
}
