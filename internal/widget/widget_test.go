package widget

import (
	"testing"
	"time"

	"github.com/samlabs/sam-gateway/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVolumeReachesBoundPage(t *testing.T) {
	h := NewHub()
	send := make(chan any, 4)
	h.Bind(send)

	h.SetVolume(40)

	require.Len(t, send, 1)
	msg := (<-send).(types.WSWidgetCommand)
	assert.Equal(t, "widget/set-volume", msg.Type)
	assert.Equal(t, 40, msg.Volume)
}

func TestGetVolumeRoundTrip(t *testing.T) {
	h := NewHub()
	send := make(chan any, 4)
	h.Bind(send)

	got := make(chan int, 1)
	h.GetVolume(func(v int) { got <- v })

	msg := (<-send).(types.WSWidgetCommand)
	require.Equal(t, "widget/get-volume", msg.Type)
	require.NotEmpty(t, msg.ID)

	h.Resolve(msg.ID, 72)

	select {
	case v := <-got:
		assert.Equal(t, 72, v)
	case <-time.After(time.Second):
		t.Fatal("callback never invoked")
	}
}

func TestResolveUnknownIDIsNoOp(t *testing.T) {
	h := NewHub()
	h.Resolve("never-issued", 50)
}

func TestResolveFiresOnlyOnce(t *testing.T) {
	h := NewHub()
	send := make(chan any, 4)
	h.Bind(send)

	calls := 0
	h.GetVolume(func(int) { calls++ })
	msg := (<-send).(types.WSWidgetCommand)

	h.Resolve(msg.ID, 10)
	h.Resolve(msg.ID, 20)
	assert.Equal(t, 1, calls)
}

func TestUnboundHubDropsCommands(t *testing.T) {
	h := NewHub()
	h.SetVolume(50)
	h.GetVolume(func(int) {})
}

func TestNewerPageWinsBinding(t *testing.T) {
	h := NewHub()
	old := make(chan any, 1)
	fresh := make(chan any, 1)

	h.Bind(old)
	h.Bind(fresh)
	h.SetVolume(30)

	assert.Empty(t, old)
	assert.Len(t, fresh, 1)
}

func TestUnbindOnlyDetachesOwnChannel(t *testing.T) {
	h := NewHub()
	old := make(chan any, 1)
	fresh := make(chan any, 1)

	h.Bind(old)
	h.Bind(fresh)
	h.Unbind(old) // stale page teardown must not detach the new page

	h.SetVolume(30)
	assert.Len(t, fresh, 1)
}

func TestFullSendChannelDoesNotBlock(t *testing.T) {
	h := NewHub()
	send := make(chan any) // unbuffered, nobody reading
	h.Bind(send)

	done := make(chan struct{})
	go func() {
		h.SetVolume(10)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetVolume blocked on a full channel")
	}
}
