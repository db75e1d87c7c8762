package _switch

import (
	"context"
	"testing"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSwitch() *Switch {
	logger := zerolog.Nop()
	return NewSwitch(&logger)
}

// bufferedWire returns a wire whose TX side can hold frames without a
// consumer attached.
func bufferedWire() model.Wire {
	return model.Wire{
		RX: make(chan model.InboundFrame, 4),
		TX: make(chan model.OutboundFrame, 4),
	}
}

func TestConnectDuplicate(t *testing.T) {
	sw := newTestSwitch()

	require.NoError(t, sw.Connect("conn-a", bufferedWire()))
	assert.ErrorIs(t, sw.Connect("conn-a", bufferedWire()), ErrAlreadyConnected)
}

func TestEmitTo(t *testing.T) {
	sw := newTestSwitch()
	wire := bufferedWire()
	require.NoError(t, sw.Connect("conn-a", wire))

	sw.Emit(context.Background(), model.Emission{
		To:      "conn-a",
		Event:   model.EventRoomCreated,
		Payload: model.RoomPayload{RoomID: "AAAAAA"},
	})

	require.Len(t, wire.TX, 1)
	frame := <-wire.TX
	assert.Equal(t, model.EventRoomCreated, frame.Event)
	assert.Equal(t, model.RoomPayload{RoomID: "AAAAAA"}, frame.Payload)
}

func TestEmitToUnknownConnection(t *testing.T) {
	sw := newTestSwitch()

	// nothing to assert beyond "does not panic or block"
	sw.Emit(context.Background(), model.Emission{
		To:    "conn-x",
		Event: model.EventPartnerLeft,
	})
}

func TestEmitToGroupExcludes(t *testing.T) {
	sw := newTestSwitch()
	wires := map[string]model.Wire{
		"conn-a": bufferedWire(),
		"conn-b": bufferedWire(),
		"conn-c": bufferedWire(),
	}
	for connID, wire := range wires {
		require.NoError(t, sw.Connect(connID, wire))
		sw.JoinGroup(connID, "AAAAAA")
	}

	sw.Emit(context.Background(), model.Emission{
		Group:   "AAAAAA",
		Exclude: "conn-a",
		Event:   model.EventRoomMessage,
		Payload: model.MessagePayload{Message: "hi", Username: "alice", UserID: "conn-a"},
	})

	assert.Empty(t, wires["conn-a"].TX, "excluded sender must not receive the frame")
	assert.Len(t, wires["conn-b"].TX, 1)
	assert.Len(t, wires["conn-c"].TX, 1)
}

func TestLeaveGroupStopsDelivery(t *testing.T) {
	sw := newTestSwitch()
	wireA, wireB := bufferedWire(), bufferedWire()
	require.NoError(t, sw.Connect("conn-a", wireA))
	require.NoError(t, sw.Connect("conn-b", wireB))
	sw.JoinGroup("conn-a", "AAAAAA")
	sw.JoinGroup("conn-b", "AAAAAA")

	sw.LeaveGroup("conn-b", "AAAAAA")
	sw.Emit(context.Background(), model.Emission{
		Group: "AAAAAA",
		Event: model.EventUserLeft,
	})

	assert.Len(t, wireA.TX, 1)
	assert.Empty(t, wireB.TX)
	assert.Equal(t, 1, sw.GroupSize("AAAAAA"))
}

func TestDisconnectRemovesFromGroups(t *testing.T) {
	sw := newTestSwitch()
	require.NoError(t, sw.Connect("conn-a", bufferedWire()))
	sw.JoinGroup("conn-a", "AAAAAA")
	sw.JoinGroup("conn-a", "BBBBBB")

	sw.Disconnect("conn-a")

	assert.Zero(t, sw.GroupSize("AAAAAA"))
	assert.Zero(t, sw.GroupSize("BBBBBB"))
}

func TestEmitCanceledContext(t *testing.T) {
	sw := newTestSwitch()
	// unbuffered wire with no consumer: only cancellation lets Emit return early
	require.NoError(t, sw.Connect("conn-a", model.NewWire()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sw.Emit(ctx, model.Emission{
		To:    "conn-a",
		Event: model.EventWaitingForMatch,
	})
}
