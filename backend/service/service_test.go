package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/adwski/chat-relay/backend/match"
	"github.com/adwski/chat-relay/backend/model"
	"github.com/adwski/chat-relay/backend/registry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transportRecorder stands in for the switch: it records group
// membership and every emission instead of forwarding frames.
type transportRecorder struct {
	mx           sync.Mutex
	connected    map[string]model.Wire
	disconnected []string
	groups       map[string]map[string]struct{}
	emissions    []model.Emission
	emitted      chan model.Emission
}

func newTransportRecorder() *transportRecorder {
	return &transportRecorder{
		connected: make(map[string]model.Wire),
		groups:    make(map[string]map[string]struct{}),
		emitted:   make(chan model.Emission, 16),
	}
}

func (tr *transportRecorder) Connect(connID string, wire model.Wire) error {
	tr.mx.Lock()
	defer tr.mx.Unlock()
	tr.connected[connID] = wire
	return nil
}

func (tr *transportRecorder) Disconnect(connID string) {
	tr.mx.Lock()
	defer tr.mx.Unlock()
	delete(tr.connected, connID)
	tr.disconnected = append(tr.disconnected, connID)
}

func (tr *transportRecorder) Emit(_ context.Context, em model.Emission) {
	tr.mx.Lock()
	tr.emissions = append(tr.emissions, em)
	tr.mx.Unlock()
	tr.emitted <- em
}

func (tr *transportRecorder) JoinGroup(connID, groupID string) {
	tr.mx.Lock()
	defer tr.mx.Unlock()
	if tr.groups[groupID] == nil {
		tr.groups[groupID] = make(map[string]struct{})
	}
	tr.groups[groupID][connID] = struct{}{}
}

func (tr *transportRecorder) LeaveGroup(connID, groupID string) {
	tr.mx.Lock()
	defer tr.mx.Unlock()
	delete(tr.groups[groupID], connID)
}

func (tr *transportRecorder) all() []model.Emission {
	tr.mx.Lock()
	defer tr.mx.Unlock()
	return append([]model.Emission(nil), tr.emissions...)
}

func (tr *transportRecorder) reset() {
	tr.mx.Lock()
	defer tr.mx.Unlock()
	tr.emissions = nil
}

type stubCodes struct {
	codes []string
	next  int
}

func (s *stubCodes) Next() string {
	code := s.codes[s.next%len(s.codes)]
	s.next++
	return code
}

func newTestService() (*Service, *transportRecorder) {
	logger := zerolog.Nop()
	tr := newTransportRecorder()
	svc := NewService(Config{
		Logger: &logger,
		RoomRegistry: registry.New(registry.Config{
			Logger: &logger,
			Codes:  &stubCodes{codes: []string{"AAAAAA", "BBBBBB"}},
			Groups: tr,
		}),
		MatchEngine: match.NewEngine(&logger),
		Switch:      tr,
	})
	return svc, tr
}

func frame(t *testing.T, event string, payload any) model.InboundFrame {
	t.Helper()
	if payload == nil {
		return model.InboundFrame{Event: event}
	}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return model.InboundFrame{Event: event, Payload: b}
}

func TestRoomFlow(t *testing.T) {
	svc, tr := newTestService()
	ctx := context.Background()

	svc.HandleEvent(ctx, "conn-a", frame(t, model.EventCreateRoom, nil))
	svc.HandleEvent(ctx, "conn-b", frame(t, model.EventJoinRoom,
		model.RoomPayload{RoomID: "aaaaaa"}))

	ems := tr.all()
	require.Len(t, ems, 3)
	assert.Equal(t, model.EventRoomCreated, ems[0].Event)
	assert.Equal(t, "conn-a", ems[0].To)
	assert.Equal(t, model.EventRoomJoined, ems[1].Event)
	assert.Equal(t, model.EventUserJoined, ems[2].Event)
	assert.Equal(t, "AAAAAA", ems[2].Group)

	tr.reset()
	svc.HandleEvent(ctx, "conn-a", frame(t, model.EventRoomMessage,
		model.RoomMessagePayload{RoomID: "AAAAAA", Message: "hello", Username: "alice"}))

	ems = tr.all()
	require.Len(t, ems, 1)
	assert.Equal(t, model.EventRoomMessage, ems[0].Event)
	assert.Equal(t, "AAAAAA", ems[0].Group)
	assert.Equal(t, "conn-a", ems[0].Exclude)

	tr.reset()
	svc.HandleEvent(ctx, "conn-b", frame(t, model.EventLeaveRoom,
		model.RoomPayload{RoomID: "AAAAAA"}))

	ems = tr.all()
	require.Len(t, ems, 1)
	assert.Equal(t, model.EventUserLeft, ems[0].Event)
}

func TestRandomFlow(t *testing.T) {
	svc, tr := newTestService()
	ctx := context.Background()

	svc.HandleEvent(ctx, "conn-a", frame(t, model.EventFindRandom, nil))
	svc.HandleEvent(ctx, "conn-b", frame(t, model.EventFindRandom, nil))

	ems := tr.all()
	require.Len(t, ems, 3)
	assert.Equal(t, model.EventWaitingForMatch, ems[0].Event)
	assert.Equal(t, model.EventRandomMatched, ems[1].Event)
	assert.Equal(t, model.EventRandomMatched, ems[2].Event)

	tr.reset()
	svc.HandleEvent(ctx, "conn-a", frame(t, model.EventRandomMessage,
		model.RandomMessagePayload{Message: "hi", Username: ""}))

	ems = tr.all()
	require.Len(t, ems, 1)
	assert.Equal(t, "conn-b", ems[0].To)
	assert.Equal(t, model.MessagePayload{
		Message:  "hi",
		Username: "Anonymous",
		UserID:   "conn-a",
	}, ems[0].Payload)

	tr.reset()
	svc.HandleEvent(ctx, "conn-b", frame(t, model.EventLeaveRandom, nil))

	ems = tr.all()
	require.Len(t, ems, 1)
	assert.Equal(t, model.EventPartnerLeft, ems[0].Event)
	assert.Equal(t, "conn-a", ems[0].To)
}

func TestDeleteSessionCleansBothContexts(t *testing.T) {
	svc, tr := newTestService()
	ctx := context.Background()

	// conn-a is simultaneously a room host and a matched random-chatter
	svc.HandleEvent(ctx, "conn-a", frame(t, model.EventCreateRoom, nil))
	svc.HandleEvent(ctx, "conn-b", frame(t, model.EventJoinRoom,
		model.RoomPayload{RoomID: "AAAAAA"}))
	svc.HandleEvent(ctx, "conn-a", frame(t, model.EventFindRandom, nil))
	svc.HandleEvent(ctx, "conn-c", frame(t, model.EventFindRandom, nil))
	tr.reset()

	svc.DeleteSession(ctx, "conn-a")

	ems := tr.all()
	require.Len(t, ems, 2)
	assert.Equal(t, model.EventUserLeft, ems[0].Event)
	assert.Equal(t, "AAAAAA", ems[0].Group)
	assert.Equal(t, model.EventPartnerLeft, ems[1].Event)
	assert.Equal(t, "conn-c", ems[1].To)
	assert.Equal(t, []string{"conn-a"}, tr.disconnected)

	stats := svc.Stats()
	assert.Equal(t, 1, stats.RoomCount)
	assert.Zero(t, stats.ActivePairs)
	assert.Zero(t, stats.QueueLength)
}

func TestMalformedPayloadDropped(t *testing.T) {
	svc, tr := newTestService()
	ctx := context.Background()

	svc.HandleEvent(ctx, "conn-a", model.InboundFrame{
		Event:   model.EventJoinRoom,
		Payload: json.RawMessage(`"not an object"`),
	})
	svc.HandleEvent(ctx, "conn-a", model.InboundFrame{Event: model.EventRoomMessage})

	assert.Empty(t, tr.all())
	assert.Zero(t, svc.Stats().RoomCount)
}

func TestUnknownEventDropped(t *testing.T) {
	svc, tr := newTestService()

	svc.HandleEvent(context.Background(), "conn-a", frame(t, "no-such-event", nil))

	assert.Empty(t, tr.all())
}

func TestCreateSessionConsumesWire(t *testing.T) {
	svc, tr := newTestService()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wire := model.NewWire()
	require.NoError(t, svc.CreateSession(ctx, "conn-a", wire))

	wire.RX <- frame(t, model.EventCreateRoom, nil)

	select {
	case em := <-tr.emitted:
		assert.Equal(t, model.EventRoomCreated, em.Event)
		assert.Equal(t, "conn-a", em.To)
	case <-time.After(time.Second):
		t.Fatal("no emission produced for wire frame")
	}
}

func TestStats(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	svc.HandleEvent(ctx, "conn-a", frame(t, model.EventCreateRoom, nil))
	svc.HandleEvent(ctx, "conn-b", frame(t, model.EventFindRandom, nil))
	svc.HandleEvent(ctx, "conn-c", frame(t, model.EventFindRandom, nil))
	svc.HandleEvent(ctx, "conn-d", frame(t, model.EventFindRandom, nil))

	stats := svc.Stats()
	assert.Equal(t, 1, stats.RoomCount)
	require.Len(t, stats.Rooms, 1)
	assert.Equal(t, "conn-a", stats.Rooms[0].HostID)
	assert.Equal(t, 1, stats.ActivePairs)
	assert.Equal(t, 1, stats.QueueLength)
}
