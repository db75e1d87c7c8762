package model

import "encoding/json"

// Inbound event names.
const (
	EventCreateRoom    = "create-room"
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventRoomMessage   = "room-message"
	EventFindRandom    = "find-random"
	EventLeaveRandom   = "leave-random"
	EventRandomMessage = "random-message"
)

// Outbound event names. Room and random messages reuse the inbound
// names in the opposite direction.
const (
	EventRoomCreated     = "room-created"
	EventRoomJoined      = "room-joined"
	EventRoomError       = "room-error"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventWaitingForMatch = "waiting-for-match"
	EventRandomMatched   = "random-matched"
	EventPartnerLeft     = "partner-left"
)

// AnonymousName substitutes an empty username on relayed messages.
const AnonymousName = "Anonymous"

// InboundFrame is a single client-to-server protocol frame.
// Payload stays raw until the event name selects a concrete type.
type InboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutboundFrame is a single server-to-client protocol frame.
type OutboundFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type UserPayload struct {
	UserID string `json:"userId"`
}

// RoomMessagePayload is the inbound shape of a room message.
type RoomMessagePayload struct {
	RoomID   string `json:"roomId"`
	Message  string `json:"message"`
	Username string `json:"username"`
}

// RandomMessagePayload is the inbound shape of a random-chat message.
type RandomMessagePayload struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// MessagePayload is the outbound shape of both room and random messages.
type MessagePayload struct {
	Message  string `json:"message"`
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

type MatchedPayload struct {
	Matched bool `json:"matched"`
}

// Emission is one outbound notification produced by a handler.
// Exactly one of To or Group is set; Exclude applies to group
// emissions only and names a connection that must not receive the frame.
type Emission struct {
	To      string
	Group   string
	Exclude string
	Event   string
	Payload any
}

// RoomInfo is a read-only room summary for the stats API.
type RoomInfo struct {
	Code         string `json:"code"`
	HostID       string `json:"host_id"`
	Participants int    `json:"participants"`
}

// Stats is the aggregate relay state exposed by the API server.
type Stats struct {
	Rooms       []RoomInfo `json:"rooms"`
	RoomCount   int        `json:"room_count"`
	QueueLength int        `json:"queue_length"`
	ActivePairs int        `json:"active_pairs"`
}

// Wire is a per-connection channel pair between the websocket server
// and the relay service.
type Wire struct {
	RX chan InboundFrame
	TX chan OutboundFrame
}

func NewWire() Wire {
	return Wire{
		RX: make(chan InboundFrame),
		TX: make(chan OutboundFrame),
	}
}
