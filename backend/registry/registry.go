// Package registry owns named chat rooms: creation, membership,
// message relay, and teardown. A room exists exactly as long as it has
// at least one participant.
package registry

import (
	"sync"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/adwski/chat-relay/backend/roomcode"
	"github.com/rs/zerolog"
)

const roomNotFoundMessage = "Room not found"

type (
	// CodeGenerator produces candidate room codes. The registry retries
	// generation until the code is not already registered.
	CodeGenerator interface {
		Next() string
	}

	// Groups is the transport-level group membership surface. Room codes
	// double as group ids.
	Groups interface {
		JoinGroup(connID, groupID string)
		LeaveGroup(connID, groupID string)
	}

	Room struct {
		Code         string
		HostID       string
		Participants map[string]struct{}
	}

	Registry struct {
		mx     sync.Mutex
		logger zerolog.Logger
		codes  CodeGenerator
		groups Groups
		rooms  map[string]*Room
	}

	Config struct {
		Logger *zerolog.Logger
		Codes  CodeGenerator
		Groups Groups
	}
)

func New(cfg Config) *Registry {
	return &Registry{
		logger: cfg.Logger.With().Str("component", "registry").Logger(),
		codes:  cfg.Codes,
		groups: cfg.Groups,
		rooms:  make(map[string]*Room),
	}
}

// CreateRoom registers a new room hosted by requester and returns the
// room-created emission. Code collisions are retried internally and
// never surface to the caller.
func (r *Registry) CreateRoom(requesterID string) []model.Emission {
	r.mx.Lock()
	defer r.mx.Unlock()

	var code string
	for {
		code = r.codes.Next()
		if _, exists := r.rooms[code]; !exists {
			break
		}
	}
	r.rooms[code] = &Room{
		Code:         code,
		HostID:       requesterID,
		Participants: map[string]struct{}{requesterID: {}},
	}
	r.groups.JoinGroup(requesterID, code)

	r.logger.Debug().
		Str("roomID", code).
		Str("userID", requesterID).
		Msg("room created")

	return []model.Emission{{
		To:      requesterID,
		Event:   model.EventRoomCreated,
		Payload: model.RoomPayload{RoomID: code},
	}}
}

// JoinRoom adds requester to the room behind code. An unknown code
// yields a single room-error emission to the requester and no state
// change.
func (r *Registry) JoinRoom(requesterID, code string) []model.Emission {
	r.mx.Lock()
	defer r.mx.Unlock()

	code = roomcode.Normalize(code)
	room, ok := r.rooms[code]
	if !ok {
		return []model.Emission{{
			To:      requesterID,
			Event:   model.EventRoomError,
			Payload: model.ErrorPayload{Message: roomNotFoundMessage},
		}}
	}

	room.Participants[requesterID] = struct{}{}
	r.groups.JoinGroup(requesterID, code)

	r.logger.Debug().
		Str("roomID", code).
		Str("userID", requesterID).
		Msg("user joined room")

	return []model.Emission{
		{
			To:      requesterID,
			Event:   model.EventRoomJoined,
			Payload: model.RoomPayload{RoomID: code},
		},
		{
			Group:   code,
			Event:   model.EventUserJoined,
			Payload: model.UserPayload{UserID: requesterID},
		},
	}
}

// LeaveRoom removes requester from the room behind code. Missing room
// or membership is a silent no-op.
func (r *Registry) LeaveRoom(requesterID, code string) []model.Emission {
	r.mx.Lock()
	defer r.mx.Unlock()

	return r.leave(requesterID, roomcode.Normalize(code))
}

// leave must be called with mx held.
func (r *Registry) leave(requesterID, code string) []model.Emission {
	room, ok := r.rooms[code]
	if !ok {
		return nil
	}
	if _, member := room.Participants[requesterID]; !member {
		return nil
	}

	delete(room.Participants, requesterID)
	r.groups.LeaveGroup(requesterID, code)

	if len(room.Participants) == 0 {
		delete(r.rooms, code)
		r.logger.Debug().Str("roomID", code).Msg("room deleted")
	}

	r.logger.Debug().
		Str("roomID", code).
		Str("userID", requesterID).
		Msg("user left room")

	return []model.Emission{{
		Group:   code,
		Event:   model.EventUserLeft,
		Payload: model.UserPayload{UserID: requesterID},
	}}
}

// RelayMessage broadcasts a room message to every member of the room
// group except the sender. Membership of the sender is not re-verified;
// an unknown code resolves to an empty group and the broadcast reaches
// no one.
func (r *Registry) RelayMessage(senderID, code, message, username string) []model.Emission {
	if username == "" {
		username = model.AnonymousName
	}
	return []model.Emission{{
		Group:   roomcode.Normalize(code),
		Exclude: senderID,
		Event:   model.EventRoomMessage,
		Payload: model.MessagePayload{
			Message:  message,
			Username: username,
			UserID:   senderID,
		},
	}}
}

// HandleDisconnect removes the connection from every room it belongs
// to, with the same broadcasts and teardown as an explicit leave.
func (r *Registry) HandleDisconnect(connID string) []model.Emission {
	r.mx.Lock()
	defer r.mx.Unlock()

	var ems []model.Emission
	for code, room := range r.rooms {
		if _, member := room.Participants[connID]; member {
			ems = append(ems, r.leave(connID, code)...)
		}
	}
	return ems
}

// Snapshot returns a summary of all live rooms for the stats API.
func (r *Registry) Snapshot() []model.RoomInfo {
	r.mx.Lock()
	defer r.mx.Unlock()

	infos := make([]model.RoomInfo, 0, len(r.rooms))
	for code, room := range r.rooms {
		infos = append(infos, model.RoomInfo{
			Code:         code,
			HostID:       room.HostID,
			Participants: len(room.Participants),
		})
	}
	return infos
}

// Room returns the room behind code, or nil. Exposed for tests and
// invariant checks.
func (r *Registry) Room(code string) *Room {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.rooms[roomcode.Normalize(code)]
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.rooms)
}
