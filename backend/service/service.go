// Package service routes inbound connection events to the room
// registry and the random match engine, and forwards their emissions
// through the switch. All state-mutating handling is serialized: one
// event runs to completion, emissions included, before the next.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/rs/zerolog"
)

var (
	ErrConnect = errors.New("unable to connect")
)

type (
	RoomRegistry interface {
		CreateRoom(requesterID string) []model.Emission
		JoinRoom(requesterID, code string) []model.Emission
		LeaveRoom(requesterID, code string) []model.Emission
		RelayMessage(senderID, code, message, username string) []model.Emission
		HandleDisconnect(connID string) []model.Emission
		Snapshot() []model.RoomInfo
	}

	MatchEngine interface {
		FindRandom(requesterID string) []model.Emission
		LeaveRandom(requesterID string) []model.Emission
		RelayRandomMessage(senderID, message, username string) []model.Emission
		HandleDisconnect(connID string) []model.Emission
		QueueLength() int
		PairCount() int
	}

	Transport interface {
		Connect(connID string, wire model.Wire) error
		Disconnect(connID string)
		Emit(ctx context.Context, em model.Emission)
	}

	Service struct {
		mx     sync.Mutex
		logger zerolog.Logger
		rooms  RoomRegistry
		match  MatchEngine
		sw     Transport
	}

	Config struct {
		Logger       *zerolog.Logger
		RoomRegistry RoomRegistry
		MatchEngine  MatchEngine
		Switch       Transport
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		logger: cfg.Logger.With().Str("component", "relay").Logger(),
		rooms:  cfg.RoomRegistry,
		match:  cfg.MatchEngine,
		sw:     cfg.Switch,
	}
}

// CreateSession registers a freshly accepted connection and starts
// consuming its inbound frames until ctx is canceled.
func (svc *Service) CreateSession(ctx context.Context, connID string, wire model.Wire) error {
	if err := svc.sw.Connect(connID, wire); err != nil {
		return errors.Join(ErrConnect, err)
	}
	svc.logger.Debug().Str("connID", connID).Msg("session connected")

	go svc.consume(ctx, connID, wire.RX)
	return nil
}

// DeleteSession runs full cleanup for a closed connection: every room
// it belonged to and any random-chat state, each notified
// independently, then the connection itself is released.
func (svc *Service) DeleteSession(ctx context.Context, connID string) {
	svc.mx.Lock()
	ems := svc.rooms.HandleDisconnect(connID)
	ems = append(ems, svc.match.HandleDisconnect(connID)...)
	svc.emit(ctx, ems)
	svc.mx.Unlock()

	svc.sw.Disconnect(connID)
	svc.logger.Debug().Str("connID", connID).Msg("session deleted")
}

func (svc *Service) consume(ctx context.Context, connID string, rx <-chan model.InboundFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-rx:
			svc.HandleEvent(ctx, connID, frame)
		}
	}
}

// HandleEvent dispatches a single inbound frame. Malformed payloads
// and unknown events are dropped; the protocol trusts the client.
func (svc *Service) HandleEvent(ctx context.Context, connID string, frame model.InboundFrame) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	var ems []model.Emission
	switch frame.Event {
	case model.EventCreateRoom:
		ems = svc.rooms.CreateRoom(connID)

	case model.EventJoinRoom:
		var p model.RoomPayload
		if !svc.decode(connID, frame, &p) {
			return
		}
		ems = svc.rooms.JoinRoom(connID, p.RoomID)

	case model.EventLeaveRoom:
		var p model.RoomPayload
		if !svc.decode(connID, frame, &p) {
			return
		}
		ems = svc.rooms.LeaveRoom(connID, p.RoomID)

	case model.EventRoomMessage:
		var p model.RoomMessagePayload
		if !svc.decode(connID, frame, &p) {
			return
		}
		ems = svc.rooms.RelayMessage(connID, p.RoomID, p.Message, p.Username)

	case model.EventFindRandom:
		ems = svc.match.FindRandom(connID)

	case model.EventLeaveRandom:
		ems = svc.match.LeaveRandom(connID)

	case model.EventRandomMessage:
		var p model.RandomMessagePayload
		if !svc.decode(connID, frame, &p) {
			return
		}
		ems = svc.match.RelayRandomMessage(connID, p.Message, p.Username)

	default:
		svc.logger.Debug().
			Str("connID", connID).
			Str("event", frame.Event).
			Msg("unknown event dropped")
		return
	}

	svc.emit(ctx, ems)
}

func (svc *Service) decode(connID string, frame model.InboundFrame, into any) bool {
	if err := json.Unmarshal(frame.Payload, into); err != nil {
		svc.logger.Debug().
			Err(err).
			Str("connID", connID).
			Str("event", frame.Event).
			Msg("malformed payload dropped")
		return false
	}
	return true
}

// emit must be called with mx held so notification order matches
// mutation order.
func (svc *Service) emit(ctx context.Context, ems []model.Emission) {
	for _, em := range ems {
		svc.sw.Emit(ctx, em)
	}
}

// Stats aggregates relay state for the API server.
func (svc *Service) Stats() model.Stats {
	rooms := svc.rooms.Snapshot()
	return model.Stats{
		Rooms:       rooms,
		RoomCount:   len(rooms),
		QueueLength: svc.match.QueueLength(),
		ActivePairs: svc.match.PairCount() / 2,
	}
}
