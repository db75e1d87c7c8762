// Package _switch forwards outbound protocol frames to live
// connections. It owns the connection table and the broadcast groups
// that room codes map onto; senders never block on a dead endpoint
// longer than the forward timeout.
package _switch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimout = time.Second
)

var (
	ErrAlreadyConnected = errors.New("connection id is already registered")
)

type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	conns  map[string]model.Wire
	groups map[string]map[string]struct{}
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		conns:  make(map[string]model.Wire),
		groups: make(map[string]map[string]struct{}),
	}
}

// Connect registers the wire of a freshly accepted connection.
func (sw *Switch) Connect(connID string, wire model.Wire) error {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	if _, ok := sw.conns[connID]; ok {
		return ErrAlreadyConnected
	}
	sw.conns[connID] = wire

	sw.logger.Debug().Str("connID", connID).Msg("connection registered")
	return nil
}

// Disconnect drops the connection and removes it from every group it
// still belongs to.
func (sw *Switch) Disconnect(connID string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	delete(sw.conns, connID)
	for groupID, members := range sw.groups {
		delete(members, connID)
		if len(members) == 0 {
			delete(sw.groups, groupID)
		}
	}

	sw.logger.Debug().Str("connID", connID).Msg("connection deregistered")
}

func (sw *Switch) JoinGroup(connID, groupID string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	members, ok := sw.groups[groupID]
	if !ok {
		members = make(map[string]struct{})
		sw.groups[groupID] = members
	}
	members[connID] = struct{}{}
}

func (sw *Switch) LeaveGroup(connID, groupID string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	members, ok := sw.groups[groupID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(sw.groups, groupID)
	}
}

// Emit forwards one emission to its destination connection or group.
// Delivery is fire-and-forget.
func (sw *Switch) Emit(ctx context.Context, em model.Emission) {
	if em.Group != "" {
		sw.emitToGroup(ctx, em)
		return
	}
	sw.emitTo(ctx, em)
}

func (sw *Switch) emitTo(ctx context.Context, em model.Emission) {
	sw.mx.RLock()
	wire, ok := sw.conns[em.To]
	sw.mx.RUnlock()

	logger := sw.logger.With().
		Str("event", em.Event).
		Str("dst", em.To).Logger()

	if !ok {
		logger.Debug().Msg("cannot forward, dst not found")
		return
	}
	send(ctx, outFrame(em), wire.TX, &logger)
}

func (sw *Switch) emitToGroup(ctx context.Context, em model.Emission) {
	sw.mx.RLock()
	var wires []model.Wire
	for connID := range sw.groups[em.Group] {
		if connID == em.Exclude {
			continue
		}
		if wire, ok := sw.conns[connID]; ok {
			wires = append(wires, wire)
		}
	}
	sw.mx.RUnlock()

	logger := sw.logger.With().
		Str("event", em.Event).
		Str("group", em.Group).Logger()

	if len(wires) == 0 {
		logger.Debug().Msg("broadcast did not reach anyone")
		return
	}
	for _, wire := range wires {
		if canceled := send(ctx, outFrame(em), wire.TX, &logger); canceled {
			break
		}
	}
}

func outFrame(em model.Emission) model.OutboundFrame {
	return model.OutboundFrame{
		Event:   em.Event,
		Payload: em.Payload,
	}
}

func send(ctx context.Context, frame model.OutboundFrame, tx chan<- model.OutboundFrame, logger *zerolog.Logger) bool {
	var canceled bool
	tCh := time.NewTimer(defaultFwdTimout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		logger.Error().Msg("dead endpoint")
	case tx <- frame:
		logger.Debug().Msg("frame is forwarded")
	}
	tCh.Stop()
	return canceled
}

// GroupSize returns the member count of a group. Empty groups do not
// exist.
func (sw *Switch) GroupSize(groupID string) int {
	sw.mx.RLock()
	defer sw.mx.RUnlock()
	return len(sw.groups[groupID])
}
