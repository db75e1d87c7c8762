// Package match pairs anonymous connections for 1:1 chat. Searchers
// wait in a FIFO queue until a second searcher arrives; matched
// connections are tracked as symmetric pairs until either side leaves
// or disconnects.
package match

import (
	"sync"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/rs/zerolog"
)

type Engine struct {
	mx     sync.Mutex
	logger zerolog.Logger
	queue  []string
	pairs  map[string]string
}

func NewEngine(logger *zerolog.Logger) *Engine {
	return &Engine{
		logger: logger.With().Str("component", "match").Logger(),
		pairs:  make(map[string]string),
	}
}

// FindRandom either matches the requester with the longest-waiting
// searcher or enqueues it. Re-calling while already queued is a no-op.
// A requester is never matched with itself.
func (e *Engine) FindRandom(requesterID string) []model.Emission {
	e.mx.Lock()
	defer e.mx.Unlock()

	if len(e.queue) > 0 && e.queue[0] != requesterID {
		partnerID := e.queue[0]
		e.queue = e.queue[1:]
		e.dequeue(requesterID)

		e.pairs[requesterID] = partnerID
		e.pairs[partnerID] = requesterID

		e.logger.Debug().
			Str("userID", requesterID).
			Str("partnerID", partnerID).
			Msg("pair matched")

		matched := model.MatchedPayload{Matched: true}
		return []model.Emission{
			{To: requesterID, Event: model.EventRandomMatched, Payload: matched},
			{To: partnerID, Event: model.EventRandomMatched, Payload: matched},
		}
	}

	if e.queued(requesterID) {
		return nil
	}
	e.queue = append(e.queue, requesterID)

	e.logger.Debug().Str("userID", requesterID).Msg("searcher enqueued")

	return []model.Emission{{
		To:      requesterID,
		Event:   model.EventWaitingForMatch,
		Payload: struct{}{},
	}}
}

// LeaveRandom tears down the requester's pair, notifying the partner,
// and strips the requester from the queue. Both checks always run.
func (e *Engine) LeaveRandom(requesterID string) []model.Emission {
	e.mx.Lock()
	defer e.mx.Unlock()

	var ems []model.Emission
	if partnerID, ok := e.pairs[requesterID]; ok {
		delete(e.pairs, requesterID)
		delete(e.pairs, partnerID)
		ems = append(ems, model.Emission{
			To:      partnerID,
			Event:   model.EventPartnerLeft,
			Payload: struct{}{},
		})

		e.logger.Debug().
			Str("userID", requesterID).
			Str("partnerID", partnerID).
			Msg("pair dissolved")
	}
	e.dequeue(requesterID)
	return ems
}

// RelayRandomMessage forwards a message to the sender's partner.
// Silent no-op while unmatched.
func (e *Engine) RelayRandomMessage(senderID, message, username string) []model.Emission {
	e.mx.Lock()
	defer e.mx.Unlock()

	partnerID, ok := e.pairs[senderID]
	if !ok {
		return nil
	}
	if username == "" {
		username = model.AnonymousName
	}
	return []model.Emission{{
		To:    partnerID,
		Event: model.EventRandomMessage,
		Payload: model.MessagePayload{
			Message:  message,
			Username: username,
			UserID:   senderID,
		},
	}}
}

// HandleDisconnect has the same combined effect as LeaveRandom.
func (e *Engine) HandleDisconnect(connID string) []model.Emission {
	return e.LeaveRandom(connID)
}

// dequeue must be called with mx held.
func (e *Engine) dequeue(connID string) {
	for i, id := range e.queue {
		if id == connID {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return
		}
	}
}

// queued must be called with mx held.
func (e *Engine) queued(connID string) bool {
	for _, id := range e.queue {
		if id == connID {
			return true
		}
	}
	return false
}

// QueueLength returns the number of waiting searchers.
func (e *Engine) QueueLength() int {
	e.mx.Lock()
	defer e.mx.Unlock()
	return len(e.queue)
}

// PairCount returns the number of entries in the pair map. Two per
// active pair.
func (e *Engine) PairCount() int {
	e.mx.Lock()
	defer e.mx.Unlock()
	return len(e.pairs)
}

// Partner returns the active partner of connID, if any.
func (e *Engine) Partner(connID string) (string, bool) {
	e.mx.Lock()
	defer e.mx.Unlock()
	partnerID, ok := e.pairs[connID]
	return partnerID, ok
}

// Queued reports whether connID is currently waiting for a match.
func (e *Engine) Queued(connID string) bool {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.queued(connID)
}
