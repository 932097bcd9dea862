// Package transport connects a peer to a room. A Binding delivers every
// envelope published by the other peers of the room and publishes ours.
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/bolasblack/multihack/internal/protocol"
)

// ErrClosed is returned when sending on a closed binding.
var ErrClosed = errors.New("transport binding closed")

// Handler processes one incoming envelope. Handlers run on the binding's
// receive goroutine and must not block.
type Handler func(env protocol.Envelope)

// Binding is a live membership in one room.
type Binding interface {
	// On registers the handler for a message type, replacing any previous one.
	On(typ protocol.MessageType, h Handler)
	// Send publishes env to the room, or to env.To when it is set.
	Send(ctx context.Context, env protocol.Envelope) error
	// Close leaves the room. It is safe to call more than once.
	Close() error
}

// Dialer opens bindings.
type Dialer interface {
	Dial(ctx context.Context, hostname, room, peerID string) (Binding, error)
}

// handlerSet is the per-binding dispatch table shared by implementations.
type handlerSet struct {
	mu       sync.RWMutex
	handlers map[protocol.MessageType]Handler
}

func newHandlerSet() *handlerSet {
	return &handlerSet{handlers: make(map[protocol.MessageType]Handler)}
}

func (s *handlerSet) On(typ protocol.MessageType, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[typ] = h
}

func (s *handlerSet) dispatch(env protocol.Envelope) bool {
	s.mu.RLock()
	h, ok := s.handlers[env.Type]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	h(env)
	return true
}
