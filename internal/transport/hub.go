package transport

import (
	"context"
	"sync"

	"github.com/bolasblack/multihack/internal/protocol"
)

// Hub is an in-process room server. Bindings dialed through the same Hub
// exchange envelopes directly, which makes it usable for tests and for
// several peers sharing one process.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*hubBinding]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*hubBinding]struct{})}
}

// Dial implements Dialer. The hostname is ignored.
func (h *Hub) Dial(_ context.Context, _ string, room, peerID string) (Binding, error) {
	b := &hubBinding{
		hub:        h,
		room:       room,
		peerID:     peerID,
		handlerSet: newHandlerSet(),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*hubBinding]struct{})
		h.rooms[room] = members
	}
	members[b] = struct{}{}
	return b, nil
}

// Members returns how many live bindings belong to peerID in room.
func (h *Hub) Members(room, peerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for b := range h.rooms[room] {
		if b.peerID == peerID {
			n++
		}
	}
	return n
}

func (h *Hub) publish(from *hubBinding, env protocol.Envelope) {
	h.mu.Lock()
	var targets []*hubBinding
	for b := range h.rooms[from.room] {
		if b == from || !env.AddressedTo(b.peerID) {
			continue
		}
		targets = append(targets, b)
	}
	h.mu.Unlock()

	for _, b := range targets {
		b.dispatch(env)
	}
}

func (h *Hub) leave(b *hubBinding) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[b.room]
	delete(members, b)
	if len(members) == 0 {
		delete(h.rooms, b.room)
	}
}

type hubBinding struct {
	*handlerSet
	hub    *Hub
	room   string
	peerID string

	mu     sync.Mutex
	closed bool
}

func (b *hubBinding) Send(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	env.Room = b.room
	env.From = b.peerID
	b.hub.publish(b, env)
	return nil
}

func (b *hubBinding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.hub.leave(b)
	return nil
}
