// Package sync is the change-propagation engine: it forwards local edits to
// the room, applies remote edits (creating missing files first), and streams
// the project to peers that join late.
package sync

import (
	"errors"

	"github.com/bolasblack/multihack/internal/editor"
)

var (
	// ErrNotActive is returned by operations that need a live session.
	ErrNotActive = errors.New("no active session")
	// ErrEmptyRoom is returned when the room prompt yields an empty id.
	ErrEmptyRoom = errors.New("room id is empty")
)

// Phase is the lifecycle state of the controller.
type Phase int

const (
	PhaseStopped Phase = iota
	PhaseAwaitingRoom
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingRoom:
		return "awaiting-room"
	case PhaseActive:
		return "active"
	default:
		return "stopped"
	}
}

// Session is the state of one room membership. It is confined to the Loop.
type Session struct {
	Room     string
	Hostname string
	PeerID   string

	active   bool
	applying bool // echo suppression: a remote edit is being applied
	inCall   bool
}

// Active reports whether local edits should be forwarded.
func (s *Session) Active() bool {
	return s != nil && s.active
}

// Suppressed reports whether a remote edit is currently being applied.
func (s *Session) Suppressed() bool {
	return s != nil && s.applying
}

// InCall reports whether the voice call is joined.
func (s *Session) InCall() bool {
	return s != nil && s.inCall
}

// ActiveDocument is the focused document, used to fast-path edits to it.
type ActiveDocument struct {
	RelPath string // empty when unknown or outside the project
	Buffer  *editor.Buffer
}
