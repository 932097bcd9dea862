// Package protocol defines the messages exchanged between peers in a room.
// Every message travels inside an Envelope; the payload shape depends on Type.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the payload carried by an Envelope.
type MessageType string

const (
	TypeChange         MessageType = "change"
	TypeDeleteFile     MessageType = "deleteFile"
	TypeProvideFile    MessageType = "provideFile"
	TypeRequestProject MessageType = "requestProject"
	TypeVoiceJoin      MessageType = "voiceJoin"
	TypeVoiceLeave     MessageType = "voiceLeave"
)

// Position is a zero-based line/column location inside a text buffer.
// Ch counts runes from the start of the line.
type Position struct {
	Line int `json:"line"`
	Ch   int `json:"ch"`
}

// Before reports whether p sorts before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Ch < o.Ch
}

// Change replaces the range [From, To) with Text.
type Change struct {
	Text string   `json:"text"`
	From Position `json:"from"`
	To   Position `json:"to"`
}

// EditRecord is one atomic text replacement addressed by a project-relative path.
type EditRecord struct {
	FilePath string `json:"filePath"`
	Change   Change `json:"change"`
}

// DeleteFile announces that a project-relative path was removed.
type DeleteFile struct {
	FilePath string `json:"filePath"`
}

// ProvideFile carries one file of a project snapshot to a single requester.
type ProvideFile struct {
	FilePath    string `json:"filePath"`
	Content     string `json:"content"`
	RequesterID string `json:"requester"`
	Index       int    `json:"num"`
	Total       int    `json:"total"`
}

// RequestProject asks every other peer in the room to send its project.
type RequestProject struct {
	RequesterID string `json:"requester"`
}

// Voice is the payload of voiceJoin / voiceLeave passthrough messages.
type Voice struct {
	PeerID string `json:"peer"`
}

// Envelope is the wire frame. To is empty for room-wide fan-out.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Room    string          `json:"room,omitempty"`
	From    string          `json:"from"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope encodes payload into an Envelope of the given type.
func NewEnvelope(typ MessageType, from, to string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, From: from, To: to, Payload: data}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("empty %s payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// AddressedTo reports whether a peer should handle this envelope.
func (e Envelope) AddressedTo(peerID string) bool {
	return e.To == "" || e.To == peerID
}
