// Package state provides project state management for multihack.
// It maintains a local state file (.mhk/state.json) that keeps this
// machine's peer identity stable across sessions and remembers the last room.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"

	"github.com/bolasblack/multihack/internal/util"
)

const (
	// StateDir is the directory name for multihack state files.
	StateDir = ".mhk"
	// StateFilename is the name of the state file.
	StateFilename = "state.json"
	// CurrentVersion is the current state file version.
	CurrentVersion = "1"
)

// State represents the persistent state of a multihack project.
type State struct {
	// PeerID identifies this machine in rooms. It is a ULID, so ids sort by
	// creation time.
	PeerID string `json:"peer_id"`
	// Version is the state file format version.
	Version string `json:"version"`
	// CreatedAt is when the state was first created.
	CreatedAt time.Time `json:"created_at"`
	// LastSession is the most recently joined room, if any.
	LastSession *SessionRecord `json:"last_session,omitempty"`
}

// SessionRecord captures a joined room.
type SessionRecord struct {
	Room      string    `json:"room"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// NewPeerID returns a fresh peer identifier.
func NewPeerID() string {
	return ulid.Make().String()
}

// StateFilePath returns the path to the state file for the given project directory.
func StateFilePath(projectDir string) string {
	return filepath.Join(projectDir, StateDir, StateFilename)
}

// StateDirPath returns the path to the state directory for the given project directory.
func StateDirPath(projectDir string) string {
	return filepath.Join(projectDir, StateDir)
}

// Load reads the state file from the given project directory.
// Returns nil and no error if the state file does not exist.
func Load(env *util.Env, projectDir string) (*State, error) {
	path := StateFilePath(projectDir)

	data, err := afero.ReadFile(env.Fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	return &state, nil
}

// Save writes the state file to the given project directory.
// Creates the .mhk directory if it does not exist.
func Save(env *util.Env, projectDir string, state *State) error {
	dir := StateDirPath(projectDir)
	if err := env.Fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	path := StateFilePath(projectDir)
	if err := afero.WriteFile(env.Fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// LoadOrCreate loads the state file if it exists, or creates a new one with
// a fresh peer id. The boolean reports whether the state was created.
func LoadOrCreate(env *util.Env, projectDir string) (*State, bool, error) {
	state, err := Load(env, projectDir)
	if err != nil {
		return nil, false, err
	}

	if state != nil {
		if state.PeerID == "" {
			state.PeerID = NewPeerID()
			if err := Save(env, projectDir, state); err != nil {
				return nil, false, err
			}
		}
		return state, false, nil
	}

	state = &State{
		PeerID:    NewPeerID(),
		Version:   CurrentVersion,
		CreatedAt: time.Now(),
	}

	if err := Save(env, projectDir, state); err != nil {
		return nil, true, err
	}

	return state, true, nil
}

// Delete removes the state file (but not the .mhk directory).
func Delete(env *util.Env, projectDir string) error {
	path := StateFilePath(projectDir)
	err := env.Fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

// RecordSession remembers room as the last joined one.
func (s *State) RecordSession(room, hostname string, at time.Time) {
	s.LastSession = &SessionRecord{
		Room:      room,
		Hostname:  hostname,
		StartedAt: at,
	}
}

// LastRoom returns the last room joined on hostname, or "" if the last
// session used a different relay.
func (s *State) LastRoom(hostname string) string {
	if s == nil || s.LastSession == nil || s.LastSession.Hostname != hostname {
		return ""
	}
	return s.LastSession.Room
}
