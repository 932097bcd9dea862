package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/bolasblack/multihack/internal/config"
	"github.com/bolasblack/multihack/internal/project"
	"github.com/bolasblack/multihack/internal/state"
	"github.com/bolasblack/multihack/internal/sync"
	"github.com/bolasblack/multihack/internal/util"
)

// Common error messages for CLI commands.
const (
	ErrMsgRoomRequired  = "no terminal to prompt on: pass --room"
	ErrMsgStateNotFound = "no state file found: run 'mhk start' first"
)

// getCwd returns the current working directory or an error.
func getCwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cwd, nil
}

// loadConfig loads .mhk.toml from dir, using defaults when it does not exist.
// A non-empty hostname overrides the configured relay.
func loadConfig(env *util.Env, dir, hostname string) (config.Config, string, error) {
	configPath := filepath.Join(dir, config.FileName)
	cfg, err := config.LoadOrDefault(env.Fs, configPath)
	if err != nil {
		return cfg, configPath, fmt.Errorf("failed to load config: %w", err)
	}
	if hostname != "" {
		cfg.Hostname = hostname
	}
	return cfg, configPath, nil
}

// loadRequiredState loads the state file and returns an error if not found.
func loadRequiredState(env *util.Env, dir string) (*state.State, error) {
	st, err := state.Load(env, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if st == nil {
		return nil, errors.New(ErrMsgStateNotFound)
	}
	return st, nil
}

// newProject opens dir as a project using the trash and ignore settings of cfg.
func newProject(env *util.Env, dir string, cfg config.Config) *project.Project {
	return project.New(env.Fs, dir,
		project.WithTrashDir(cfg.ResolveTrashDir(dir)),
		project.WithIgnore(cfg.Ignore),
	)
}

// isInteractive reports whether stdin is a terminal huh can prompt on.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// askRoom shows the room prompt with suggested pre-filled.
var askRoom = func(ctx context.Context, suggested string) (string, error) {
	room := suggested
	input := huh.NewInput().
		Title("Room").
		Description("Peers that enter the same room edit the same project.").
		Value(&room)
	err := huh.NewForm(huh.NewGroup(input)).RunWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("room prompt cancelled: %w", err)
	}
	return room, nil
}

// roomPrompt builds the prompt used by the controller. A room given on the
// command line is used as is; otherwise the user is asked, starting from the
// last room joined on this relay or a fresh random id.
func roomPrompt(flagRoom, lastRoom string, interactive bool) sync.RoomPrompt {
	return func(ctx context.Context, suggested string) (string, error) {
		if room := strings.TrimSpace(flagRoom); room != "" {
			return room, nil
		}
		if !interactive {
			return "", errors.New(ErrMsgRoomRequired)
		}
		if lastRoom != "" {
			suggested = lastRoom
		}
		return askRoom(ctx, suggested)
	}
}

// resolveOpenPath turns the --open argument into an absolute path under dir.
func resolveOpenPath(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}
