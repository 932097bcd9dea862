package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/bolasblack/multihack/internal/config"
	"github.com/bolasblack/multihack/internal/state"
	"github.com/bolasblack/multihack/internal/util"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		env := util.NewTestEnv()

		cfg, path, err := loadConfig(env, "/proj", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != "/proj/.mhk.toml" {
			t.Errorf("expected config path /proj/.mhk.toml, got %q", path)
		}
		if cfg.Hostname != config.DefaultHostname {
			t.Errorf("expected default hostname, got %q", cfg.Hostname)
		}
	})

	t.Run("hostname flag overrides config", func(t *testing.T) {
		env := util.NewTestEnv()
		_ = afero.WriteFile(env.Fs, "/proj/.mhk.toml", []byte(`hostname = "http://a:1"`), 0644)

		cfg, _, err := loadConfig(env, "/proj", "http://b:2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Hostname != "http://b:2" {
			t.Errorf("expected override, got %q", cfg.Hostname)
		}
	})

	t.Run("invalid file is an error", func(t *testing.T) {
		env := util.NewTestEnv()
		_ = afero.WriteFile(env.Fs, "/proj/.mhk.toml", []byte(`hostname =`), 0644)

		if _, _, err := loadConfig(env, "/proj", ""); err == nil {
			t.Error("expected error")
		}
	})
}

func TestLoadRequiredState(t *testing.T) {
	env := util.NewTestEnv()

	_, err := loadRequiredState(env, "/proj")
	if err == nil || err.Error() != ErrMsgStateNotFound {
		t.Errorf("expected %q, got %v", ErrMsgStateNotFound, err)
	}

	if err := state.Save(env, "/proj", &state.State{PeerID: "p"}); err != nil {
		t.Fatal(err)
	}
	st, err := loadRequiredState(env, "/proj")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.PeerID != "p" {
		t.Errorf("expected peer p, got %q", st.PeerID)
	}
}

func TestNewProject(t *testing.T) {
	env := util.NewTestEnv()
	cfg := config.DefaultConfig()
	cfg.Ignore = []string{"*.log"}
	cfg.TrashDir = ".trash"

	_ = afero.WriteFile(env.Fs, "/proj/a.txt", []byte("a"), 0644)
	_ = afero.WriteFile(env.Fs, "/proj/debug.log", []byte("x"), 0644)

	proj := newProject(env, "/proj", cfg)

	files, err := proj.AllFiles()
	if err != nil {
		t.Fatalf("AllFiles: %v", err)
	}
	if len(files) != 1 || files[0].Path != "/proj/a.txt" {
		t.Errorf("expected only a.txt, got %+v", files)
	}

	if err := proj.MoveToTrash("/proj/a.txt"); err != nil {
		t.Fatalf("MoveToTrash: %v", err)
	}
	entries, _ := afero.ReadDir(env.Fs, "/proj/.trash")
	if len(entries) != 1 {
		t.Errorf("expected one entry in configured trash dir, got %d", len(entries))
	}
}

func TestRoomPrompt(t *testing.T) {
	orig := askRoom
	defer func() { askRoom = orig }()

	var asked string
	askRoom = func(_ context.Context, suggested string) (string, error) {
		asked = suggested
		return "typed", nil
	}

	tests := []struct {
		name        string
		flagRoom    string
		lastRoom    string
		interactive bool
		wantRoom    string
		wantAsked   string
		wantErr     string
	}{
		{name: "flag wins", flagRoom: " given ", interactive: true, wantRoom: "given"},
		{name: "flag without terminal", flagRoom: "given", wantRoom: "given"},
		{name: "no terminal needs a flag", wantErr: ErrMsgRoomRequired},
		{name: "random suggestion", interactive: true, wantRoom: "typed", wantAsked: "random"},
		{name: "last room suggested", lastRoom: "old", interactive: true, wantRoom: "typed", wantAsked: "old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asked = ""
			room, err := roomPrompt(tt.flagRoom, tt.lastRoom, tt.interactive)(context.Background(), "random")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if room != tt.wantRoom {
				t.Errorf("expected room %q, got %q", tt.wantRoom, room)
			}
			if asked != tt.wantAsked {
				t.Errorf("expected prompt with %q, got %q", tt.wantAsked, asked)
			}
		})
	}
}

func TestRoomPrompt_Cancelled(t *testing.T) {
	orig := askRoom
	defer func() { askRoom = orig }()

	cancelled := errors.New("cancelled")
	askRoom = func(context.Context, string) (string, error) { return "", cancelled }

	_, err := roomPrompt("", "", true)(context.Background(), "x")
	if !errors.Is(err, cancelled) {
		t.Errorf("expected prompt error, got %v", err)
	}
}

func TestResolveOpenPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.txt", "/proj/a.txt"},
		{"src/../b.go", "/proj/b.go"},
		{"/elsewhere/c.txt", "/elsewhere/c.txt"},
	}
	for _, tt := range tests {
		if got := resolveOpenPath("/proj", tt.path); got != filepath.Clean(tt.want) {
			t.Errorf("resolveOpenPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
