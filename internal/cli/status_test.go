package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/bolasblack/multihack/internal/state"
	"github.com/bolasblack/multihack/internal/util"
)

func TestPrintStatus(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		config       string
		state        *state.State
		wantContains []string
		wantMissing  []string
	}{
		{
			name: "fresh directory",
			wantContains: []string{
				"Config: none",
				"(public, at most 1000 files and 20000000 bytes per project)",
				"Peer: not created",
				"mhk start",
			},
		},
		{
			name:   "private relay with last session",
			config: `hostname = "http://localhost:8080"`,
			state: &state.State{
				PeerID:      "01PEER",
				LastSession: &state.SessionRecord{Room: "r1", Hostname: "http://localhost:8080", StartedAt: started},
			},
			wantContains: []string{
				"Config: /proj/.mhk.toml",
				"http://localhost:8080 (private)",
				"Peer: 01PEER",
				"Last room: r1",
				"Started: 2024-03-01 12:00:00",
			},
			wantMissing: []string{"different relay"},
		},
		{
			name:   "last session on another relay",
			config: `hostname = "http://other:8080"`,
			state: &state.State{
				PeerID:      "01PEER",
				LastSession: &state.SessionRecord{Room: "r1", Hostname: "http://localhost:8080", StartedAt: started},
			},
			wantContains: []string{"The last room was on a different relay."},
		},
		{
			name:         "no session yet",
			state:        &state.State{PeerID: "01PEER"},
			wantContains: []string{"Last room: none"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := util.NewTestEnv()
			if tt.config != "" {
				if err := afero.WriteFile(env.Fs, "/proj/.mhk.toml", []byte(tt.config), 0644); err != nil {
					t.Fatal(err)
				}
			}
			if tt.state != nil {
				if err := state.Save(env, "/proj", tt.state); err != nil {
					t.Fatal(err)
				}
			}

			var buf bytes.Buffer
			if err := printStatus(&buf, env, "/proj"); err != nil {
				t.Fatalf("printStatus: %v", err)
			}

			output := buf.String()
			for _, want := range tt.wantContains {
				if !strings.Contains(output, want) {
					t.Errorf("output missing %q\nfull output:\n%s", want, output)
				}
			}
			for _, missing := range tt.wantMissing {
				if strings.Contains(output, missing) {
					t.Errorf("output should not contain %q\nfull output:\n%s", missing, output)
				}
			}
		})
	}
}

func TestWriteInitConfig(t *testing.T) {
	env := util.NewTestEnv()
	if err := env.Fs.MkdirAll("/proj", 0755); err != nil {
		t.Fatal(err)
	}

	path, err := writeInitConfig(env, "/proj", "private")
	if err != nil {
		t.Fatalf("writeInitConfig: %v", err)
	}
	if path != "/proj/.mhk.toml" {
		t.Errorf("expected /proj/.mhk.toml, got %q", path)
	}

	cfg, _, err := loadConfig(env, "/proj", "")
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.IsPublicRelay() {
		t.Error("private template should not use the public relay")
	}

	if _, err := writeInitConfig(env, "/proj", "public"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected already exists error, got %v", err)
	}
}
