package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bolasblack/multihack/internal/state"
	"github.com/bolasblack/multihack/internal/sync"
	"github.com/bolasblack/multihack/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current multihack status",
	Long:  `Display the relay configuration and the last room joined from this directory.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := getCwd()
	if err != nil {
		return err
	}
	return printStatus(os.Stdout, util.NewReadonlyOsEnv(), cwd)
}

// printStatus writes the status of the project in dir to w.
func printStatus(w io.Writer, env *util.Env, dir string) error {
	cfg, configPath, err := loadConfig(env, dir, "")
	if err != nil {
		return err
	}

	if exists, _ := afero.Exists(env.Fs, configPath); exists {
		fmt.Fprintf(w, "Config: %s\n", configPath)
	} else {
		fmt.Fprintln(w, "Config: none (run 'mhk init' to create one)")
	}

	relayKind := "private"
	if cfg.IsPublicRelay() {
		relayKind = fmt.Sprintf("public, at most %d files and %d bytes per project",
			sync.MaxPublicFiles, sync.MaxPublicSize)
	}
	fmt.Fprintf(w, "Relay:  %s (%s)\n", cfg.Hostname, relayKind)
	fmt.Fprintln(w, "")

	st, err := loadRequiredState(env, dir)
	if err != nil {
		fmt.Fprintln(w, "Peer: not created")
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Run 'mhk start' to join a room.")
		return nil
	}

	fmt.Fprintf(w, "State: %s\n", state.StateFilePath(dir))
	fmt.Fprintf(w, "Peer: %s\n", st.PeerID)
	if st.LastSession == nil {
		fmt.Fprintln(w, "Last room: none")
		return nil
	}
	fmt.Fprintf(w, "Last room: %s\n", st.LastSession.Room)
	fmt.Fprintf(w, "  Relay:   %s\n", st.LastSession.Hostname)
	fmt.Fprintf(w, "  Started: %s\n", st.LastSession.StartedAt.Format("2006-01-02 15:04:05"))
	if st.LastRoom(cfg.Hostname) == "" {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "The last room was on a different relay.")
	}
	return nil
}
