package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bolasblack/multihack/internal/editor"
	"github.com/bolasblack/multihack/internal/state"
	"github.com/bolasblack/multihack/internal/sync"
	"github.com/bolasblack/multihack/internal/transport"
	"github.com/bolasblack/multihack/internal/util"
)

type startOptions struct {
	room     string
	hostname string
	open     string
	sync     bool
}

var startOpts startOptions

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Join a room and sync the current directory",
	Long: `Join a room on the relay and keep the current directory in sync with
the other peers until interrupted.

While running, type 'help' for session commands (sync, call, hangup, open,
status, quit).`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	bindStartFlags(startCmd.Flags(), &startOpts)
}

func bindStartFlags(fs *pflag.FlagSet, opts *startOptions) {
	fs.StringVarP(&opts.room, "room", "r", "", "Room to join (prompted for when omitted)")
	fs.StringVar(&opts.hostname, "hostname", "", "Relay server (overrides the config file)")
	fs.StringVarP(&opts.open, "open", "o", "", "File to focus after joining")
	fs.BoolVar(&opts.sync, "sync", false, "Ask the room for the project after joining")
}

func runStart(cmd *cobra.Command, args []string) error {
	cwd, err := getCwd()
	if err != nil {
		return err
	}

	env := util.NewOsEnv()
	cfg, _, err := loadConfig(env, cwd, startOpts.hostname)
	if err != nil {
		return err
	}

	st, isNew, err := state.LoadOrCreate(env, cwd)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if isNew {
		glog.Infof("created peer id %s", st.PeerID)
	}

	ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// The loop outlives ctx so the session can still be stopped cleanly.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loop := sync.NewLoop()
	go loop.Run(loopCtx)

	proj := newProject(env, cwd, cfg)
	ctrl := sync.NewController(loop,
		transport.WebsocketDialer{},
		editor.NewDocuments(env.Fs),
		sync.Options{
			Hostname:        cfg.Hostname,
			PeerID:          st.PeerID,
			Limited:         cfg.IsPublicRelay(),
			ReadConcurrency: cfg.ReadConcurrency,
		},
		sync.WithAlerter(sync.BannerAlerter{W: os.Stderr}),
		sync.WithProgress(os.Stderr),
	)
	defer func() {
		_ = ctrl.Stop()
		ctrl.Wait()
	}()

	if err := ctrl.ProjectOpened(proj); err != nil {
		return fmt.Errorf("failed to open project: %w", err)
	}

	util.ProgressStep(os.Stderr, "Connecting to %s\n", cfg.Hostname)
	prompt := roomPrompt(startOpts.room, st.LastRoom(cfg.Hostname), isInteractive())
	if err := ctrl.Start(ctx, prompt); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	status, err := ctrl.State()
	if err != nil {
		return err
	}
	util.ProgressDone(os.Stderr, "Joined room %s as %s\n", status.Room, st.PeerID)

	st.RecordSession(status.Room, cfg.Hostname, time.Now())
	if err := state.Save(env, cwd, st); err != nil {
		util.ProgressWarn(os.Stderr, "could not save state: %v\n", err)
	}

	stopWatch, err := sync.WatchProject(ctx, proj, ctrl)
	if err != nil {
		return fmt.Errorf("failed to watch project: %w", err)
	}
	defer stopWatch()

	if startOpts.open != "" {
		if err := ctrl.FocusDocument(resolveOpenPath(cwd, startOpts.open)); err != nil {
			util.ProgressWarn(os.Stderr, "could not open %s: %v\n", startOpts.open, err)
		}
	}
	if startOpts.sync {
		if err := ctrl.ForceSync(); err != nil {
			util.ProgressWarn(os.Stderr, "could not request project: %v\n", err)
		}
	}

	if isInteractive() {
		runConsole(ctx, os.Stdin, os.Stderr, cwd, ctrl)
	} else {
		<-ctx.Done()
	}

	util.ProgressStep(os.Stderr, "Leaving room %s\n", status.Room)
	return nil
}
