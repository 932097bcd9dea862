package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/bolasblack/multihack/internal/config"
	"github.com/bolasblack/multihack/internal/relay"
	"github.com/bolasblack/multihack/internal/util"
)

const relayShutdownTimeout = 5 * time.Second

var relayListen string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a relay server",
	Long: `Run a relay server that peers can join with 'mhk start --hostname'.

Settings come from the [relay] table of .mhk.toml. With relay.redis_addr set,
several relay instances share their rooms through Redis.`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().StringVarP(&relayListen, "listen", "l", "", "Address to listen on (overrides relay.listen)")
}

func runRelay(cmd *cobra.Command, args []string) error {
	cwd, err := getCwd()
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig(util.NewReadonlyOsEnv(), cwd, "")
	if err != nil {
		return err
	}
	if relayListen != "" {
		cfg.Relay.Listen = relayListen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, closeBackplane, err := relayOptions(ctx, cfg.Relay)
	if err != nil {
		return err
	}
	defer closeBackplane()

	srv := &http.Server{
		Addr:              cfg.Relay.Listen,
		Handler:           relay.NewServer(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	util.ProgressDone(os.Stderr, "Relay listening on %s\n", cfg.Relay.Listen)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	util.ProgressStep(os.Stderr, "Shutting down relay\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), relayShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down relay: %w", err)
	}
	return nil
}

// relayOptions maps the [relay] table onto relay.Options, connecting the
// Redis backplane when one is configured.
func relayOptions(ctx context.Context, cfg config.Relay) (relay.Options, func(), error) {
	opts := relay.Options{MaxMessageBytes: cfg.MaxMessageBytes}
	if cfg.RedisAddr == "" {
		return opts, func() {}, nil
	}

	backplane, err := relay.NewRedisBackplane(ctx, cfg.RedisAddr)
	if err != nil {
		return opts, nil, err
	}
	glog.Infof("relay: sharing rooms through redis at %s", cfg.RedisAddr)
	opts.Backplane = backplane
	return opts, func() {
		if err := backplane.Close(); err != nil {
			glog.Warningf("relay: closing redis: %v", err)
		}
	}, nil
}
