package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/bolasblack/multihack/internal/project"
	"github.com/bolasblack/multihack/internal/protocol"
	"github.com/bolasblack/multihack/internal/util"
)

// Budgets enforced when the session runs against the shared public relay.
const (
	MaxPublicFiles = 1000
	MaxPublicSize  = 20_000_000

	defaultReadConcurrency = 8
)

var (
	ErrTooManyFiles    = errors.New("project has more than 1000 files, please use a private server")
	ErrProjectTooLarge = errors.New("project is over 20mb, please use a private server")
	// ErrBinaryFile marks content that is not valid UTF-8 and cannot be synchronized.
	ErrBinaryFile = errors.New("not a UTF-8 text file")
)

// SnapshotResult summarizes one Provide call.
type SnapshotResult struct {
	Total int   // files in the project
	Sent  int   // provideFile messages delivered
	Bytes int64 // content bytes accounted before the cutoff, if any
}

// SnapshotProvider streams every project file to a requesting peer.
type SnapshotProvider struct {
	Project *project.Project
	// PeerID is stamped as the sender of every provideFile message.
	PeerID string
	Send   func(ctx context.Context, env protocol.Envelope) error
	Alert  Alerter
	// Limited enables the public relay budgets.
	Limited         bool
	MaxFiles        int
	MaxSize         int64
	ReadConcurrency int
	Progress        io.Writer
}

// Provide sends the project to requesterID, shortest paths first.
//
// Reads run concurrently. Size accounting and sending happen one file at a
// time in completion order, so once the cumulative size passes the budget no
// further file is sent and the alert fires once.
func (p *SnapshotProvider) Provide(ctx context.Context, requesterID string) (SnapshotResult, error) {
	files, err := p.Project.AllFiles()
	if err != nil {
		return SnapshotResult{}, err
	}
	// AllFiles is path-sorted, so the stable sort breaks length ties by path.
	sort.SliceStable(files, func(i, j int) bool {
		return len(files[i].Path) < len(files[j].Path)
	})

	res := SnapshotResult{Total: len(files)}
	if p.Limited && len(files) > p.maxFiles() {
		p.alert(ErrTooManyFiles)
		return res, ErrTooManyFiles
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		oversized bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.readConcurrency())

	util.ProgressStep(p.Progress, "sending %d files to %s\n", len(files), requesterID)
	for i, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rel, ok := p.Project.Rel(f.Path)
			if !ok {
				glog.Warningf("snapshot: skipping %s: %v", f.Path, project.ErrOutsideProject)
				return nil
			}
			data, err := p.Project.ReadFile(f.Path)
			if err != nil {
				glog.Warningf("snapshot: skipping %s: %v", f.Path, err)
				return nil
			}
			// Content travels as a JSON string.
			if !utf8.Valid(data) {
				glog.Warningf("snapshot: skipping %s: %v", rel, ErrBinaryFile)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if oversized || gctx.Err() != nil {
				return nil
			}

			res.Bytes += int64(len(data))
			if p.Limited && res.Bytes > p.maxSize() {
				oversized = true
				cancel()
				p.alert(ErrProjectTooLarge)
				return nil
			}

			env, err := protocol.NewEnvelope(protocol.TypeProvideFile, p.PeerID, requesterID, protocol.ProvideFile{
				FilePath:    rel,
				Content:     string(data),
				RequesterID: requesterID,
				Index:       i,
				Total:       len(files),
			})
			if err != nil {
				return err
			}
			if err := p.Send(gctx, env); err != nil {
				return fmt.Errorf("failed to send %s: %w", rel, err)
			}
			res.Sent++
			glog.V(1).Infof("sent %d of %d: %s", i+1, len(files), rel)
			return nil
		})
	}

	err = g.Wait()
	if oversized {
		return res, ErrProjectTooLarge
	}
	if err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	util.ProgressDone(p.Progress, "sent %d files to %s\n", res.Sent, requesterID)
	return res, nil
}

func (p *SnapshotProvider) alert(err error) {
	if p.Alert != nil {
		p.Alert.Alert(err)
	}
}

func (p *SnapshotProvider) maxFiles() int {
	if p.MaxFiles > 0 {
		return p.MaxFiles
	}
	return MaxPublicFiles
}

func (p *SnapshotProvider) maxSize() int64 {
	if p.MaxSize > 0 {
		return p.MaxSize
	}
	return MaxPublicSize
}

func (p *SnapshotProvider) readConcurrency() int {
	if p.ReadConcurrency > 0 {
		return p.ReadConcurrency
	}
	return defaultReadConcurrency
}
