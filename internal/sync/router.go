package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"

	"github.com/bolasblack/multihack/internal/editor"
	"github.com/bolasblack/multihack/internal/project"
	"github.com/bolasblack/multihack/internal/protocol"
	"github.com/bolasblack/multihack/internal/util"
)

var errIgnoredPath = errors.New("path is not synchronized")

// Documents resolves editable buffers by absolute path.
// Open fails with an error wrapping os.ErrNotExist when the file is missing.
type Documents interface {
	Open(absPath string) (*editor.Buffer, error)
	Lookup(absPath string) (*editor.Buffer, bool)
	Adopt(absPath, text string) *editor.Buffer
	Save(buf *editor.Buffer) error
	Close(absPath string)
}

// Router applies messages received from the room. It lives for one session
// and runs on the Loop.
type Router struct {
	ctx          context.Context
	session      *Session
	project      *project.Project
	docs         Documents
	edits        *EditChannel
	active       *ActiveDocument
	pending      *PendingQueue
	materializer *Materializer
	provide      func(requesterID string)
	progress     io.Writer

	// trashed holds paths removed on behalf of a peer, so the local
	// deletion they cause is not sent back to the room.
	trashed map[string]struct{}
}

// Dispatch routes env to its handler.
func (r *Router) Dispatch(env protocol.Envelope) {
	if env.From == r.session.PeerID || !env.AddressedTo(r.session.PeerID) {
		return
	}

	switch env.Type {
	case protocol.TypeChange:
		var rec protocol.EditRecord
		if r.decode(env, &rec) {
			r.HandleChange(rec)
		}
	case protocol.TypeDeleteFile:
		var msg protocol.DeleteFile
		if r.decode(env, &msg) {
			r.HandleDeleteFile(msg)
		}
	case protocol.TypeProvideFile:
		var msg protocol.ProvideFile
		if r.decode(env, &msg) {
			r.HandleProvideFile(msg)
		}
	case protocol.TypeRequestProject:
		var msg protocol.RequestProject
		if r.decode(env, &msg) {
			r.HandleRequestProject(msg)
		}
	case protocol.TypeVoiceJoin, protocol.TypeVoiceLeave:
		glog.V(1).Infof("peer %s: %s", env.From, env.Type)
	default:
		glog.V(2).Infof("ignoring %s from %s", env.Type, env.From)
	}
}

// resolve maps a path named by a peer into the project. Paths outside the
// root or excluded from synchronization are rejected.
func (r *Router) resolve(rel string) (string, error) {
	abs, err := r.project.Abs(rel)
	if err != nil {
		return "", err
	}
	if r.project.Ignored(abs) {
		return "", fmt.Errorf("%s: %w", rel, errIgnoredPath)
	}
	return abs, nil
}

func (r *Router) decode(env protocol.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		glog.Warningf("dropping message from %s: %v", env.From, err)
		return false
	}
	return true
}

// HandleChange applies a remote edit, creating the target file first when it
// does not exist yet. Edits for a path being created are queued behind it.
func (r *Router) HandleChange(rec protocol.EditRecord) {
	abs, err := r.resolve(rec.FilePath)
	if err != nil {
		glog.Warningf("dropping edit: %v", err)
		return
	}

	if r.pending.Append(abs, rec) {
		return
	}

	if r.active.Buffer != nil && abs == filepath.Clean(r.active.Buffer.Path()) {
		if err := r.edits.ApplyRemote(r.active.Buffer, rec); err != nil {
			glog.Warningf("dropping edit for %s: %v", rec.FilePath, err)
			return
		}
		r.save(r.active.Buffer)
		return
	}

	err = r.apply(abs, rec)
	if err == nil {
		return
	}
	if !errors.Is(err, os.ErrNotExist) {
		glog.Warningf("dropping edit for %s: %v", rec.FilePath, err)
		return
	}

	r.pending.Start(abs, rec)
	r.materializer.Materialize(r.ctx, abs, func(err error) {
		r.drain(abs, err)
	})
}

// drain applies the backlog for abs in arrival order once it exists.
func (r *Router) drain(abs string, err error) {
	defer r.pending.Delete(abs)

	if err != nil {
		glog.Warningf("could not create %s, dropping %d edits: %v", abs, r.pending.Len(abs), err)
		return
	}
	for {
		rec, ok := r.pending.Pop(abs)
		if !ok {
			return
		}
		if err := r.apply(abs, rec); err != nil {
			glog.Warningf("dropping edit for %s: %v", abs, err)
		}
	}
}

func (r *Router) apply(abs string, rec protocol.EditRecord) error {
	buf, err := r.docs.Open(abs)
	if err != nil {
		return err
	}
	if err := r.edits.ApplyRemote(buf, rec); err != nil {
		return fmt.Errorf("failed to apply edit: %w", err)
	}
	return r.docs.Save(buf)
}

func (r *Router) save(buf *editor.Buffer) {
	if err := r.docs.Save(buf); err != nil {
		glog.Warningf("%v", err)
	}
}

// HandleDeleteFile moves the named path to the trash if it exists here.
func (r *Router) HandleDeleteFile(msg protocol.DeleteFile) {
	abs, err := r.resolve(msg.FilePath)
	if err != nil {
		glog.Warningf("ignoring delete: %v", err)
		return
	}
	if _, err := r.project.Resolve(abs); err != nil {
		return
	}
	if err := r.project.MoveToTrash(abs); err != nil {
		glog.Warningf("%v", err)
		return
	}
	if r.active.Buffer != nil && within(filepath.Clean(r.active.Buffer.Path()), abs) {
		r.edits.Release(r.active.Buffer)
		r.docs.Close(r.active.Buffer.Path())
		*r.active = ActiveDocument{}
	}
	r.docs.Close(abs)
	r.trashed[abs] = struct{}{}
	r.project.Refresh()
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

// consumeTrashed reports whether abs was removed by HandleDeleteFile and
// forgets it.
func (r *Router) consumeTrashed(abs string) bool {
	if _, ok := r.trashed[abs]; ok {
		delete(r.trashed, abs)
		return true
	}
	return false
}

// HandleProvideFile materializes a file sent by a peer answering our
// project request and fills in its content.
func (r *Router) HandleProvideFile(msg protocol.ProvideFile) {
	if msg.RequesterID != r.session.PeerID {
		return
	}
	abs, err := r.resolve(msg.FilePath)
	if err != nil {
		glog.Warningf("ignoring provided file: %v", err)
		return
	}

	r.materializer.Materialize(r.ctx, abs, func(err error) {
		if err != nil {
			glog.Warningf("could not create %s: %v", abs, err)
			return
		}
		if err := r.fill(abs, msg.Content); err != nil {
			glog.Warningf("%v", err)
			return
		}
		util.ProgressStep(r.progress, "received %d of %d: %s\n", msg.Index+1, msg.Total, msg.FilePath)
		glog.V(1).Infof("received %d of %d", msg.Index+1, msg.Total)
	})
}

func (r *Router) fill(abs, content string) error {
	buf, err := r.docs.Open(abs)
	if err != nil {
		return err
	}
	if err := r.edits.ReplaceRemote(buf, content); err != nil {
		return fmt.Errorf("failed to update %s: %w", abs, err)
	}
	return r.docs.Save(buf)
}

// HandleRequestProject starts streaming the project to the requester.
func (r *Router) HandleRequestProject(msg protocol.RequestProject) {
	if msg.RequesterID == "" || msg.RequesterID == r.session.PeerID {
		return
	}
	r.provide(msg.RequesterID)
}
