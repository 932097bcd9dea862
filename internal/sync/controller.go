package sync

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/golang/glog"

	"github.com/bolasblack/multihack/internal/editor"
	"github.com/bolasblack/multihack/internal/project"
	"github.com/bolasblack/multihack/internal/protocol"
	"github.com/bolasblack/multihack/internal/transport"
)

var (
	// ErrNoProject is returned by Start before a project has been opened.
	ErrNoProject = errors.New("no project is open")
	// ErrLoopClosed is returned when the controller's loop has shut down.
	ErrLoopClosed = errors.New("controller loop is closed")
)

// RoomPrompt asks the user which room to join, offering suggested as the
// default. An empty answer aborts Start.
type RoomPrompt func(ctx context.Context, suggested string) (string, error)

// Options configures a Controller.
type Options struct {
	Hostname string
	PeerID   string
	// Limited enables the public relay budgets for outgoing snapshots.
	Limited         bool
	ReadConcurrency int
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithAlerter sets where budget violations are reported.
func WithAlerter(a Alerter) ControllerOption {
	return func(c *Controller) { c.alerter = a }
}

// WithProgress sets where snapshot progress is written.
func WithProgress(w io.Writer) ControllerOption {
	return func(c *Controller) { c.progress = w }
}

// routedTypes are the message types a session subscribes to.
var routedTypes = []protocol.MessageType{
	protocol.TypeChange,
	protocol.TypeDeleteFile,
	protocol.TypeProvideFile,
	protocol.TypeRequestProject,
	protocol.TypeVoiceJoin,
	protocol.TypeVoiceLeave,
}

// Controller owns the session lifecycle. Its exported methods may be called
// from any goroutine; all state changes run on the Loop.
type Controller struct {
	loop     *Loop
	dialer   transport.Dialer
	docs     Documents
	opts     Options
	alerter  Alerter
	progress io.Writer

	// Loop-confined.
	project *project.Project
	edits   *EditChannel
	active  ActiveDocument
	phase   Phase
	session *Session
	binding transport.Binding
	router  *Router
	cancel  context.CancelFunc

	snapshots sync.WaitGroup
}

// NewController creates a stopped controller. Call ProjectOpened before Start.
func NewController(loop *Loop, dialer transport.Dialer, docs Documents, opts Options, options ...ControllerOption) *Controller {
	c := &Controller{
		loop:   loop,
		dialer: dialer,
		docs:   docs,
		opts:   opts,
	}
	for _, o := range options {
		o(c)
	}
	c.edits = NewEditChannel(c.currentSession, &c.active, nil, c.emit)
	return c
}

func (c *Controller) currentSession() *Session {
	return c.session
}

func (c *Controller) do(fn func()) error {
	if !c.loop.Do(fn) {
		return ErrLoopClosed
	}
	return nil
}

func (c *Controller) doErr(fn func() error) error {
	var err error
	if lerr := c.do(func() { err = fn() }); lerr != nil {
		return lerr
	}
	return err
}

// Start joins a room. Any running session is stopped first, so at most one
// binding and one set of handlers exist at a time.
func (c *Controller) Start(ctx context.Context, prompt RoomPrompt) error {
	var noProject bool
	if err := c.do(func() {
		c.stop()
		noProject = c.project == nil
		if !noProject {
			c.phase = PhaseAwaitingRoom
		}
	}); err != nil {
		return err
	}
	if noProject {
		return ErrNoProject
	}

	room, err := prompt(ctx, RandomRoomID())
	if err == nil {
		room = strings.TrimSpace(room)
		if room == "" {
			err = ErrEmptyRoom
		}
	}
	var binding transport.Binding
	if err == nil {
		binding, err = c.dialer.Dial(ctx, c.opts.Hostname, room, c.opts.PeerID)
		if err != nil {
			err = fmt.Errorf("failed to join room %s: %w", room, err)
		}
	}
	if err != nil {
		_ = c.do(func() {
			if c.phase == PhaseAwaitingRoom {
				c.phase = PhaseStopped
			}
		})
		return err
	}

	if err := c.do(func() {
		c.stop()
		c.activate(room, binding)
	}); err != nil {
		_ = binding.Close()
		return err
	}
	return nil
}

func (c *Controller) activate(room string, binding transport.Binding) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Room:     room,
		Hostname: c.opts.Hostname,
		PeerID:   c.opts.PeerID,
		active:   true,
	}

	c.session = s
	c.binding = binding
	c.cancel = cancel
	c.phase = PhaseActive
	c.router = &Router{
		ctx:          ctx,
		session:      s,
		project:      c.project,
		docs:         c.docs,
		edits:        c.edits,
		active:       &c.active,
		pending:      NewPendingQueue(),
		materializer: NewMaterializer(c.project, c.loop.Post),
		provide:      c.provideProject,
		progress:     c.progress,
		trashed:      make(map[string]struct{}),
	}

	for _, typ := range routedTypes {
		binding.On(typ, c.receive(binding))
	}
	glog.Infof("joined room %s as %s", room, s.PeerID)
}

// receive moves envelopes from the binding onto the loop. Envelopes from a
// binding that has since been replaced are dropped.
func (c *Controller) receive(b transport.Binding) transport.Handler {
	return func(env protocol.Envelope) {
		c.loop.Post(func() {
			if c.binding != b || c.router == nil {
				return
			}
			c.router.Dispatch(env)
		})
	}
}

// Stop leaves the room. In-flight materializations and snapshots are cancelled.
func (c *Controller) Stop() error {
	return c.do(c.stop)
}

func (c *Controller) stop() {
	if c.binding != nil {
		if err := c.binding.Close(); err != nil {
			glog.Warningf("failed to leave room: %v", err)
		}
		glog.Infof("left room %s", c.session.Room)
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.session != nil {
		c.session.active = false
		c.session.inCall = false
	}
	c.binding = nil
	c.cancel = nil
	c.session = nil
	c.router = nil
	c.phase = PhaseStopped
}

// Wait blocks until every snapshot stream started by this controller ends.
func (c *Controller) Wait() {
	c.snapshots.Wait()
}

// ProjectOpened switches to proj. A running session is stopped and every
// project file is loaded so later disk changes can be diffed.
func (c *Controller) ProjectOpened(proj *project.Project) error {
	return c.doErr(func() error {
		c.stop()
		c.edits.ReleaseAll()
		c.active = ActiveDocument{}
		c.project = proj
		c.edits.project = proj

		files, err := proj.AllFiles()
		if err != nil {
			return fmt.Errorf("failed to load project %s: %w", proj.Root(), err)
		}
		for _, f := range files {
			if _, err := c.docs.Open(f.Path); err != nil {
				glog.Warningf("%v", err)
			}
		}
		glog.V(1).Infof("opened project %s with %d files", proj.Root(), len(files))
		return nil
	})
}

// FocusDocument makes absPath the active document. Its local changes are
// forwarded while a session is active.
func (c *Controller) FocusDocument(absPath string) error {
	return c.doErr(func() error {
		buf, err := c.docs.Open(absPath)
		if err != nil {
			return err
		}
		c.focus(buf)
		return nil
	})
}

func (c *Controller) focus(buf *editor.Buffer) {
	if c.active.Buffer == buf {
		return
	}
	if c.active.Buffer != nil {
		c.edits.Release(c.active.Buffer)
	}
	rel := ""
	if c.project != nil {
		rel, _ = c.project.Rel(buf.Path())
	}
	c.active = ActiveDocument{RelPath: rel, Buffer: buf}
	c.edits.Capture(buf)
}

// LocalFileChanged reconciles the open buffer of absPath with its content on
// disk and focuses it, so the difference is forwarded as edits. A file with
// no buffer yet is treated as new and its whole content is forwarded.
func (c *Controller) LocalFileChanged(absPath string) {
	c.loop.Post(func() {
		abs, ok := c.projectPath(absPath)
		if !ok {
			return
		}
		info, err := c.project.Resolve(abs)
		if err != nil || info.IsDir() {
			return
		}
		data, err := c.project.ReadFile(abs)
		if err != nil {
			glog.Warningf("%v", err)
			return
		}
		if !utf8.Valid(data) {
			glog.V(1).Infof("not forwarding %s: %v", abs, ErrBinaryFile)
			return
		}

		buf, ok := c.docs.Lookup(abs)
		if !ok {
			buf = c.docs.Adopt(abs, "")
		}
		if buf.Text() == string(data) {
			return
		}
		c.focus(buf)
		if err := buf.SetText(string(data)); err != nil {
			glog.Warningf("failed to update %s: %v", abs, err)
		}
	})
}

// LocalPathDeleted forwards the deletion of absPath to the room.
func (c *Controller) LocalPathDeleted(absPath string) error {
	return c.doErr(func() error {
		abs, ok := c.projectPath(strings.TrimSuffix(absPath, "/"))
		if !ok {
			return nil
		}
		if c.active.Buffer != nil && within(filepath.Clean(c.active.Buffer.Path()), abs) {
			c.edits.Release(c.active.Buffer)
			c.docs.Close(c.active.Buffer.Path())
			c.active = ActiveDocument{}
		}
		c.docs.Close(abs)
		if !c.session.Active() || c.router.consumeTrashed(abs) {
			return nil
		}
		rel, _ := c.project.Rel(abs)
		return c.send(protocol.TypeDeleteFile, "", protocol.DeleteFile{FilePath: rel})
	})
}

func (c *Controller) projectPath(absPath string) (string, bool) {
	if c.project == nil {
		return "", false
	}
	abs := filepath.Clean(absPath)
	if _, ok := c.project.Rel(abs); !ok || c.project.Ignored(abs) {
		return "", false
	}
	return abs, true
}

// ForceSync asks the room to send us the whole project.
func (c *Controller) ForceSync() error {
	return c.doErr(func() error {
		return c.send(protocol.TypeRequestProject, "", protocol.RequestProject{RequesterID: c.opts.PeerID})
	})
}

// JoinCall announces that we joined the voice call.
func (c *Controller) JoinCall() error {
	return c.doErr(func() error {
		if err := c.send(protocol.TypeVoiceJoin, "", protocol.Voice{PeerID: c.opts.PeerID}); err != nil {
			return err
		}
		c.session.inCall = true
		return nil
	})
}

// LeaveCall announces that we left the voice call.
func (c *Controller) LeaveCall() error {
	return c.doErr(func() error {
		if !c.session.InCall() {
			return nil
		}
		if err := c.send(protocol.TypeVoiceLeave, "", protocol.Voice{PeerID: c.opts.PeerID}); err != nil {
			return err
		}
		c.session.inCall = false
		return nil
	})
}

func (c *Controller) emit(rec protocol.EditRecord) {
	if err := c.send(protocol.TypeChange, "", rec); err != nil {
		glog.Warningf("failed to send edit for %s: %v", rec.FilePath, err)
	}
}

func (c *Controller) send(typ protocol.MessageType, to string, payload any) error {
	if c.binding == nil || !c.session.Active() {
		return ErrNotActive
	}
	env, err := protocol.NewEnvelope(typ, c.opts.PeerID, to, payload)
	if err != nil {
		return err
	}
	return c.binding.Send(c.router.ctx, env)
}

// provideProject streams the project to requesterID in the background.
func (c *Controller) provideProject(requesterID string) {
	ctx := c.router.ctx
	provider := &SnapshotProvider{
		Project:         c.project,
		PeerID:          c.opts.PeerID,
		Send:            c.binding.Send,
		Alert:           c.alerter,
		Limited:         c.opts.Limited,
		ReadConcurrency: c.opts.ReadConcurrency,
		Progress:        c.progress,
	}

	c.snapshots.Add(1)
	go func() {
		defer c.snapshots.Done()
		res, err := provider.Provide(ctx, requesterID)
		if err != nil {
			glog.Warningf("snapshot for %s stopped after %d of %d files: %v", requesterID, res.Sent, res.Total, err)
			return
		}
		glog.Infof("sent %d files to %s", res.Sent, requesterID)
	}()
}

// Status is a point-in-time view of the controller.
type Status struct {
	Phase      Phase
	Room       string
	Hostname   string
	PeerID     string
	InCall     bool
	ActivePath string
	Pending    []string
}

// State returns the current status.
func (c *Controller) State() (Status, error) {
	var st Status
	err := c.do(func() {
		st = Status{
			Phase:      c.phase,
			Hostname:   c.opts.Hostname,
			PeerID:     c.opts.PeerID,
			ActivePath: c.active.RelPath,
		}
		if c.session != nil {
			st.Room = c.session.Room
			st.InCall = c.session.inCall
		}
		if c.router != nil {
			st.Pending = c.router.pending.Paths()
		}
	})
	return st, err
}

const roomAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// RandomRoomID returns a 20 character base36 room id.
func RandomRoomID() string {
	var b strings.Builder
	base := big.NewInt(int64(len(roomAlphabet)))
	for i := 0; i < 20; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		b.WriteByte(roomAlphabet[n.Int64()])
	}
	return b.String()
}
