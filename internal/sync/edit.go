package sync

import (
	"github.com/bolasblack/multihack/internal/editor"
	"github.com/bolasblack/multihack/internal/project"
	"github.com/bolasblack/multihack/internal/protocol"
)

// EditChannel connects buffers to the session: it turns local buffer changes
// into EditRecords and applies remote ones without echoing them back.
type EditChannel struct {
	session func() *Session
	active  *ActiveDocument
	project *project.Project
	emit    func(protocol.EditRecord)

	offs map[*editor.Buffer]func()
}

// NewEditChannel creates an edit channel. session returns the live session
// (nil when stopped); emit receives every forwardable local edit.
func NewEditChannel(session func() *Session, active *ActiveDocument, proj *project.Project, emit func(protocol.EditRecord)) *EditChannel {
	return &EditChannel{
		session: session,
		active:  active,
		project: proj,
		emit:    emit,
		offs:    make(map[*editor.Buffer]func()),
	}
}

// Capture starts listening to local changes of buf.
func (c *EditChannel) Capture(buf *editor.Buffer) {
	if _, ok := c.offs[buf]; ok {
		return
	}
	c.offs[buf] = buf.OnChange(c.onLocalChange)
}

// Release stops listening to buf.
func (c *EditChannel) Release(buf *editor.Buffer) {
	if off, ok := c.offs[buf]; ok {
		off()
		delete(c.offs, buf)
	}
}

// ReleaseAll stops listening to every captured buffer.
func (c *EditChannel) ReleaseAll() {
	for buf := range c.offs {
		c.Release(buf)
	}
}

func (c *EditChannel) onLocalChange(change protocol.Change) {
	s := c.session()
	if !s.Active() || s.Suppressed() {
		return
	}
	rel := c.active.RelPath
	if rel == "" {
		if c.active.Buffer == nil || c.project == nil {
			return
		}
		r, ok := c.project.Rel(c.active.Buffer.Path())
		if !ok {
			return
		}
		c.active.RelPath = r
		rel = r
	}
	c.emit(protocol.EditRecord{FilePath: rel, Change: change})
}

// ApplyRemote performs rec on buf with echo suppression engaged for exactly
// the duration of the mutation.
func (c *EditChannel) ApplyRemote(buf *editor.Buffer, rec protocol.EditRecord) error {
	return c.suppressed(func() error {
		return buf.ReplaceRange(rec.Change.Text, rec.Change.From, rec.Change.To)
	})
}

// ReplaceRemote rewrites buf to text with echo suppression engaged.
func (c *EditChannel) ReplaceRemote(buf *editor.Buffer, text string) error {
	return c.suppressed(func() error {
		return buf.SetText(text)
	})
}

func (c *EditChannel) suppressed(fn func() error) error {
	s := c.session()
	if s == nil {
		return fn()
	}
	s.applying = true
	defer func() { s.applying = false }()
	return fn()
}
