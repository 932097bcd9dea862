package sync

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolasblack/multihack/internal/editor"
	"github.com/bolasblack/multihack/internal/project"
	"github.com/bolasblack/multihack/internal/protocol"
)

type routerFixture struct {
	fs        afero.Fs
	proj      *project.Project
	docs      *editor.Documents
	mat       *inlineMaterializer
	session   *Session
	active    *ActiveDocument
	router    *Router
	sent      []protocol.EditRecord
	requests  []string
	refreshed int
}

func newRouterFixture(t *testing.T, opts ...project.Option) *routerFixture {
	t.Helper()
	f := &routerFixture{
		session: &Session{Room: "r", PeerID: "me", active: true},
		active:  &ActiveDocument{},
	}
	opts = append(opts, project.WithRefresh(func() { f.refreshed++ }))
	f.proj, f.fs = newTestProject(t, opts...)
	f.docs = editor.NewDocuments(f.fs)
	f.mat = newInlineMaterializer(f.proj)
	edits := NewEditChannel(func() *Session { return f.session }, f.active, f.proj, func(rec protocol.EditRecord) {
		f.sent = append(f.sent, rec)
	})
	f.router = &Router{
		ctx:          context.Background(),
		session:      f.session,
		project:      f.proj,
		docs:         f.docs,
		edits:        edits,
		active:       f.active,
		pending:      NewPendingQueue(),
		materializer: f.mat.Materializer,
		provide:      func(id string) { f.requests = append(f.requests, id) },
		trashed:      make(map[string]struct{}),
	}
	return f
}

func (f *routerFixture) read(t *testing.T, path string) string {
	t.Helper()
	data, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	return string(data)
}

func insert(path, text string, line, ch int) protocol.EditRecord {
	return protocol.EditRecord{
		FilePath: path,
		Change:   protocol.Change{Text: text, From: pos(line, ch), To: pos(line, ch)},
	}
}

func envelope(t *testing.T, typ protocol.MessageType, from, to string, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, from, to, payload)
	require.NoError(t, err)
	return env
}

func TestRouter_ChangeToExistingFile(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "/proj/a.txt", []byte("ac"), 0o644))

	f.router.HandleChange(insert("a.txt", "b", 0, 1))

	assert.Equal(t, "abc", f.read(t, "/proj/a.txt"))
	assert.Empty(t, f.mat.queued)
	assert.Empty(t, f.router.pending.Paths())
}

func TestRouter_ChangeToActiveDocument(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "/proj/a.txt", []byte("ac"), 0o644))
	buf, err := f.docs.Open("/proj/a.txt")
	require.NoError(t, err)
	*f.active = ActiveDocument{RelPath: "a.txt", Buffer: buf}
	f.router.edits.Capture(buf)

	f.router.HandleChange(insert("a.txt", "b", 0, 1))

	assert.Equal(t, "abc", buf.Text())
	assert.Equal(t, "abc", f.read(t, "/proj/a.txt"))
	assert.Empty(t, f.sent, "applied edits must not be echoed")
}

func TestRouter_QueuesEditsWhileMaterializing(t *testing.T) {
	f := newRouterFixture(t)

	f.router.HandleChange(insert("a/b/c.txt", "one ", 0, 0))
	f.router.HandleChange(insert("a/b/c.txt", "two ", 0, 4))
	f.router.HandleChange(insert("a/b/c.txt", "three", 0, 8))

	assert.Len(t, f.mat.queued, 1, "only the first edit starts a materialization")
	assert.Equal(t, 3, f.router.pending.Len("/proj/a/b/c.txt"))

	f.mat.flush()

	assert.Equal(t, "one two three", f.read(t, "/proj/a/b/c.txt"))
	assert.Equal(t, []string{"/proj/a", "/proj/a/b", "/proj/a/b/c.txt"}, f.proj.Created())
	assert.False(t, f.router.pending.Has("/proj/a/b/c.txt"))
	assert.Empty(t, f.sent)
}

func TestRouter_EditsAfterDrainBypassQueue(t *testing.T) {
	f := newRouterFixture(t)

	f.router.HandleChange(insert("new.txt", "x", 0, 0))
	f.mat.flush()
	f.router.HandleChange(insert("new.txt", "y", 0, 1))

	assert.Empty(t, f.mat.queued)
	assert.Equal(t, "xy", f.read(t, "/proj/new.txt"))
}

func TestRouter_FailedApplyAfterMaterializeIsDropped(t *testing.T) {
	f := newRouterFixture(t)

	bad := protocol.EditRecord{FilePath: "n.txt", Change: protocol.Change{Text: "x", From: pos(0, 3), To: pos(0, 1)}}
	f.router.HandleChange(bad)
	f.router.HandleChange(insert("n.txt", "ok", 0, 0))
	f.mat.flush()

	assert.Equal(t, "ok", f.read(t, "/proj/n.txt"), "later edits still apply")
	assert.False(t, f.router.pending.Has("/proj/n.txt"))
}

func TestRouter_FailedMaterializeDropsBacklog(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "/proj/a", []byte("file"), 0o644))

	f.router.HandleChange(insert("a/b.txt", "x", 0, 0))
	f.router.HandleChange(insert("a/b.txt", "y", 0, 0))
	f.mat.flush()

	assert.False(t, f.router.pending.Has("/proj/a/b.txt"))
	assert.Equal(t, "file", f.read(t, "/proj/a"))
}

func TestRouter_ChangeOutsideProjectIsDropped(t *testing.T) {
	f := newRouterFixture(t)

	f.router.HandleChange(insert("../escape.txt", "x", 0, 0))

	assert.Empty(t, f.mat.queued)
	exists, err := afero.Exists(f.fs, "/escape.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRouter_DeleteFile(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "/proj/dir/gone.txt", []byte("x"), 0o644))
	buf, err := f.docs.Open("/proj/dir/gone.txt")
	require.NoError(t, err)
	*f.active = ActiveDocument{RelPath: "dir/gone.txt", Buffer: buf}

	f.router.HandleDeleteFile(protocol.DeleteFile{FilePath: "dir/gone.txt"})

	exists, err := afero.Exists(f.fs, "/proj/dir/gone.txt")
	require.NoError(t, err)
	assert.False(t, exists)
	_, open := f.docs.Lookup("/proj/dir/gone.txt")
	assert.False(t, open)
	assert.Nil(t, f.active.Buffer)
	assert.Equal(t, 1, f.refreshed)
	assert.True(t, f.router.consumeTrashed("/proj/dir/gone.txt"))
	assert.False(t, f.router.consumeTrashed("/proj/dir/gone.txt"))
}

func TestRouter_DeleteDirectoryReleasesActiveDocument(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, f.fs.MkdirAll("/proj/dir/sub", 0o755))
	require.NoError(t, afero.WriteFile(f.fs, "/proj/dir/sub/open.txt", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(f.fs, "/proj/dirty.txt", []byte("y"), 0o644))
	buf, err := f.docs.Open("/proj/dir/sub/open.txt")
	require.NoError(t, err)
	*f.active = ActiveDocument{RelPath: "dir/sub/open.txt", Buffer: buf}
	f.router.edits.Capture(buf)

	f.router.HandleDeleteFile(protocol.DeleteFile{FilePath: "dir"})

	assert.Nil(t, f.active.Buffer)
	_, open := f.docs.Lookup("/proj/dir/sub/open.txt")
	assert.False(t, open)

	require.NoError(t, buf.ReplaceRange("more", pos(0, 1), pos(0, 1)))
	assert.Empty(t, f.sent, "edits to a trashed document must not be sent")
}

func TestRouter_DeleteSiblingKeepsActiveDocument(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, f.fs.MkdirAll("/proj/dir", 0o755))
	require.NoError(t, afero.WriteFile(f.fs, "/proj/dirty.txt", []byte("y"), 0o644))
	buf, err := f.docs.Open("/proj/dirty.txt")
	require.NoError(t, err)
	*f.active = ActiveDocument{RelPath: "dirty.txt", Buffer: buf}

	f.router.HandleDeleteFile(protocol.DeleteFile{FilePath: "dir"})

	assert.Same(t, buf, f.active.Buffer)
}

func TestRouter_UnsynchronizedPathsAreDropped(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		isDir bool
	}{
		{name: "state file", path: ".mhk/state.json"},
		{name: "trash entry", path: ".mhk/trash/planted.txt"},
		{name: "state dir itself", path: ".mhk", isDir: true},
		{name: "ignored glob", path: "build/out.log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t, project.WithIgnore([]string{"*.log"}))
			abs := "/proj/" + tt.path
			if tt.isDir {
				require.NoError(t, f.fs.MkdirAll(abs, 0o755))
			} else {
				require.NoError(t, f.fs.MkdirAll(filepath.Dir(abs), 0o755))
				require.NoError(t, afero.WriteFile(f.fs, abs, []byte("mine"), 0o644))
			}

			f.router.HandleChange(insert(tt.path, "evil", 0, 0))
			f.router.HandleProvideFile(protocol.ProvideFile{FilePath: tt.path, Content: "evil", RequesterID: "me", Total: 1})
			f.mat.flush()

			assert.Empty(t, f.mat.queued)
			assert.Empty(t, f.router.pending.Paths())
			if !tt.isDir {
				assert.Equal(t, "mine", f.read(t, abs))
			}

			f.router.HandleDeleteFile(protocol.DeleteFile{FilePath: tt.path})

			exists, err := afero.Exists(f.fs, abs)
			require.NoError(t, err)
			assert.True(t, exists, "peers cannot trash unsynchronized paths")
			assert.Zero(t, f.refreshed)
		})
	}
}

func TestRouter_DeleteFileIgnoresMissingAndOutside(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "/other.txt", []byte("x"), 0o644))

	f.router.HandleDeleteFile(protocol.DeleteFile{FilePath: "missing.txt"})
	f.router.HandleDeleteFile(protocol.DeleteFile{FilePath: "../other.txt"})

	exists, err := afero.Exists(f.fs, "/other.txt")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Zero(t, f.refreshed)
}

func TestRouter_ProvideFile(t *testing.T) {
	f := newRouterFixture(t)

	f.router.HandleProvideFile(protocol.ProvideFile{
		FilePath: "lib/x.go", Content: "package lib\n", RequesterID: "me", Index: 0, Total: 1,
	})
	f.mat.flush()

	assert.Equal(t, "package lib\n", f.read(t, "/proj/lib/x.go"))
	buf, ok := f.docs.Lookup("/proj/lib/x.go")
	require.True(t, ok)
	assert.Equal(t, "package lib\n", buf.Text())
}

func TestRouter_ProvideFileOverwritesOpenBuffer(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "/proj/x.txt", []byte("old"), 0o644))
	buf, err := f.docs.Open("/proj/x.txt")
	require.NoError(t, err)
	*f.active = ActiveDocument{RelPath: "x.txt", Buffer: buf}
	f.router.edits.Capture(buf)

	f.router.HandleProvideFile(protocol.ProvideFile{FilePath: "x.txt", Content: "new", RequesterID: "me", Total: 1})
	f.mat.flush()

	assert.Equal(t, "new", buf.Text())
	assert.Equal(t, "new", f.read(t, "/proj/x.txt"))
	assert.Empty(t, f.sent)
}

func TestRouter_ProvideFileForAnotherPeerIsIgnored(t *testing.T) {
	f := newRouterFixture(t)

	f.router.HandleProvideFile(protocol.ProvideFile{FilePath: "x.txt", Content: "x", RequesterID: "someone-else"})

	assert.Empty(t, f.mat.queued)
}

func TestRouter_Dispatch(t *testing.T) {
	tests := []struct {
		name         string
		env          func(t *testing.T) protocol.Envelope
		wantRequests []string
		wantFile     string
	}{
		{
			name: "request project from a peer",
			env: func(t *testing.T) protocol.Envelope {
				return envelope(t, protocol.TypeRequestProject, "peer", "", protocol.RequestProject{RequesterID: "peer"})
			},
			wantRequests: []string{"peer"},
		},
		{
			name: "own request project is ignored",
			env: func(t *testing.T) protocol.Envelope {
				return envelope(t, protocol.TypeRequestProject, "peer", "", protocol.RequestProject{RequesterID: "me"})
			},
		},
		{
			name: "envelope from self is ignored",
			env: func(t *testing.T) protocol.Envelope {
				return envelope(t, protocol.TypeRequestProject, "me", "", protocol.RequestProject{RequesterID: "me"})
			},
		},
		{
			name: "envelope addressed to another peer is ignored",
			env: func(t *testing.T) protocol.Envelope {
				return envelope(t, protocol.TypeRequestProject, "peer", "third", protocol.RequestProject{RequesterID: "peer"})
			},
		},
		{
			name: "change is applied",
			env: func(t *testing.T) protocol.Envelope {
				return envelope(t, protocol.TypeChange, "peer", "", insert("d.txt", "z", 0, 0))
			},
			wantFile: "z",
		},
		{
			name: "malformed payload is dropped",
			env: func(t *testing.T) protocol.Envelope {
				return protocol.Envelope{Type: protocol.TypeChange, From: "peer", Payload: json.RawMessage(`{"filePath": 3}`)}
			},
		},
		{
			name: "voice messages are accepted",
			env: func(t *testing.T) protocol.Envelope {
				return envelope(t, protocol.TypeVoiceJoin, "peer", "", protocol.Voice{PeerID: "peer"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t)
			if tt.wantFile != "" {
				require.NoError(t, afero.WriteFile(f.fs, "/proj/d.txt", nil, 0o644))
			}

			f.router.Dispatch(tt.env(t))

			assert.Equal(t, tt.wantRequests, f.requests)
			if tt.wantFile != "" {
				assert.Equal(t, tt.wantFile, f.read(t, "/proj/d.txt"))
			}
		})
	}
}
