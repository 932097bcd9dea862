package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bolasblack/multihack/internal/project"
)

// ErrNotDirectory is returned when a path segment that must be a directory is a file.
var ErrNotDirectory = errors.New("not a directory")

// Materializer creates whatever directories and file are missing so a target
// path inside the project becomes resolvable.
type Materializer struct {
	project *project.Project
	// post runs the completion callback; production code posts onto the Loop.
	post func(func())
	// spawn runs the filesystem work; production code starts a goroutine.
	spawn func(func())
}

// NewMaterializer creates a materializer for proj whose completions are
// delivered through post.
func NewMaterializer(proj *project.Project, post func(func())) *Materializer {
	return &Materializer{
		project: proj,
		post:    post,
		spawn:   func(fn func()) { go fn() },
	}
}

// Materialize builds absPath and then calls onComplete exactly once, with nil
// once the leaf file exists (including when nothing had to be created).
func (m *Materializer) Materialize(ctx context.Context, absPath string, onComplete func(error)) {
	m.spawn(func() {
		err := m.Build(ctx, absPath)
		m.post(func() { onComplete(err) })
	})
}

// Build synchronously creates the missing segments of absPath, directories
// first and the leaf as a file. Existing segments are left untouched.
func (m *Materializer) Build(ctx context.Context, absPath string) error {
	rel, ok := m.project.Rel(absPath)
	if !ok {
		return fmt.Errorf("%s: %w", absPath, project.ErrOutsideProject)
	}

	segments := strings.Split(rel, "/")
	current := m.project.Root()
	for i, segment := range segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		current = filepath.Join(current, segment)
		if err := m.ensure(current, i < len(segments)-1); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) ensure(path string, isDir bool) error {
	info, err := m.project.Resolve(path)
	if err == nil {
		return checkKind(path, info, isDir)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := m.project.Create(path, isDir); err != nil {
		if !errors.Is(err, os.ErrExist) {
			return err
		}
		// Another materialization created it first.
		info, rerr := m.project.Resolve(path)
		if rerr != nil {
			return err
		}
		return checkKind(path, info, isDir)
	}
	return nil
}

func checkKind(path string, info os.FileInfo, isDir bool) error {
	switch {
	case isDir && !info.IsDir():
		return fmt.Errorf("%s: %w", path, ErrNotDirectory)
	case !isDir && info.IsDir():
		return fmt.Errorf("%s: is a directory", path)
	}
	return nil
}
