// Package project models the synchronized file tree rooted at one directory.
// All filesystem access goes through afero so callers can run against an
// in-memory tree in tests.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// StateDir holds per-project multihack state. It is never synchronized.
const StateDir = ".mhk"

// ErrOutsideProject is returned for paths that escape the project root.
var ErrOutsideProject = errors.New("path is outside the project")

// FileEntry is one regular file found while enumerating the project.
type FileEntry struct {
	Path string // absolute
	Size int64
}

// Project is the file tree the sync engine reads from and materializes into.
type Project struct {
	fs       afero.Fs
	root     string
	trashDir string
	ignore   []string
	refresh  func()

	mu      sync.Mutex
	created []string
}

// Option configures a Project.
type Option func(*Project)

// WithTrashDir sets where deleted entries are moved (default: <root>/.mhk/trash).
func WithTrashDir(dir string) Option {
	return func(p *Project) {
		if dir != "" {
			p.trashDir = filepath.Clean(dir)
		}
	}
}

// WithIgnore sets glob patterns (matched against relative paths and base
// names) that are skipped when enumerating files.
func WithIgnore(patterns []string) Option {
	return func(p *Project) {
		p.ignore = append(p.ignore, patterns...)
	}
}

// WithRefresh sets the callback invoked by Refresh.
func WithRefresh(fn func()) Option {
	return func(p *Project) {
		p.refresh = fn
	}
}

// New creates a Project rooted at root on fs.
func New(fs afero.Fs, root string, opts ...Option) *Project {
	root = filepath.Clean(root)
	p := &Project{
		fs:       fs,
		root:     root,
		trashDir: filepath.Join(root, StateDir, "trash"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Root returns the cleaned absolute project root.
func (p *Project) Root() string {
	return p.root
}

// Fs returns the underlying filesystem.
func (p *Project) Fs() afero.Fs {
	return p.fs
}

// IsWithin reports whether absPath lies strictly inside the project root.
func (p *Project) IsWithin(absPath string) bool {
	_, ok := p.Rel(absPath)
	return ok
}

// Rel returns absPath relative to the root using forward slashes.
// ok is false for the root itself and for anything outside it.
func (p *Project) Rel(absPath string) (rel string, ok bool) {
	if absPath == "" {
		return "", false
	}
	r, err := filepath.Rel(p.root, filepath.Clean(absPath))
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) || filepath.IsAbs(r) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// Abs resolves a project-relative path, rejecting anything that escapes the root.
func (p *Project) Abs(rel string) (string, error) {
	rel = strings.TrimSuffix(rel, "/")
	if rel == "" {
		return "", fmt.Errorf("empty path: %w", ErrOutsideProject)
	}
	abs := filepath.Join(p.root, filepath.FromSlash(rel))
	if !p.IsWithin(abs) {
		return "", fmt.Errorf("%s: %w", rel, ErrOutsideProject)
	}
	return abs, nil
}

// Resolve stats absPath. The error wraps os.ErrNotExist when it is missing.
func (p *Project) Resolve(absPath string) (os.FileInfo, error) {
	info, err := p.fs.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", absPath, err)
	}
	return info, nil
}

// Create makes a single directory or an empty file at absPath. It never
// creates parents and fails with an error wrapping os.ErrExist if the entry
// is already there.
func (p *Project) Create(absPath string, isDir bool) error {
	if !p.IsWithin(absPath) {
		return fmt.Errorf("%s: %w", absPath, ErrOutsideProject)
	}

	if isDir {
		if err := p.fs.Mkdir(absPath, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", absPath, err)
		}
	} else {
		f, err := p.fs.OpenFile(absPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return fmt.Errorf("failed to create file %s: %w", absPath, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close file %s: %w", absPath, err)
		}
	}

	p.mu.Lock()
	p.created = append(p.created, absPath)
	p.mu.Unlock()
	return nil
}

// Created returns every entry made through Create, in creation order.
func (p *Project) Created() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.created...)
}

// MoveToTrash moves absPath into the trash directory under a unique name.
func (p *Project) MoveToTrash(absPath string) error {
	if !p.IsWithin(absPath) {
		return fmt.Errorf("%s: %w", absPath, ErrOutsideProject)
	}
	if err := p.fs.MkdirAll(p.trashDir, 0o755); err != nil {
		return fmt.Errorf("failed to create trash dir: %w", err)
	}
	dest := filepath.Join(p.trashDir, uuid.NewString()+"-"+filepath.Base(absPath))
	if err := p.fs.Rename(absPath, dest); err != nil {
		return fmt.Errorf("failed to move %s to trash: %w", absPath, err)
	}
	return nil
}

// Refresh notifies the file view that the tree changed.
func (p *Project) Refresh() {
	if p.refresh != nil {
		p.refresh()
	}
}

// ReadFile reads a file inside the project.
func (p *Project) ReadFile(absPath string) ([]byte, error) {
	data, err := afero.ReadFile(p.fs, absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", absPath, err)
	}
	return data, nil
}

// Ignored reports whether a path is excluded from synchronization.
func (p *Project) Ignored(absPath string) bool {
	rel, ok := p.Rel(absPath)
	if !ok {
		return true
	}
	if rel == StateDir || strings.HasPrefix(rel, StateDir+"/") {
		return true
	}
	if trashRel, ok := p.Rel(p.trashDir); ok && (rel == trashRel || strings.HasPrefix(rel, trashRel+"/")) {
		return true
	}
	base := filepath.Base(absPath)
	for _, pattern := range p.ignore {
		if m, _ := filepath.Match(pattern, rel); m {
			return true
		}
		if m, _ := filepath.Match(pattern, base); m {
			return true
		}
	}
	return false
}

// AllFiles lists every regular, non-ignored file in the project, sorted by path.
func (p *Project) AllFiles() ([]FileEntry, error) {
	var files []FileEntry
	err := afero.Walk(p.fs, p.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == p.root {
			return nil
		}
		if p.Ignored(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() {
			files = append(files, FileEntry{Path: path, Size: info.Size()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list project files: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
