package editor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// Documents opens buffers by absolute path and keeps them cached until closed.
type Documents struct {
	fs afero.Fs

	mu   sync.Mutex
	open map[string]*Buffer
}

// NewDocuments creates a document manager reading from and saving to fs.
func NewDocuments(fs afero.Fs) *Documents {
	return &Documents{
		fs:   fs,
		open: make(map[string]*Buffer),
	}
}

// Open returns the cached buffer for absPath, loading it from disk on first use.
// The returned error wraps os.ErrNotExist when the file does not exist.
func (d *Documents) Open(absPath string) (*Buffer, error) {
	absPath = filepath.Clean(absPath)

	d.mu.Lock()
	defer d.mu.Unlock()

	if buf, ok := d.open[absPath]; ok {
		return buf, nil
	}

	info, err := d.fs.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open document %s: %w", absPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("failed to open document %s: is a directory", absPath)
	}
	data, err := afero.ReadFile(d.fs, absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", absPath, err)
	}

	buf := NewBuffer(absPath, string(data))
	d.open[absPath] = buf
	return buf, nil
}

// Lookup returns the buffer for absPath only if it is already open.
func (d *Documents) Lookup(absPath string) (*Buffer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.open[filepath.Clean(absPath)]
	return buf, ok
}

// Adopt caches a buffer holding text for absPath without reading the disk.
// An already open buffer is returned unchanged.
func (d *Documents) Adopt(absPath, text string) *Buffer {
	absPath = filepath.Clean(absPath)

	d.mu.Lock()
	defer d.mu.Unlock()

	if buf, ok := d.open[absPath]; ok {
		return buf
	}
	buf := NewBuffer(absPath, text)
	d.open[absPath] = buf
	return buf
}

// Save writes the buffer content back to its path.
func (d *Documents) Save(buf *Buffer) error {
	info, err := d.fs.Stat(buf.Path())
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	if err := afero.WriteFile(d.fs, buf.Path(), []byte(buf.Text()), mode); err != nil {
		return fmt.Errorf("failed to save document %s: %w", buf.Path(), err)
	}
	return nil
}

// Close drops the cached buffer for absPath.
func (d *Documents) Close(absPath string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, filepath.Clean(absPath))
}
