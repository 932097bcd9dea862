// Package editor provides the in-memory document model that the sync engine
// edits: text buffers addressed by absolute path, with change notifications.
package editor

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/bolasblack/multihack/internal/protocol"
)

// ChangeFunc receives every range-replace applied to a buffer.
type ChangeFunc func(change protocol.Change)

// Buffer is an editable text document.
// Listeners run synchronously on the goroutine that mutated the buffer,
// after the mutation is visible through Text.
type Buffer struct {
	path string

	mu        sync.Mutex
	text      []rune
	listeners map[int]ChangeFunc
	nextID    int
}

// NewBuffer creates a buffer for absPath holding text.
func NewBuffer(absPath, text string) *Buffer {
	return &Buffer{
		path:      absPath,
		text:      []rune(text),
		listeners: make(map[int]ChangeFunc),
	}
}

// Path returns the absolute path the buffer was opened from.
func (b *Buffer) Path() string {
	return b.path
}

// Text returns the current content.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.text)
}

// OnChange registers fn and returns a function that unregisters it.
func (b *Buffer) OnChange(fn ChangeFunc) (off func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// ReplaceRange replaces [from, to) with text and notifies listeners.
// Positions past the end of a line or of the buffer are clamped.
func (b *Buffer) ReplaceRange(text string, from, to protocol.Position) error {
	if to.Before(from) {
		return fmt.Errorf("invalid range %d:%d-%d:%d", from.Line, from.Ch, to.Line, to.Ch)
	}
	if from.Line < 0 || from.Ch < 0 {
		return fmt.Errorf("negative position %d:%d", from.Line, from.Ch)
	}

	b.mu.Lock()
	start := offsetOf(b.text, from)
	end := offsetOf(b.text, to)
	next := make([]rune, 0, len(b.text)-(end-start)+utf8.RuneCountInString(text))
	next = append(next, b.text[:start]...)
	next = append(next, []rune(text)...)
	next = append(next, b.text[end:]...)
	b.text = next
	fns := make([]ChangeFunc, 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	change := protocol.Change{Text: text, From: from, To: to}
	for _, fn := range fns {
		fn(change)
	}
	return nil
}

// SetText rewrites the buffer to text as a sequence of range-replaces, so
// listeners see the minimal edits rather than a full replacement.
func (b *Buffer) SetText(text string) error {
	current := b.Text()
	if current == text {
		return nil
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(current, text, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	offset := 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			offset += n
		case diffmatchpatch.DiffDelete:
			from, to := b.positionAt(offset), b.positionAt(offset+n)
			if err := b.ReplaceRange("", from, to); err != nil {
				return err
			}
		case diffmatchpatch.DiffInsert:
			at := b.positionAt(offset)
			if err := b.ReplaceRange(d.Text, at, at); err != nil {
				return err
			}
			offset += n
		}
	}
	return nil
}

func (b *Buffer) positionAt(offset int) protocol.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return positionOf(b.text, offset)
}

// offsetOf converts pos to a rune offset into text, clamping to valid bounds.
func offsetOf(text []rune, pos protocol.Position) int {
	line := 0
	i := 0
	for line < pos.Line && i < len(text) {
		if text[i] == '\n' {
			line++
		}
		i++
	}
	if line < pos.Line {
		return len(text)
	}
	for ch := 0; ch < pos.Ch && i < len(text) && text[i] != '\n'; ch++ {
		i++
	}
	return i
}

func positionOf(text []rune, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	prefix := string(text[:offset])
	line := strings.Count(prefix, "\n")
	lastNL := strings.LastIndex(prefix, "\n")
	return protocol.Position{Line: line, Ch: utf8.RuneCountInString(prefix[lastNL+1:])}
}
