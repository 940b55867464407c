// Package mount provides mount points the widget renders into: an
// in-memory Buffer and a websocket Hub that pushes every update to
// connected dashboards.
package mount

import "sync"

// Buffer holds the latest markup written by the widget.
type Buffer struct {
	mu      sync.RWMutex
	markup  string
	version uint64
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// SetInnerHTML replaces the buffer contents.
func (b *Buffer) SetInnerHTML(markup string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markup = markup
	b.version++
}

// Markup returns the current contents.
func (b *Buffer) Markup() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.markup
}

// Version returns how many times the contents were replaced.
func (b *Buffer) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}
