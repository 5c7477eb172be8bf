// Package configwatch implements a single directory-level fsnotify watch
// with debouncing, shared by the Config Watcher (backend definitions) and
// the Profile Engine's document reload.
//
// Watching the containing directory rather than the file itself is more
// reliable across editors that replace files via rename-on-save.
package configwatch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stacklok/mcp-aggregator/pkg/logger"
)

const debounce = 300 * time.Millisecond

// Watcher[T] watches one file's containing directory, decodes its
// contents with decode whenever they change, and emits T over Changes.
// A change is emitted only if the new content differs byte-for-byte from
// the last seen content.
type Watcher[T any] struct {
	path    string
	decode  func([]byte) (T, error)
	Changes chan T

	lastContent []byte
	fsw         *fsnotify.Watcher
}

// New creates a Watcher for path, decoding with decode. Call Start to
// begin watching.
func New[T any](path string, decode func([]byte) (T, error)) (*Watcher[T], error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch directory %s: %w", dir, err)
	}
	return &Watcher[T]{
		path:    path,
		decode:  decode,
		Changes: make(chan T, 1),
		fsw:     fsw,
	}, nil
}

// Load reads and decodes the current file content once, also seeding the
// watcher's "last seen" baseline so a later identical write is not
// reported as a change.
func (w *Watcher[T]) Load() (T, error) {
	var zero T
	data, err := os.ReadFile(w.path)
	if err != nil {
		return zero, err
	}
	w.lastContent = data
	return w.decode(data)
}

// Start begins the debounced watch loop in a background goroutine. It
// stops when ctx is canceled.
func (w *Watcher[T]) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *Watcher[T]) loop(ctx context.Context) {
	defer w.fsw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	target := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			timerC = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warnf("config watch error for %s: %v", w.path, err)
		case <-timerC:
			timerC = nil
			w.checkAndEmit()
		}
	}
}

func (w *Watcher[T]) checkAndEmit() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		logger.Warnf("config watch: re-read %s failed: %v", w.path, err)
		return
	}
	if bytes.Equal(data, w.lastContent) {
		return
	}
	w.lastContent = data

	decoded, err := w.decode(data)
	if err != nil {
		logger.Warnf("config watch: decode %s failed: %v", w.path, err)
		return
	}

	select {
	case w.Changes <- decoded:
	default:
		// Drop if nobody is listening yet; the next debounced change
		// will still carry the latest content.
	}
}
