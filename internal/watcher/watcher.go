// Package watcher reports changes to a single file, such as the
// application config, using fsnotify.
package watcher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is how long the watcher waits for writes to settle before
// calling onChange.
const DefaultDelay = 100 * time.Millisecond

// Watcher monitors one file for writes, creates and renames. Editors often
// replace files instead of writing them in place, so the parent directory
// is watched and events are filtered by name.
type Watcher struct {
	path     string
	onChange func()
	delay    time.Duration
	fsw      *fsnotify.Watcher
	done     chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool

	// fire is held while onChange runs so Stop can wait for it.
	fire sync.Mutex
}

// New creates a Watcher for path. onChange is called once per burst of
// events, after DefaultDelay without further events.
func New(path string, onChange func()) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		delay:    DefaultDelay,
		done:     make(chan struct{}),
	}
}

// Start begins watching. It returns an error when the parent directory
// cannot be watched.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw

	go w.loop()
	return nil
}

// Stop terminates the watcher. A pending change notification is dropped
// and a running one completes before Stop returns, so onChange is never
// called after Stop. onChange must not call Stop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if w.fsw != nil {
		w.fsw.Close()
		<-w.done
	}

	w.fire.Lock()
	w.fire.Unlock()
}

func (w *Watcher) notify() {
	w.fire.Lock()
	defer w.fire.Unlock()

	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}
	w.onChange()
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Errors are dropped; the next event retries.
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if filepath.Clean(ev.Name) != w.path {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.notify)
}
