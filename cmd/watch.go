package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/netsandbox/netsandbox/sim"
)

// BehaviorWatcher monitors behavior source files and reports which one
// changed, so the driver can rebind it while the session keeps running.
type BehaviorWatcher struct {
	watcher  *fsnotify.Watcher
	files    map[string][]string // cleaned path -> node ids
	debounce time.Duration
	changes  chan string
	done     chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewBehaviorWatcher watches every file of files, a map from behavior path to
// the nodes running it. It watches the parent directories so that editors
// replacing a file on save are noticed too.
func NewBehaviorWatcher(files map[string][]string) (*BehaviorWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	bw := &BehaviorWatcher{
		watcher:  w,
		files:    make(map[string][]string, len(files)),
		debounce: 100 * time.Millisecond,
		changes:  make(chan string, 16),
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}
	dirs := make(map[string]bool)
	for path, ids := range files {
		clean := filepath.Clean(path)
		bw.files[clean] = ids
		dir := filepath.Dir(clean)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	go bw.loop()
	return bw, nil
}

// Changes returns a channel that receives the path of every changed behavior.
func (w *BehaviorWatcher) Changes() <-chan string {
	return w.changes
}

// Close stops the watcher.
func (w *BehaviorWatcher) Close() error {
	close(w.done)
	w.mu.Lock()
	for _, t := range w.pending {
		t.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *BehaviorWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			path := filepath.Clean(event.Name)
			if _, watched := w.files[path]; !watched {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logrus.Warnf("behavior watcher: %v", err)
		}
	}
}

// schedule reports path once no further write arrived within the debounce window.
func (w *BehaviorWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.changes <- path:
		case <-w.done:
		}
	})
}

// Rebind reads path and binds it to every node running it. Source that fails
// to compile leaves the previous behavior running. Failures are returned joined.
func (w *BehaviorWatcher) Rebind(s *sim.Session, path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read behavior: %w", err)
	}
	var errs []error
	for _, id := range w.files[filepath.Clean(path)] {
		if err := s.BindBehavior(id, string(code)); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", id, err))
			continue
		}
		logrus.Infof("rebound %s from %s", id, path)
	}
	return errors.Join(errs...)
}
