package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const debounceInterval = 300 * time.Millisecond

// excludedDirs are never watched.
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// ChangeCallback receives the path, relative to the watched root, of the
// last file that changed in a burst of events.
type ChangeCallback func(path string)

// Watcher monitors the console's static asset directory so open browsers
// can be told to reload after a rebuild.
type Watcher struct {
	root     string
	callback ChangeCallback
	log      logrus.FieldLogger
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
	done      chan struct{}

	mu        sync.Mutex
	timer     *time.Timer
	lastPath  string
	closeOnce sync.Once
}

// New creates a watcher for root. Call Start to begin watching.
func New(root string, callback ChangeCallback, log logrus.FieldLogger) *Watcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Watcher{
		root:     root,
		callback: callback,
		log:      log.WithField("component", "watcher"),
		debounce: debounceInterval,
		cancel:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start adds root and its subdirectories and runs the event loop.
func (w *Watcher) Start() error {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := addDirsRecursive(fsW, w.root); err != nil {
		fsW.Close()
		return err
	}

	w.fsWatcher = fsW
	w.log.WithFields(logrus.Fields{
		"root":   w.root,
		"assets": CountAssets(w.root),
	}).Info("watching static assets")

	go w.watchLoop()
	return nil
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.cancel)
		if w.fsWatcher == nil {
			close(w.done)
			return
		}
		w.fsWatcher.Close()
		<-w.done

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop() {
	defer close(w.done)

	for {
		select {
		case <-w.cancel:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			// If a new directory is created, watch it too.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !skipDir(filepath.Base(event.Name)) {
						addDirsRecursive(w.fsWatcher, event.Name)
					}
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if isHidden(filepath.Base(event.Name)) {
				continue
			}

			w.schedule(event.Name)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

// schedule resets the debounce timer on each event.
func (w *Watcher) schedule(name string) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		rel = name
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastPath = filepath.ToSlash(rel)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case <-w.cancel:
		return
	default:
	}

	w.mu.Lock()
	path := w.lastPath
	w.mu.Unlock()

	w.log.WithField("path", path).Debug("static assets changed")
	if w.callback != nil {
		w.callback(path)
	}
}

// CountAssets counts all non-hidden files under dir.
func CountAssets(dir string) int {
	count := 0
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip inaccessible paths.
		}

		name := d.Name()
		if d.IsDir() {
			if path != dir && skipDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if isHidden(name) {
			return nil
		}

		count++
		return nil
	})
	return count
}

// addDirsRecursive adds a directory and its subdirectories to an fsnotify watcher.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDir(d.Name()) {
			return filepath.SkipDir
		}

		return w.Add(path)
	})
}

func skipDir(name string) bool {
	return excludedDirs[name] || isHidden(name)
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
