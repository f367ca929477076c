package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 300 * time.Millisecond

// excludedDirs are not watched.
var excludedDirs = map[string]bool{
	"__pycache__": true,
	".git":        true,
	"build":       true,
}

// ChangeCallback is called once per burst of filesystem events under root.
type ChangeCallback func(root string)

// Watcher reports changes below a project root. It only hints that a
// re-list is due; it carries no entry data.
type Watcher struct {
	mu       sync.Mutex
	root     string
	debounce time.Duration
	callback ChangeCallback
	log      *zap.Logger

	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
	done      chan struct{}
}

// New creates a watcher for root. Call Start to begin watching.
func New(root string, callback ChangeCallback, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		root:     root,
		debounce: defaultDebounce,
		callback: callback,
		log:      log,
	}
}

// SetDebounce overrides the quiet period before the callback fires.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start adds root and its subdirectories and runs the event loop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsWatcher != nil {
		return nil
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addDirsRecursive(fsW, w.root); err != nil {
		fsW.Close()
		return err
	}

	w.fsWatcher = fsW
	w.cancel = make(chan struct{})
	w.done = make(chan struct{})
	go w.watchLoop(fsW, w.cancel, w.done, w.debounce)
	return nil
}

// Stop ends the event loop and releases the fsnotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsW, cancel, done := w.fsWatcher, w.cancel, w.done
	w.fsWatcher = nil
	w.mu.Unlock()

	if fsW == nil {
		return
	}
	close(cancel)
	fsW.Close()
	<-done
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop(fsW *fsnotify.Watcher, cancel, done chan struct{}, debounce time.Duration) {
	defer close(done)
	var timer *time.Timer

	for {
		select {
		case <-cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fsW.Events:
			if !ok {
				return
			}

			// New directories are watched too.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !skipDir(filepath.Base(event.Name)) {
						fsW.Add(event.Name)
					}
				}
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case <-cancel:
					return
				default:
				}
				if w.callback != nil {
					w.callback(w.root)
				}
			})

		case err, ok := <-fsW.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.String("root", w.root), zap.Error(err))
		}
	}
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
	return excludedDirs[name] || (len(name) > 0 && name[0] == '.')
}
