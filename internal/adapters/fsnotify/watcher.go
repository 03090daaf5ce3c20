// Package fsnotify implements the ports.Watcher interface using
// github.com/fsnotify/fsnotify. It monitors a single dataset file and
// debounces event bursts: h5py writers and copy tools emit many writes per
// save, and some pipelines replace the file via save-and-rename, so the
// parent directory is watched rather than the file's inode.
package fsnotify

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long the file must stay quiet before onChange fires.
// Large h5ad files take a while to write out; firing mid-write would hand
// the loader a truncated file.
const settleDelay = 250 * time.Millisecond

// Watcher implements ports.Watcher using fsnotify.
type Watcher struct {
	fw      *fsnotify.Watcher
	done    chan struct{}
	stopped bool
	mu      sync.Mutex
}

// NewWatcher creates a new file system watcher.
func NewWatcher() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fw:   fw,
		done: make(chan struct{}),
	}, nil
}

// Watch starts monitoring dataPath. onChange is called once per settled
// burst of changes to the file.
func (w *Watcher) Watch(dataPath string, onChange func()) error {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return err
	}
	dir := filepath.Dir(absPath)
	if info, err := os.Stat(dir); err != nil {
		return err
	} else if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	if err := w.fw.Add(dir); err != nil {
		return err
	}

	go func() {
		var settle *time.Timer
		var settleC <-chan time.Time

		for {
			select {
			case event, ok := <-w.fw.Events:
				if !ok {
					return
				}
				if event.Name != absPath {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Rename) {
					continue
				}
				// Restart the settle timer on every event in the burst.
				if settle == nil {
					settle = time.NewTimer(settleDelay)
					settleC = settle.C
				} else {
					if !settle.Stop() {
						select {
						case <-settle.C:
						default:
						}
					}
					settle.Reset(settleDelay)
				}

			case <-settleC:
				settle = nil
				settleC = nil
				onChange()

			case _, ok := <-w.fw.Errors:
				if !ok {
					return
				}
				// Errors are swallowed — fsnotify recovers automatically

			case <-w.done:
				if settle != nil {
					settle.Stop()
				}
				return
			}
		}
	}()

	return nil
}

// Stop ends monitoring and releases all resources.
// Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.done)
	return w.fw.Close()
}
