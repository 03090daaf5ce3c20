package ports

// Watcher monitors a dataset file for changes and triggers re-annotation.
// The adapter (fsnotify) must debounce editor write bursts and atomic
// save-and-rename sequences before invoking onChange. Only one Watch call
// should be active at a time.
type Watcher interface {
	// Watch starts monitoring dataPath. onChange is called after each settled
	// change to the file. The callback may be invoked from any goroutine.
	// Returns an error if the file's directory doesn't exist or permissions
	// are insufficient.
	Watch(dataPath string, onChange func()) error

	// Stop ends monitoring and releases all resources. After Stop returns,
	// no further onChange calls will fire. Safe to call multiple times.
	Stop() error
}
