package clientenv

import "time"

// ExportedNotify makes the watcher report each reload attempt on the
// returned channel and shortens the debounce window for tests.
func (w *Watcher) ExportedNotify(debounce time.Duration) <-chan error {
	w.debounce = debounce
	w.reloaded = make(chan error, 8)
	return w.reloaded
}
