package tokenstore

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Change describes what happened to a watched record file.
type Change uint8

const (
	// ChangeWritten means the record file was created or replaced.
	ChangeWritten Change = iota + 1
	// ChangeRemoved means the record file was deleted or moved away.
	ChangeRemoved
)

func (c Change) String() string {
	switch c {
	case ChangeWritten:
		return "written"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Watcher reports changes to a FileStore's record made by any process, including
// this one. Consumers decide whether a change is foreign by comparing the reloaded
// record with what they hold.
type Watcher struct {
	fs      *fsnotify.Watcher
	path    string
	changes chan Change
	errs    chan error
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// Watch starts watching store's directory. The directory, not the file, is watched
// because Save replaces the file by rename.
func Watch(store *FileStore) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(store.dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch token dir: %w", err)
	}

	w := &Watcher{
		fs:      fw,
		path:    filepath.Clean(store.path),
		changes: make(chan Change, 8),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Changes delivers record changes. The channel is closed by Close.
func (w *Watcher) Changes() <-chan Change { return w.changes }

// Errors delivers watcher failures. Only the latest unread error is kept.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Close stops the watcher and closes Changes.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
		close(w.changes)
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			change, ok := classify(ev.Op)
			if !ok {
				continue
			}
			select {
			case w.changes <- change:
			case <-w.done:
				return
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func classify(op fsnotify.Op) (Change, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return ChangeRemoved, true
	case op.Has(fsnotify.Create), op.Has(fsnotify.Write):
		return ChangeWritten, true
	default:
		return 0, false
	}
}
