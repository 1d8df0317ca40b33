package stores

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kemicky/forage/pkg/telemetry"
)

// watchDebounce collapses a burst of file events into one notification.
const watchDebounce = 250 * time.Millisecond

// FileWatcher publishes ChangeExternal on a change feed when the database
// file or its WAL is written. Our own writes trigger it too; live queries
// drop the resulting identical snapshot.
type FileWatcher struct {
	path    string
	feed    *ChangeFeed
	logger  *telemetry.Logger
	watcher *fsnotify.Watcher

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewFileWatcher creates a watcher for the database at path.
func NewFileWatcher(path string, feed *ChangeFeed, logger *telemetry.Logger) *FileWatcher {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &FileWatcher{
		path:   path,
		feed:   feed,
		logger: logger.WithField("watch", path),
		done:   make(chan struct{}),
	}
}

// Start begins watching. The directory is watched rather than the file so
// the WAL and files replaced by rename are seen too.
func (w *FileWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.watcher = watcher
	w.wg.Add(1)
	go w.processEvents()

	w.logger.Debug("Started watching database file")
	return nil
}

// Close stops watching and waits for the event loop to exit.
func (w *FileWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
		w.wg.Wait()
	})
	return err
}

func (w *FileWatcher) isDatabaseFile(name string) bool {
	clean := filepath.Clean(name)
	base := filepath.Clean(w.path)
	return clean == base || clean == base+"-wal"
}

func (w *FileWatcher) processEvents() {
	defer w.wg.Done()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.isDatabaseFile(event.Name) {
				continue
			}

			w.logger.WithField("file", event.Name).WithField("op", event.Op.String()).Trace("Database file changed")

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				w.feed.Publish(Change{Kind: ChangeExternal})
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("File watcher error")
		}
	}
}
