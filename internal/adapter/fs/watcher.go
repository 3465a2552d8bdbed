package fs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileWatcher calls onChange after any of the watched files is written,
// created, renamed or removed. Bursts of events within the debounce window
// produce one call.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	debounce time.Duration
	onChange func()
	log      *zap.Logger
}

// NewFileWatcher watches the parent directories of paths, since atomic
// replacement swaps the file itself.
func NewFileWatcher(paths []string, debounce time.Duration, onChange func(), log *zap.Logger) (*FileWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:  w,
		files:    make(map[string]struct{}, len(paths)),
		debounce: debounce,
		onChange: onChange,
		log:      log,
	}
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, err
		}
		fw.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return fw, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (fw *FileWatcher) Run(ctx context.Context) {
	defer fw.watcher.Close()

	timer := time.NewTimer(fw.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(event) {
				continue
			}
			fw.log.Debug("data file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(fw.debounce)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Warn("file watcher error", zap.Error(err))

		case <-timer.C:
			fw.onChange()
		}
	}
}

func (fw *FileWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	_, ok := fw.files[abs]
	return ok
}
