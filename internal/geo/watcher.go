package geo

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// BoundaryWatcher hot-reloads the boundary polygon when its file
// changes on disk, so an airspace update does not require a restart.
// A failed reload keeps the previous ring in service.
type BoundaryWatcher struct {
	path string
	log  zerolog.Logger

	current atomic.Pointer[Polygon]

	watcher *fsnotify.Watcher

	// Debounce: coalesce rapid Create+Write events during a save.
	debounceMu sync.Mutex
	debounce   *time.Timer
}

// NewBoundaryWatcher loads the ring at path and returns a watcher
// serving it. The initial load must succeed; later reloads are
// best-effort.
func NewBoundaryWatcher(path string, log zerolog.Logger) (*BoundaryWatcher, error) {
	pg, err := LoadPolygon(path)
	if err != nil {
		return nil, err
	}
	bw := &BoundaryWatcher{
		path: path,
		log:  log.With().Str("component", "boundary").Logger(),
	}
	bw.current.Store(&pg)
	return bw, nil
}

// Current returns the ring most recently loaded from disk.
func (bw *BoundaryWatcher) Current() Polygon {
	return *bw.current.Load()
}

// Start begins watching the polygon file. The parent directory is
// watched rather than the file itself: editors and atomic writers
// replace the inode, which silently drops a watch on the file.
func (bw *BoundaryWatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	bw.watcher = w

	if err := w.Add(filepath.Dir(bw.path)); err != nil {
		w.Close()
		return err
	}

	go bw.watchLoop(ctx)

	bw.log.Info().Str("path", bw.path).Msg("boundary watcher started")
	return nil
}

// Stop closes the fsnotify watcher.
func (bw *BoundaryWatcher) Stop() {
	if bw.watcher != nil {
		bw.watcher.Close()
	}
}

func (bw *BoundaryWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-bw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(bw.path) {
				continue
			}
			bw.scheduleReload()

		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return
			}
			bw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleReload debounces reloads by 500ms so a slow writer is not
// read mid-save.
func (bw *BoundaryWatcher) scheduleReload() {
	bw.debounceMu.Lock()
	defer bw.debounceMu.Unlock()

	if bw.debounce != nil {
		bw.debounce.Reset(500 * time.Millisecond)
		return
	}

	bw.debounce = time.AfterFunc(500*time.Millisecond, func() {
		bw.debounceMu.Lock()
		bw.debounce = nil
		bw.debounceMu.Unlock()

		bw.reload()
	})
}

func (bw *BoundaryWatcher) reload() {
	pg, err := readPolygon(bw.path)
	if err != nil {
		bw.log.Error().Err(err).Msg("boundary reload failed, keeping previous ring")
		return
	}

	cacheMu.Lock()
	cache[bw.path] = pg
	cacheMu.Unlock()

	bw.current.Store(&pg)
	bw.log.Info().Int("vertices", len(pg)).Msg("boundary polygon reloaded")
}
