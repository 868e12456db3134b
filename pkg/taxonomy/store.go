package taxonomy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// OpenFile loads the taxonomy at path, merges the calculation arcs found at
// calcPath (when non-empty) and indexes the result.
func OpenFile(path, calcPath string) (*Index, error) {
	data, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if calcPath != "" {
		f, err := os.Open(calcPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open calculations: %w", err)
		}
		defer f.Close()
		arcs, err := ParseCalculationArcs(f)
		if err != nil {
			return nil, err
		}
		MergeCalculations(data.Children, arcs)
	}
	return NewIndex(data), nil
}

// Store holds the current index. Readers always see a complete index; a
// reload swaps the whole index at once.
type Store struct {
	current atomic.Pointer[Index]
	logger  *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for reload events.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore returns a store serving idx.
func NewStore(idx *Index, opts ...StoreOption) *Store {
	s := &Store{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if idx == nil {
		idx = NewIndex(nil)
	}
	s.current.Store(idx)
	return s
}

// Index returns the index currently served.
func (s *Store) Index() *Index {
	return s.current.Load()
}

// Swap replaces the served index.
func (s *Store) Swap(idx *Index) {
	if idx != nil {
		s.current.Store(idx)
	}
}

// Watch reloads the taxonomy whenever path or calcPath change on disk. The
// parent directories are watched so that editors which replace files are
// handled. Watch returns once the watcher is running; it stops when ctx is
// cancelled.
func (s *Store) Watch(ctx context.Context, path, calcPath string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	targets := map[string]bool{filepath.Clean(path): true}
	dirs := map[string]bool{filepath.Dir(path): true}
	if calcPath != "" {
		targets[filepath.Clean(calcPath)] = true
		dirs[filepath.Dir(calcPath)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	s.logger.Debug("taxonomy watcher starting", zap.String("path", path), zap.String("calculations", calcPath))

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		idx, err := OpenFile(path, calcPath)
		if err != nil {
			s.logger.Warn("taxonomy reload failed", zap.Error(err))
			return
		}
		s.Swap(idx)
		s.logger.Info("taxonomy reloaded", zap.Int("nodes", idx.Len()))
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !targets[filepath.Clean(ev.Name)] {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(defaultDebounce, reload)
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Debug("taxonomy watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
