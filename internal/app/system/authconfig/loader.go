// internal/app/system/authconfig/loader.go
package authconfig

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Loader produces the snapshot in effect for one request. Callers never
// hold on to a snapshot across requests; whether the loader caches is its
// own decision.
type Loader interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Static always returns the same snapshot.
type Static struct {
	snap *Snapshot
}

func NewStatic(s *Snapshot) *Static {
	if s == nil {
		s = NewSnapshot(nil)
	}
	return &Static{snap: s}
}

func (s *Static) Snapshot(context.Context) (*Snapshot, error) { return s.snap, nil }

// FileLoader reads a TOML file. With caching on, the file is parsed once and
// again only after Invalidate (or a change seen by Watch); with caching off,
// every call re-reads the file.
type FileLoader struct {
	path  string
	cache bool
	log   *zap.Logger

	mu  sync.Mutex
	cur *Snapshot
}

// NewFileLoader creates a loader for path. An empty path always yields an
// empty snapshot.
func NewFileLoader(path string, cache bool, log *zap.Logger) *FileLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileLoader{path: path, cache: cache, log: log}
}

// Snapshot returns the current configuration. A load failure is reported as
// a configuration error.
func (l *FileLoader) Snapshot(context.Context) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cache && l.cur != nil {
		return l.cur, nil
	}
	snap, err := Load(l.path)
	if err != nil {
		return nil, autherr.Wrap(autherr.ErrConfiguration, "", err)
	}
	l.cur = snap
	return snap, nil
}

// Invalidate drops the cached snapshot so the next call re-reads the file.
func (l *FileLoader) Invalidate() {
	l.mu.Lock()
	l.cur = nil
	l.mu.Unlock()
}

// Watch invalidates the cache whenever the file changes, until ctx is done.
// It watches the containing directory so editors that replace the file on
// save are handled. Only meaningful with caching on.
func (l *FileLoader) Watch(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("auth config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", l.path, err)
	}

	target := filepath.Clean(l.path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
					l.Invalidate()
					l.log.Info("auth config changed; reloading on next request", zap.String("path", l.path))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.log.Warn("auth config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
