package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CatalogWatcher monitors the SKU catalog document and invokes the supplied
// callback whenever it changes. Stop must be called to release filesystem
// resources.
type CatalogWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *CatalogWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchCatalog wires fsnotify around the catalog document and reloads it on
// any relevant change. The callback receives the initial catalog before the
// watcher goroutine starts; reload failures flow to onError and leave the
// previously delivered catalog in effect.
func WatchCatalog(ctx context.Context, path string, onChange func(Catalog), onError func(error)) (*CatalogWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("config: watch catalog requires a change callback")
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	onChange(catalog)

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch catalog: %w", err)
	}

	target := path
	if abs, absErr := filepath.Abs(path); absErr == nil {
		target = abs
	}
	target = filepath.Clean(target)
	// Watch the parent directory so editor rename-and-replace saves are seen.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, fmt.Errorf("config: watch add %s: %w", filepath.Dir(target), err)
	}

	done := make(chan struct{})
	watch := &CatalogWatcher{cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("config: watch catalog close: %w", err))
			}
		}()

		reload := func() {
			catalog, err := LoadCatalog(target)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			onChange(catalog)
		}

		const debounce = 25 * time.Millisecond
		var reloadTimer *time.Timer
		var reloadSignal <-chan time.Time
		scheduleReload := func() {
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(debounce)
			} else {
				if !reloadTimer.Stop() {
					select {
					case <-reloadTimer.C:
					default:
					}
				}
				reloadTimer.Reset(debounce)
			}
			reloadSignal = reloadTimer.C
		}

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-reloadSignal:
				reloadSignal = nil
				reload()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && onError != nil {
					onError(fmt.Errorf("config: catalog file %s removed", target))
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
					scheduleReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("config: watch error: %w", err))
				}
			}
		}
	}()

	return watch, nil
}
