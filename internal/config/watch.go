package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchDebounce coalesces the burst of events an editor save produces.
const WatchDebounce = 150 * time.Millisecond

// Watch reloads path whenever it changes and passes the result to fn,
// until ctx is done. fn receives the load error instead of a config when
// the new file is invalid; the caller keeps its previous settings.
//
// The parent directory is watched, not the file, so editors that replace
// the file on save keep triggering reloads.
func Watch(ctx context.Context, path string, log *zap.Logger, fn func(Config, error)) error {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return err
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, _, err := Load(abs)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warn("config reload failed", zap.String("path", abs), zap.Error(err))
		} else {
			log.Info("config reloaded", zap.String("path", abs))
		}
		fn(cfg, err)
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
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(WatchDebounce, reload)
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
