package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var wlog zerolog.Logger

func init() {
	wlog = log.With().Str("component", "watcher").Logger()
}

const defaultDebounce = 500 * time.Millisecond

// ConfigWatcher reloads the config file whenever it changes on disk and
// hands each fresh copy to onReload.
type ConfigWatcher struct {
	config   *Config
	debounce time.Duration
	onReload func(*Config)
}

func NewConfigWatcher(config *Config, debounce time.Duration, onReload func(*Config)) *ConfigWatcher {
	return &ConfigWatcher{
		config:   config,
		debounce: debounce,
		onReload: onReload,
	}
}

// Run watches until ctx is done. It returns immediately when the config
// did not come from a file.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	path := w.config.Path()
	if path == "" {
		wlog.Debug().Msg("No config file, not watching")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file rather than write it, which would drop
	// a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	wlog.Info().Str("path", path).Dur("debounce", w.debounce).Msg("Config watcher started")

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			wlog.Debug().Str("op", event.Op.String()).Msg("Config file change detected")
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			wlog.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *ConfigWatcher) reload() {
	fresh, err := w.config.Reload()
	if err != nil {
		wlog.Warn().Err(err).Msg("Ignoring invalid config change")
		return
	}

	wlog.Info().Int("period", fresh.Period()).Msg("Config reloaded")
	w.onReload(fresh)
}
