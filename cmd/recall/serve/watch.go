package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 250 * time.Millisecond

// configWatcher reloads router chains when config.toml changes.
type configWatcher struct {
	cmd       *cobra.Command
	configDir string
	path      string
	pipeline  *pipeline
	watcher   *fsnotify.Watcher
	logger    *slog.Logger
}

func newConfigWatcher(cmd *cobra.Command, configDir string, p *pipeline, logger *slog.Logger) (*configWatcher, error) {
	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}

	// Watch the directory: editors often replace the file on save.
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	logger.Info("watching config for router changes", "path", filepath.Join(dir, "config.toml"))
	return &configWatcher{
		cmd:       cmd,
		configDir: configDir,
		path:      filepath.Join(dir, "config.toml"),
		pipeline:  p,
		watcher:   w,
		logger:    logger,
	}, nil
}

// Run handles events until ctx is done or the watcher closes.
func (w *configWatcher) Run(ctx context.Context) {
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *configWatcher) reload() {
	v, err := config.InitViper(w.configDir)
	if err != nil {
		w.logger.Warn("config reload failed", "error", err)
		return
	}
	bindFlags(v, w.cmd)

	cfg, err := config.FromViper(v)
	if err != nil {
		w.logger.Warn("config reload failed", "error", err)
		return
	}

	if err := w.pipeline.reload(cfg, w.logger); err != nil {
		w.logger.Warn("router reload rejected, keeping current chains", "error", err)
	}
}

// Close stops watching.
func (w *configWatcher) Close() error {
	return w.watcher.Close()
}
