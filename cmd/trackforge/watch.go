package main

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/trackforge/internal/build"
	"github.com/Faultbox/trackforge/internal/logger"
	"github.com/Faultbox/trackforge/internal/scene"
)

// Editors save in bursts (write, chmod, rename); wait for quiet.
const watchDebounce = 300 * time.Millisecond

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <scene.yaml>",
		Short: "Rebuild whenever the scene or a referenced file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd.Context(), args[0])
		},
	}
}

// watch rebuilds on every change until ctx is done. Build failures are
// logged and the watch continues.
func (a *app) watch(ctx context.Context, scenePath string) error {
	log := logger.Named("watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Directories are watched instead of files so that atomic saves
	// (write temp, rename over) keep being seen.
	files := map[string]bool{}
	dirs := map[string]bool{}
	refresh := func() {
		sources, err := scene.Sources(a.fs, scenePath)
		if err != nil {
			log.Warn("Cannot list scene sources", zap.Error(err))
			sources = []string{scenePath}
		}
		if a.cfg.Surfaces.File != "" {
			sources = append(sources, a.cfg.Surfaces.File)
		}
		files = lo.SliceToMap(sources, func(p string) (string, bool) {
			return filepath.Clean(p), true
		})
		for p := range files {
			dir := filepath.Dir(p)
			if dirs[dir] {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				log.Warn("Cannot watch directory", zap.String("dir", dir), zap.Error(err))
				continue
			}
			dirs[dir] = true
		}
	}

	rebuild := func() {
		start := time.Now()
		res, err := a.run(ctx, scenePath, build.TargetAll)
		if err != nil {
			return
		}
		log.Info("Rebuilt",
			zap.Strings("files", res.Files()),
			zap.Int("points", res.Points),
			zap.Duration("took", time.Since(start)))
	}

	refresh()
	rebuild()
	log.Info("Watching for changes", zap.Int("files", len(files)))

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping watch")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !files[filepath.Clean(event.Name)] || event.Op == fsnotify.Chmod {
				continue
			}
			log.Debug("Change detected", zap.String("file", event.Name), zap.Stringer("op", event.Op))
			timer.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", zap.Error(err))
		case <-timer.C:
			refresh()
			rebuild()
		}
	}
}
