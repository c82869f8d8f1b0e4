package boot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

func (r *Runtime) startTriggers() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.stop != nil {
		return nil
	}
	r.stop = make(chan struct{})

	if spec := r.cfg.Rescan.Schedule; spec != "" {
		c := cron.New()
		if _, err := c.AddFunc(spec, func() { r.Rescan(context.Background()) }); err != nil {
			return fmt.Errorf("schedule rescan %q: %w", spec, err)
		}
		c.Start()
		r.cron = c
		r.logger.Info("Scheduled module rescans", "schedule", spec)
	}

	if r.cfg.Rescan.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("watch module roots: %w", err)
		}
		for _, dir := range watchDirs(r.registry.Roots()) {
			if err := w.Add(dir); err != nil {
				r.logger.Warn("Cannot watch module directory", "dir", dir, "error", err)
			}
		}
		r.watcher = w
		r.wg.Add(1)
		go r.watch(w, r.cfg.Rescan.Debounce.Std(), r.stop)
		r.logger.Info("Watching module roots", "roots", r.registry.Roots())
	}
	return nil
}

// watchDirs returns each existing root and its immediate subdirectories,
// where module manifests live.
func watchDirs(roots []string) []string {
	var dirs []string
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		dirs = append(dirs, root)
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, filepath.Join(root, e.Name()))
			}
		}
	}
	return dirs
}

func (r *Runtime) watch(w *fsnotify.Watcher, debounce time.Duration, stop <-chan struct{}) {
	defer r.wg.Done()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-stop:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			// New module directories need their own watch.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.Add(event.Name)
				}
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() { r.Rescan(context.Background()) })
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.logger.Warn("Module watcher error", "error", err)
		}
	}
}

func (r *Runtime) stopTriggers() {
	r.mu.Lock()
	stop, c, w := r.stop, r.cron, r.watcher
	r.stop, r.cron, r.watcher = nil, nil, nil
	r.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if c != nil {
		<-c.Stop().Done()
	}
	if w != nil {
		_ = w.Close()
	}
	r.wg.Wait()
}
