package dropfolder

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long the folder must be quiet before a change is
// reported. Drive sync writes files in several steps.
const DefaultSettle = 5 * time.Second

// Watch calls onChange once the folder has been quiet for settle after a
// relevant file was created, written or renamed. It blocks until ctx is
// done.
func (f *Folder) Watch(ctx context.Context, settle time.Duration, onChange func()) error {
	if settle <= 0 {
		settle = DefaultSettle
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("drop folder watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("watching %s: %w", f.dir, err)
	}
	f.logger.Info("watching drop folder", "dir", f.dir)

	var (
		timer  *time.Timer
		fireCh <-chan time.Time
	)
	reset := func() {
		if timer == nil {
			timer = time.NewTimer(settle)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(settle)
		}
		fireCh = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if f.relevant(ev.Name) {
				reset()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("drop folder watcher error", "error", err)
		case <-fireCh:
			fireCh = nil
			onChange()
		}
	}
}

func (f *Folder) relevant(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || name == ProcessedDir {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if audioExts[ext] {
		return f.transcriber != nil
	}
	return textExts[ext]
}
