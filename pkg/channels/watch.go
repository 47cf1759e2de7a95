package channels

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDelay groups the burst of events an editor produces on save.
var DebounceDelay = 250 * time.Millisecond

// Watch calls onChange after channel files in dir are written, created,
// removed or renamed. It returns once the watcher is running; the watcher
// stops when ctx is cancelled.
func Watch(ctx context.Context, dir string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("channels: start watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("channels: watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if !IsChannelFile(filepath.Base(event.Name)) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(DebounceDelay)
				} else {
					timer.Reset(DebounceDelay)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				log.Printf("channels: change detected in %s, reloading", dir)
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("channels: watcher error: %v", err)
			}
		}
	}()

	log.Printf("channels: watching %s for changes", dir)
	return nil
}
