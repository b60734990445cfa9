package rules

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before reloading. Editors tend to emit bursts of writes for a
// single save.
const DefaultDebounce = 500 * time.Millisecond

// Watch reloads rule sets from dir whenever a YAML file in it changes.
// It blocks until ctx is cancelled. Files that fail to parse after a
// change are logged and skipped; previously loaded sets stay registered.
func (s *Store) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	reload := func() {
		s.ClearCache()
		loaded, err := s.LoadRuleSetsFromDirectory(dir)
		if err != nil {
			log.Printf("WARNING: reloading rule sets from %s: %v", dir, err)
			return
		}
		log.Printf("Reloaded %d rule set(s) from %s", len(loaded), dir)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isRuleSetFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Restart the debounce window on every event in a burst
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("WARNING: watcher error: %v", err)
		}
	}
}

func isRuleSetFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
