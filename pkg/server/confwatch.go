package server

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ReloadConf re-reads ConfPath and applies it. A bad file leaves the
// running config untouched.
func (g *Game) ReloadConf() error {
	gc, err := LoadGameConf(g.ConfPath)
	if err != nil {
		return err
	}
	g.ApplyGameConf(gc)
	return nil
}

// WatchConf starts an fsnotify watcher on the config file's directory.
// When the file changes, it is reloaded and connected staff are told.
// Close the returned watcher to stop.
func (g *Game) WatchConf() (*fsnotify.Watcher, error) {
	if g.ConfPath == "" {
		return nil, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("starting config watcher: %w", err)
	}
	target, _ := filepath.Abs(g.ConfPath)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if name, _ := filepath.Abs(event.Name); name != target {
					continue
				}
				if err := g.ReloadConf(); err != nil {
					log.Printf("WARNING: config reload: %v", err)
					g.NotifyStaff(fmt.Sprintf("Config %s changed but failed to load: %v", filepath.Base(target), err))
					continue
				}
				g.NotifyStaff(fmt.Sprintf("Config %s reloaded.", filepath.Base(target)))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("WARNING: config watcher: %v", err)
			}
		}
	}()

	// Watch the directory; editors often replace the file rather than write it.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}
	log.Printf("Watching %s for changes", target)
	return watcher, nil
}
