package watcher

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

func logger() *log.Logger { return log.WithPrefix("watcher") }

// Event represents a change to one of the watched files.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher delivers change notifications for a fixed set of files.
//
// The parent directory of every file is watched rather than the file itself,
// so a file that does not exist yet is picked up once it is created and a
// rotated file keeps being followed under its original name.
type Watcher struct {
	fsw    *fsnotify.Watcher
	Events chan Event
	paths  []string
	files  map[string]bool
}

// New creates a Watcher for the given paths or glob patterns.
// Literal paths are kept even when the file is missing; patterns are expanded
// at startup.
func New(patterns []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:    fsw,
		Events: make(chan Event, 256),
		files:  make(map[string]bool),
	}

	dirs := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := expand(pattern)
		if err != nil {
			logger().Warn("failed to expand pattern", "pattern", pattern, "err", err)
			continue
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				logger().Warn("cannot resolve path", "path", m, "err", err)
				continue
			}
			if w.files[abs] {
				continue
			}

			dir := filepath.Dir(abs)
			if !dirs[dir] {
				if err := fsw.Add(dir); err != nil {
					logger().Warn("cannot watch directory", "dir", dir, "err", err)
					continue
				}
				dirs[dir] = true
			}
			w.files[abs] = true
			w.paths = append(w.paths, abs)
		}
	}

	return w, nil
}

// Start begins listening for file events. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			// Forward relevant events (write, create, remove, rename).
			switch {
			case ev.Op&fsnotify.Write != 0,
				ev.Op&fsnotify.Create != 0,
				ev.Op&fsnotify.Remove != 0,
				ev.Op&fsnotify.Rename != 0:
				select {
				case w.Events <- Event{Path: filepath.Clean(ev.Name), Op: ev.Op}:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger().Error("watcher error", "err", err)
		}
	}
}

// Paths returns the absolute paths of the watched files.
func (w *Watcher) Paths() []string {
	return w.paths
}

// expand resolves a glob pattern to matching file paths.
// A pattern without glob syntax is returned as-is, whether or not it exists.
// Supports recursive patterns like /var/log/**/*.log via doublestar.
func expand(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		return []string{pattern}, nil
	}
	return doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
}
