package tailer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// stateFile is the JSON layout of the state_file.
type stateFile struct {
	SavedAt time.Time        `json:"saved_at"`
	Cursors map[string]int64 `json:"cursors"`
}

// Checkpoint keeps the resume position of every tailed file in a JSON state
// file. The position excludes an unterminated trailing fragment, so a line
// being written at shutdown is read again in full after a restart.
type Checkpoint struct {
	fs   afero.Fs
	path string

	mu      sync.Mutex
	cursors map[string]int64
	dirty   bool
}

// NewCheckpoint loads the state file at path. A missing file starts empty; a
// corrupt one is logged and ignored. Other read errors are returned.
func NewCheckpoint(fs afero.Fs, path string) (*Checkpoint, error) {
	c := &Checkpoint{fs: fs, path: path, cursors: make(map[string]int64)}

	raw, err := afero.ReadFile(fs, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var st stateFile
	if err := json.Unmarshal(raw, &st); err != nil {
		logger().Warn("ignoring corrupt checkpoint", "path", path, "err", err)
		return c, nil
	}
	for p, off := range st.Cursors {
		if off >= 0 {
			c.cursors[p] = off
		}
	}
	return c, nil
}

// Get returns the saved resume position of a file.
func (c *Checkpoint) Get(path string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	off, ok := c.cursors[path]
	return off, ok
}

// Set records the resume position of a file. It is written by the next Save.
func (c *Checkpoint) Set(path string, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.cursors[path]; ok && cur == offset {
		return
	}
	c.cursors[path] = offset
	c.dirty = true
}

// Save writes the state file if anything changed since the last save. The
// file is replaced through a rename so a crash never leaves it half written.
func (c *Checkpoint) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	raw, err := json.MarshalIndent(stateFile{SavedAt: time.Now().UTC(), Cursors: c.cursors}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := c.fs.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	c.dirty = false
	return nil
}
