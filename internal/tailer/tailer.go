package tailer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
	"github.com/Dima2024Alekseev/bot-pm2/internal/parser"
	"github.com/Dima2024Alekseev/bot-pm2/internal/watcher"
)

const (
	// DefaultChunkSize bounds a single read; a large delta is consumed chunk by chunk.
	DefaultChunkSize = 64 * 1024
	// DefaultMaxLineBytes bounds the pending fragment. Longer unterminated
	// content is emitted as a line of its own.
	DefaultMaxLineBytes = 1024 * 1024

	// NotFound prefixes the ReadLastLines result for a missing file.
	NotFound = "log file not found"
)

// logger is derived per call so the level set by the root command applies.
func logger() *log.Logger { return log.WithPrefix("tailer") }

// Source names a file to tail and the stream it carries (out or err).
type Source struct {
	Path   string
	Stream string
}

// WatchedFile is the per-file tailing state. cursor and pending are only
// touched while mu is held, which makes one processing cycle a critical
// section for that file.
type WatchedFile struct {
	Path   string
	Stream string

	mu      sync.Mutex
	cursor  int64
	pending string
	kick    chan struct{}
}

// Tailer reads newly appended lines from watched files and emits classified LogEvents.
type Tailer struct {
	fs        afero.Fs
	parser    parser.Parser
	files     map[string]*WatchedFile
	order     []*WatchedFile
	out       chan model.LogEvent
	ckpt      *Checkpoint
	chunkSize int
	maxLine   int
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithCheckpoint resumes from and persists cursors to c.
func WithCheckpoint(c *Checkpoint) Option {
	return func(t *Tailer) { t.ckpt = c }
}

// WithChunkSize sets the maximum bytes read per Read call.
func WithChunkSize(n int) Option {
	return func(t *Tailer) {
		if n > 0 {
			t.chunkSize = n
		}
	}
}

// WithMaxLineBytes sets the pending fragment limit.
func WithMaxLineBytes(n int) Option {
	return func(t *Tailer) {
		if n > 0 {
			t.maxLine = n
		}
	}
}

// WithBuffer sets the capacity of the output channel.
func WithBuffer(n int) Option {
	return func(t *Tailer) {
		if n >= 0 {
			t.out = make(chan model.LogEvent, n)
		}
	}
}

// New creates a Tailer for the given files. An existing file starts at its
// current size so its backlog is not replayed; a missing file starts at 0 and
// is read from the beginning once it appears.
func New(fs afero.Fs, sources []Source, p parser.Parser, opts ...Option) *Tailer {
	t := &Tailer{
		fs:        fs,
		parser:    p,
		files:     make(map[string]*WatchedFile),
		out:       make(chan model.LogEvent, 512),
		chunkSize: DefaultChunkSize,
		maxLine:   DefaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, src := range sources {
		path := cleanPath(src.Path)
		if _, exists := t.files[path]; exists {
			continue
		}
		wf := &WatchedFile{
			Path:   path,
			Stream: src.Stream,
			kick:   make(chan struct{}, 1),
		}
		t.initCursor(wf)
		t.files[path] = wf
		t.order = append(t.order, wf)
	}

	return t
}

// initCursor sets the starting cursor of a freshly registered file.
func (t *Tailer) initCursor(wf *WatchedFile) {
	info, err := t.fs.Stat(wf.Path)
	if err != nil {
		logger().Warn("log file not found, it will be read once created", "path", wf.Path)
		return
	}

	wf.cursor = info.Size()
	if t.ckpt != nil {
		if saved, ok := t.ckpt.Get(wf.Path); ok && saved <= info.Size() {
			wf.cursor = saved
		}
	}
	logger().Info("initial position", "path", wf.Path, "cursor", wf.cursor)
}

// Events returns the channel where classified lines are sent.
func (t *Tailer) Events() <-chan model.LogEvent {
	return t.out
}

// Files returns the watched files in configuration order.
func (t *Tailer) Files() []*WatchedFile {
	return t.order
}

// Cursor returns the current cursor of a watched file.
func (t *Tailer) Cursor(path string) (int64, bool) {
	wf, ok := t.files[cleanPath(path)]
	if !ok {
		return 0, false
	}
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.cursor, true
}

// Start consumes watcher events until the context is cancelled or events is
// closed. Each file gets its own worker, so cycles for one file never overlap
// while different files are processed concurrently. On return the output
// channel is closed; pending fragments have been flushed unless a checkpoint
// is configured, in which case they are left for the next run.
func (t *Tailer) Start(ctx context.Context, events <-chan watcher.Event) {
	defer close(t.out)

	workCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, wf := range t.order {
		wg.Add(1)
		go func(wf *WatchedFile) {
			defer wg.Done()
			t.worker(workCtx, wf)
		}(wf)
	}

	// Periodic checkpoint save.
	var saveC <-chan time.Time
	if t.ckpt != nil {
		saveTicker := time.NewTicker(5 * time.Second)
		defer saveTicker.Stop()
		saveC = saveTicker.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case ev, ok := <-events:
			if !ok {
				break loop
			}
			t.handleEvent(ev)

		case <-saveC:
			t.saveCheckpoint()
		}
	}

	stop()
	wg.Wait()
	// With a checkpoint the fragment stays unread on disk and is picked up
	// whole after a restart.
	if t.ckpt == nil {
		t.Flush()
	}
	t.saveCheckpoint()
}

// worker runs processing cycles for one file whenever it is signalled.
func (t *Tailer) worker(ctx context.Context, wf *WatchedFile) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-wf.kick:
			t.Process(wf.Path)
		}
	}
}

// handleEvent dispatches watcher events to the owning file's worker.
func (t *Tailer) handleEvent(ev watcher.Event) {
	wf, ok := t.files[cleanPath(ev.Path)]
	if !ok {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		logger().Info("log file added", "path", wf.Path)
		t.Reset(wf.Path)
		signal(wf)

	case ev.Op&fsnotify.Write != 0:
		signal(wf)

	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		// Picked up again by the Create event of the replacement file.
		logger().Info("log file removed or rotated", "path", wf.Path)
	}
}

// signal wakes the file's worker. A signal already pending absorbs this one:
// the queued cycle reads up to the end of the file anyway.
func signal(wf *WatchedFile) {
	select {
	case wf.kick <- struct{}{}:
	default:
	}
}

// Reset moves a file's cursor back to 0 and discards its pending fragment.
// Used when the file (re)appears.
func (t *Tailer) Reset(path string) {
	wf, ok := t.files[cleanPath(path)]
	if !ok {
		return
	}
	wf.mu.Lock()
	defer wf.mu.Unlock()
	wf.cursor = 0
	wf.pending = ""
}

// Process runs one incremental cycle for a watched file. Failures are logged
// and never returned: the next change notification retries from the old cursor.
func (t *Tailer) Process(path string) {
	wf, ok := t.files[cleanPath(path)]
	if !ok {
		logger().Warn("change notification for unwatched file", "path", path)
		return
	}
	if err := t.process(wf); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger().Warn("log file unavailable", "path", wf.Path, "err", err)
			return
		}
		logger().Error("log cycle failed", "path", wf.Path, "err", err)
	}
}

// process reads [cursor, size) and emits every complete line. The cursor only
// advances once the whole range was read; on error cursor and pending keep
// their old values.
func (t *Tailer) process(wf *WatchedFile) error {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	info, err := t.fs.Stat(wf.Path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	size := info.Size()
	if size < wf.cursor {
		logger().Info("log file truncated, reading from start", "path", wf.Path, "size", size, "cursor", wf.cursor)
		wf.cursor = 0
		wf.pending = ""
	}
	if size <= wf.cursor {
		return nil
	}

	f, err := t.fs.Open(wf.Path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(wf.cursor, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", wf.cursor, err)
	}

	pending := wf.pending
	r := io.LimitReader(f, size-wf.cursor)
	buf := make([]byte, t.chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			pending = t.consume(wf, pending+string(buf[:n]))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read at offset %d: %w", wf.cursor, rerr)
		}
	}

	wf.pending = pending
	wf.cursor = size
	if t.ckpt != nil {
		t.ckpt.Set(wf.Path, size-int64(len(pending)))
	}
	return nil
}

// consume emits the complete lines of data in order and returns the trailing
// unterminated fragment.
func (t *Tailer) consume(wf *WatchedFile, data string) string {
	lines := strings.Split(data, "\n")
	rest := lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		t.emit(wf, strings.TrimSuffix(line, "\r"))
	}

	if len(rest) > t.maxLine {
		logger().Warn("line exceeds limit, emitting partial line", "path", wf.Path, "bytes", len(rest))
		t.emit(wf, rest)
		return ""
	}
	return rest
}

// emit classifies a line and sends it downstream. Blank lines are skipped.
func (t *Tailer) emit(wf *WatchedFile, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	ev := t.parser.Parse(line, wf.Path)
	if ev.Stream == "" {
		ev.Stream = wf.Stream
	}
	t.out <- ev
}

// Flush emits every non-blank pending fragment and clears it.
// Called once the change stream has ended.
func (t *Tailer) Flush() {
	for _, wf := range t.order {
		wf.mu.Lock()
		if wf.pending != "" {
			t.emit(wf, strings.TrimSuffix(wf.pending, "\r"))
			wf.pending = ""
		}
		wf.mu.Unlock()
	}
}

// ReadLastLines returns the last n non-blank lines of path joined by "\n",
// or fewer if the file has fewer. A missing file yields a "log file not
// found" message rather than an error. The incremental state is not touched
// and at most n lines are held in memory.
func (t *Tailer) ReadLastLines(path string, n int) (string, error) {
	f, err := t.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Sprintf("%s: %s", NotFound, path), nil
		}
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if n <= 0 {
		return "", nil
	}

	ring := make([]string, 0, min(n, 256))
	next := 0
	br := bufio.NewReaderSize(f, t.chunkSize)
	for {
		s, err := br.ReadString('\n')
		if line := strings.TrimRight(s, "\r\n"); strings.TrimSpace(line) != "" {
			if len(ring) < n {
				ring = append(ring, line)
			} else {
				ring[next] = line
				next = (next + 1) % n
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
	}

	ordered := append(ring[next:len(ring):len(ring)], ring[:next]...)
	return strings.Join(ordered, "\n"), nil
}

// saveCheckpoint persists the current cursors to disk.
func (t *Tailer) saveCheckpoint() {
	if t.ckpt == nil {
		return
	}
	if err := t.ckpt.Save(); err != nil {
		logger().Error("checkpoint save failed", "err", err)
	}
}

func cleanPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
