package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
)

// window is the span used for the events-per-second figure.
const window = 5 * time.Second

// Stats holds a point-in-time snapshot of aggregated metrics.
type Stats struct {
	Uptime         string           `json:"uptime"`
	TotalEvents    int64            `json:"total_events"`
	EPS            float64          `json:"eps"`
	SeverityCounts map[string]int64 `json:"severity_counts"`
	StreamCounts   map[string]int64 `json:"stream_counts"`
	DroppedEvents  int64            `json:"dropped_events"`
	FilesWatched   int              `json:"files_watched"`
	LastAlert      *model.LogEvent  `json:"last_alert,omitempty"`
}

// Aggregator subscribes to the Hub and computes time-windowed metrics.
type Aggregator struct {
	mu             sync.RWMutex
	startTime      time.Time
	totalEvents    int64
	severityCounts map[string]int64
	streamCounts   map[string]int64
	lastAlert      *model.LogEvent
	window         []time.Time // timestamps for EPS calculation
	dropped        func() int64
	fileCount      func() int
	entries        <-chan model.LogEvent
}

// New creates an Aggregator that reads from the given Hub subscriber channel.
// droppedFn and fileCountFn provide live values from Hub and Tailer respectively.
func New(entries <-chan model.LogEvent, droppedFn func() int64, fileCountFn func() int) *Aggregator {
	return &Aggregator{
		startTime:      time.Now(),
		severityCounts: make(map[string]int64),
		streamCounts:   make(map[string]int64),
		dropped:        droppedFn,
		fileCount:      fileCountFn,
		entries:        entries,
	}
}

// Snapshot returns the current metrics.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	var recent int
	for _, t := range a.window {
		if t.After(cutoff) {
			recent++
		}
	}

	var last *model.LogEvent
	if a.lastAlert != nil {
		ev := *a.lastAlert
		last = &ev
	}

	return Stats{
		Uptime:         time.Since(a.startTime).Truncate(time.Second).String(),
		TotalEvents:    a.totalEvents,
		EPS:            float64(recent) / window.Seconds(),
		SeverityCounts: copyCounts(a.severityCounts),
		StreamCounts:   copyCounts(a.streamCounts),
		DroppedEvents:  a.dropped(),
		FilesWatched:   a.fileCount(),
		LastAlert:      last,
	}
}

// Start begins consuming events and updating metrics. Blocks until the
// context is cancelled or the subscription is closed.
func (a *Aggregator) Start(ctx context.Context) {
	// Periodically prune the sliding window.
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.entries:
			if !ok {
				return
			}
			a.record(ev)
		case <-ticker.C:
			a.prune()
		}
	}
}

// record adds an event to the metrics.
func (a *Aggregator) record(ev model.LogEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalEvents++
	a.severityCounts[string(ev.Severity)]++
	a.streamCounts[ev.Stream]++
	if ev.Severity != model.SeverityNone {
		a.lastAlert = &ev
	}
	a.window = append(a.window, time.Now())
}

// prune removes timestamps older than the window.
func (a *Aggregator) prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-window)
	i := 0
	for _, t := range a.window {
		if t.After(cutoff) {
			a.window[i] = t
			i++
		}
	}
	a.window = a.window[:i]
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
