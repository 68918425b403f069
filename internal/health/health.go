// Package health runs the periodic and on-demand host and app checks.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Dima2024Alekseev/bot-pm2/internal/pm2"
)

func logger() *log.Logger { return log.WithPrefix("health") }

// Thresholds above (or, for disk, below) which a check raises an alert.
type Thresholds struct {
	CPUPercent      float64
	MemoryMB        float64
	DiskFreePercent float64
}

// AppFinder looks up the managed app in PM2.
type AppFinder interface {
	Find(ctx context.Context, name string) (pm2.Process, error)
}

// Report is the outcome of one check.
type Report struct {
	Time     time.Time
	App      string
	Disks    []Disk
	Memory   *Memory
	Host     *Host
	Process  *pm2.Process
	Problems []string // threshold violations
	Errors   []string // collectors that failed
}

// Alerts returns the number of problems and collector failures.
func (r Report) Alerts() int {
	return len(r.Problems) + len(r.Errors)
}

// Checker gathers a Report from the OS collector and PM2.
type Checker struct {
	collector  Collector
	pm2        AppFinder
	app        string
	thresholds Thresholds
}

// NewChecker creates a Checker for app.
func NewChecker(collector Collector, finder AppFinder, app string, th Thresholds) *Checker {
	return &Checker{collector: collector, pm2: finder, app: app, thresholds: th}
}

// Check runs every collector. A failing collector is recorded in the report
// and the remaining ones still run.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{Time: time.Now(), App: c.app}

	if disks, err := c.collector.Disks(ctx); err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("disk info: %v", err))
	} else {
		r.Disks = disks
		for _, d := range disks {
			if free := d.FreePercent(); free < c.thresholds.DiskFreePercent {
				r.Problems = append(r.Problems, fmt.Sprintf("low disk space on %s: %.2f%% free (below %.0f%%)", d.Mountpoint, free, c.thresholds.DiskFreePercent))
			}
		}
	}

	if m, err := c.collector.Memory(ctx); err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("memory info: %v", err))
	} else {
		r.Memory = &m
	}

	if h, err := c.collector.Host(ctx); err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("host info: %v", err))
	} else {
		r.Host = &h
	}

	p, err := c.pm2.Find(ctx, c.app)
	switch {
	case errors.Is(err, pm2.ErrNotFound):
	case err != nil:
		r.Errors = append(r.Errors, fmt.Sprintf("pm2 list: %v", err))
	default:
		r.Process = &p
		if p.Monit.CPU > c.thresholds.CPUPercent {
			r.Problems = append(r.Problems, fmt.Sprintf("CPU %.1f%% above threshold %.0f%%", p.Monit.CPU, c.thresholds.CPUPercent))
		}
		if mb := p.MemoryMB(); mb > c.thresholds.MemoryMB {
			r.Problems = append(r.Problems, fmt.Sprintf("memory %.2f MB above threshold %.0f MB", mb, c.thresholds.MemoryMB))
		}
	}

	return r
}

// Run checks every interval until ctx is cancelled and hands reports with
// alerts to fn. Healthy scheduled checks are only logged.
func (c *Checker) Run(ctx context.Context, interval time.Duration, fn func(Report)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger().Debug("performing scheduled system health check")
			r := c.Check(ctx)
			if r.Alerts() == 0 {
				logger().Info("system health check passed without alerts")
				continue
			}
			logger().Warn("system health check raised alerts", "alerts", r.Alerts())
			fn(r)
		}
	}
}
