// Package pm2 drives the PM2 process manager through its CLI:
// `pm2 jlist` for state and `pm2 start|stop|restart` for control.
package pm2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrNotFound is returned when the app is not registered in PM2.
var ErrNotFound = errors.New("app not found in pm2")

// Process statuses reported by PM2.
const (
	StatusOnline    = "online"
	StatusStopping  = "stopping"
	StatusStopped   = "stopped"
	StatusLaunching = "launching"
	StatusErrored   = "errored"
)

// Monit is the resource usage PM2 samples for a process.
type Monit struct {
	Memory uint64  `json:"memory"` // bytes
	CPU    float64 `json:"cpu"`    // percent
}

// Env is the subset of pm2_env the bot uses.
type Env struct {
	Status           string `json:"status"`
	PMUptime         int64  `json:"pm_uptime"` // unix millis of the last start
	RestartTime      int    `json:"restart_time"`
	UnstableRestarts int    `json:"unstable_restarts"`
	OutLogPath       string `json:"pm_out_log_path"`
	ErrLogPath       string `json:"pm_err_log_path"`
}

// Process is one entry of `pm2 jlist`.
type Process struct {
	Name  string `json:"name"`
	PMID  int    `json:"pm_id"`
	PID   int    `json:"pid"`
	Monit Monit  `json:"monit"`
	Env   Env    `json:"pm2_env"`
}

// MemoryMB returns the resident memory in megabytes.
func (p Process) MemoryMB() float64 {
	return float64(p.Monit.Memory) / 1024 / 1024
}

// Uptime returns how long the process has been up, or 0 when it is not online.
func (p Process) Uptime(now time.Time) time.Duration {
	if p.Env.Status != StatusOnline || p.Env.PMUptime == 0 {
		return 0
	}
	return now.Sub(time.UnixMilli(p.Env.PMUptime))
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Client wraps the pm2 CLI.
type Client struct {
	bin     string
	run     Runner
	timeout time.Duration
}

// NewClient returns a client for the pm2 binary at bin. A nil run uses ExecRunner.
func NewClient(bin string, run Runner) *Client {
	if bin == "" {
		bin = "pm2"
	}
	if run == nil {
		run = ExecRunner
	}
	return &Client{bin: bin, run: run, timeout: 30 * time.Second}
}

// List returns every process known to PM2.
func (c *Client) List(ctx context.Context) ([]Process, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.run(ctx, c.bin, "jlist")
	if err != nil {
		return nil, err
	}
	return parseList(out)
}

// Find returns the process named name, or ErrNotFound.
func (c *Client) Find(ctx context.Context, name string) (Process, error) {
	list, err := c.List(ctx)
	if err != nil {
		return Process{}, err
	}
	for _, p := range list {
		if p.Name == name {
			return p, nil
		}
	}
	return Process{}, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// Start starts the app.
func (c *Client) Start(ctx context.Context, name string) error {
	return c.control(ctx, "start", name)
}

// Stop stops the app.
func (c *Client) Stop(ctx context.Context, name string) error {
	return c.control(ctx, "stop", name)
}

// Restart restarts the app.
func (c *Client) Restart(ctx context.Context, name string) error {
	return c.control(ctx, "restart", name)
}

func (c *Client) control(ctx context.Context, action, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.run(ctx, c.bin, action, name); err != nil {
		return fmt.Errorf("pm2 %s %s: %w", action, name, err)
	}
	return nil
}

// parseList decodes jlist output. Anything PM2 prints before the JSON array
// (update notices, daemon spawn messages) is skipped.
func parseList(out []byte) ([]Process, error) {
	start := bytes.IndexByte(out, '[')
	if start < 0 {
		return nil, fmt.Errorf("pm2 jlist: no JSON array in output")
	}
	var list []Process
	if err := json.Unmarshal(out[start:], &list); err != nil {
		return nil, fmt.Errorf("pm2 jlist: %w", err)
	}
	return list, nil
}
