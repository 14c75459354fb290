/*******************************************************************************
 * Copyright (c) 2026 Genome Research Ltd.
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

// package monitor is the service that owns the directory and job usage caches,
// refreshes them in the background when they get stale, and serves snapshots
// of them without ever blocking on a refresh.

package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dustin/go-humanize" //nolint:misspell
	"github.com/hako/durafmt"
	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/quickdu/history"
	"github.com/wtsi-hgi/quickdu/internal/logutil"
	"github.com/wtsi-hgi/quickdu/jobs"
	"github.com/wtsi-hgi/quickdu/reconcile"
	"github.com/wtsi-hgi/quickdu/refresh"
	"github.com/wtsi-hgi/quickdu/usage"
)

// Error is the custom error type for the monitor package.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrNoRegistry is returned by New() if Config has no Registry.
	ErrNoRegistry = Error("a job registry is required")

	// ErrNoRoot is returned by New() if Config has no Root.
	ErrNoRoot = Error("a workspace root directory is required")

	// ErrNoSizer is returned by New() if Config has no Sizer.
	ErrNoSizer = Error("a sizer is required")
)

const (
	// DefaultQuietPeriod is how old the data has to be before a read triggers
	// a refresh.
	DefaultQuietPeriod = 15 * time.Minute

	never         = "never"
	durationUnits = 2
)

// History is where completed runs get recorded.
type History interface {
	Record(run history.Run) error
	Recent(n int) ([]history.Run, error)
}

// Config configures a Monitor. Registry, Sizer and Root are required.
type Config struct {
	Registry jobs.Registry
	Sizer    reconcile.Sizer

	Root      string
	RootLabel string // defaults to reconcile.RootLabel
	Temp      string // not measured if blank
	TempLabel string // defaults to reconcile.TempLabel

	QuietPeriod time.Duration // defaults to DefaultQuietPeriod

	// Throttle is the pause after each measurement. 0 means
	// reconcile.DefaultThrottle; negative means no pause.
	Throttle time.Duration

	Logger  log15.Logger
	History History
	Clock   func() time.Time
}

func (c *Config) setDefaults() {
	if c.RootLabel == "" {
		c.RootLabel = reconcile.RootLabel
	}

	if c.TempLabel == "" {
		c.TempLabel = reconcile.TempLabel
	}

	if c.QuietPeriod <= 0 {
		c.QuietPeriod = DefaultQuietPeriod
	}

	if c.Throttle == 0 {
		c.Throttle = reconcile.DefaultThrottle
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	c.Logger = logutil.OrDiscard(c.Logger)
}

func (c *Config) validate() error {
	switch {
	case c.Registry == nil:
		return ErrNoRegistry
	case c.Sizer == nil:
		return ErrNoSizer
	case c.Root == "":
		return ErrNoRoot
	}

	return nil
}

// Monitor holds the usage caches and the scheduler that refreshes them.
type Monitor struct {
	ctx        context.Context //nolint:containedctx
	cfg        Config
	dirs       *usage.Cache[usage.DirUsage]
	jobs       *usage.Cache[usage.JobUsage]
	reconciler *reconcile.Reconciler
	scheduler  *refresh.Scheduler

	mu      sync.RWMutex
	lastErr error
	cleans  sync.WaitGroup
}

// New returns a Monitor with empty caches. Nothing is measured until the
// first read or Refresh(). Background work stops when ctx is done.
func New(ctx context.Context, cfg Config) (*Monitor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	m := &Monitor{
		ctx:        ctx,
		cfg:        cfg,
		dirs:       usage.NewCache[usage.DirUsage](),
		jobs:       usage.NewCache[usage.JobUsage](),
		reconciler: reconcile.New(cfg.Sizer, cfg.Throttle, cfg.Logger),
	}

	m.reconciler.Now = cfg.Clock

	m.scheduler = refresh.New(ctx, m.refresh,
		refresh.WithLogger(cfg.Logger),
		refresh.WithClock(cfg.Clock),
		refresh.WithOnComplete(m.completed),
	)

	return m, nil
}

// refresh is the body of every run: jobs first, then directories.
func (m *Monitor) refresh(ctx context.Context) error {
	live, err := m.cfg.Registry.Jobs(ctx, jobs.System)
	if err != nil {
		return err
	}

	if err = m.reconciler.Jobs(ctx, live, m.jobs); err != nil {
		return err
	}

	targets, err := reconcile.DirectoryTargets(m.cfg.Root, m.cfg.RootLabel, m.cfg.Temp, m.cfg.TempLabel)
	if err != nil {
		return err
	}

	return m.reconciler.Directories(ctx, targets, m.dirs)
}

func (m *Monitor) completed(run refresh.Run) {
	m.mu.Lock()
	m.lastErr = run.Err
	m.mu.Unlock()

	if m.cfg.History == nil {
		return
	}

	record := history.Run{
		ID:    run.ID,
		Start: run.Start,
		End:   run.End,
		Dirs:  m.dirs.Len(),
		Jobs:  m.jobs.Len(),
	}

	if run.Err != nil {
		record.Error = run.Err.Error()
	}

	if err := m.cfg.History.Record(record); err != nil {
		m.cfg.Logger.Warn("failed to record run history", "run", run.ID, "err", err)
	}
}

// triggerIfStale requests a refresh if the last one ended at least a quiet
// period ago.
func (m *Monitor) triggerIfStale() {
	if m.cfg.Clock().Sub(m.scheduler.LastRunEnd()) >= m.cfg.QuietPeriod {
		m.scheduler.Request()
	}
}

// DirectoryUsages returns the current directory usages, sorted by path. If the
// data is stale a refresh is started in the background first, but its results
// won't be in what is returned.
func (m *Monitor) DirectoryUsages() []usage.DirUsage {
	m.triggerIfStale()

	return m.dirs.Snapshot()
}

// JobUsages is like DirectoryUsages(), but for jobs, sorted by full name.
func (m *Monitor) JobUsages() []usage.JobUsage {
	m.triggerIfStale()

	return m.jobs.Snapshot()
}

// Refresh starts a refresh now, returning false if one was already running.
func (m *Monitor) Refresh() bool {
	return m.scheduler.Request()
}

// Wait blocks until any running refresh has finished, or ctx is done.
func (m *Monitor) Wait(ctx context.Context) error {
	return m.scheduler.Wait(ctx)
}

// IsRunning returns true while a refresh is in progress.
func (m *Monitor) IsRunning() bool {
	return m.scheduler.IsRunning()
}

// LastRunStart returns when the latest refresh started.
func (m *Monitor) LastRunStart() time.Time {
	return m.scheduler.LastRunStart()
}

// LastRunEnd returns when the latest successful refresh ended.
func (m *Monitor) LastRunEnd() time.Time {
	return m.scheduler.LastRunEnd()
}

// LastError returns the reason the latest refresh failed, or nil.
func (m *Monitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lastErr
}

// Since describes how long ago the latest refresh ended, eg. "3 minutes ago".
func (m *Monitor) Since() string {
	end := m.LastRunEnd()
	if end.IsZero() {
		return never
	}

	return humanize.RelTime(end, m.cfg.Clock(), "ago", "from now")
}

// Duration describes how long the latest refresh took, or has taken so far if
// it's still running.
func (m *Monitor) Duration() string {
	start, end := m.LastRunStart(), m.LastRunEnd()
	if start.IsZero() {
		return never
	}

	if end.Before(start) {
		end = m.cfg.Clock()
	}

	if end.Sub(start) < time.Second {
		return "less than a second"
	}

	return durafmt.Parse(end.Sub(start).Truncate(time.Second)).LimitFirstN(durationUnits).String()
}

// RecentRuns returns up to n of the latest refreshes, newest first.
func (m *Monitor) RecentRuns(n int) ([]history.Run, error) {
	if m.cfg.History == nil {
		return nil, history.ErrNoStore
	}

	return m.cfg.History.Recent(n)
}

// Clean finds the job with the given full name and rotates its logs and
// build artefacts in the background. Only failing to find the job is
// reported; clean failures are logged.
func (m *Monitor) Clean(fullName string) error {
	job, err := m.cfg.Registry.Lookup(m.ctx, jobs.Caller, fullName)
	if err != nil {
		return err
	}

	m.cleans.Add(1)

	go func() {
		defer m.cleans.Done()

		if err := job.Clean(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.cfg.Logger.Warn("log rotation failed", "job", fullName, "err", err)
		}
	}()

	return nil
}

// WaitForCleans blocks until all cleans started by Clean() have finished.
func (m *Monitor) WaitForCleans() {
	m.cleans.Wait()
}
