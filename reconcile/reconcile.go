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

// package reconcile brings caches of disk usage records up to date with the
// set of directories and jobs that should currently be tracked.

package reconcile

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/quickdu/du"
	"github.com/wtsi-hgi/quickdu/internal/logutil"
	"github.com/wtsi-hgi/quickdu/jobs"
	"github.com/wtsi-hgi/quickdu/usage"
)

// DefaultThrottle is the pause between measurements that keeps a pass from
// saturating disk IO.
const DefaultThrottle = time.Second

// Sizer measures the disk usage of a directory in KB.
type Sizer interface {
	Measure(ctx context.Context, path string) (uint64, error)
}

// Reconciler measures targets one at a time, pausing for Throttle after each.
type Reconciler struct {
	Sizer    Sizer
	Throttle time.Duration
	Logger   log15.Logger

	// Now is used to timestamp records; defaults to time.Now.
	Now func() time.Time

	// Mounts is used to find the mount points of directories; defaults to
	// du.LoadMounts.
	Mounts func() (du.MountPoints, error)
}

// New returns a Reconciler that uses the given Sizer and throttle.
func New(sizer Sizer, throttle time.Duration, logger log15.Logger) *Reconciler {
	return &Reconciler{
		Sizer:    sizer,
		Throttle: throttle,
		Logger:   logutil.OrDiscard(logger),
		Now:      time.Now,
		Mounts:   du.LoadMounts,
	}
}

// Jobs removes records from the cache whose path no longer exists or whose
// job isn't amongst the live ones, then measures the root directory of each
// top level live job and stores the result.
//
// Jobs that can't be measured are logged and skipped. An error is only
// returned if ctx is cancelled, in which case the cache is left as it was at
// that point.
func (r *Reconciler) Jobs(ctx context.Context, live []jobs.Job, cache *usage.Cache[usage.JobUsage]) error {
	logger := r.logger()

	names := make(map[string]bool, len(live))

	for _, job := range live {
		names[job.FullName()] = true
	}

	removed := cache.Prune(func(u usage.JobUsage) bool {
		return !names[u.FullName] || !exists(u.Path)
	})

	logger.Debug("removed stale job usages", "count", removed)

	for _, job := range live {
		if !job.TopLevel() {
			continue
		}

		if err := r.upsertJob(ctx, job, cache); err != nil {
			return err
		}

		if err := r.pause(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reconciler) upsertJob(ctx context.Context, job jobs.Job, cache *usage.Cache[usage.JobUsage]) error {
	size, ok, err := r.measure(ctx, job.RootDir())
	if err != nil || !ok {
		return err
	}

	cache.Upsert(usage.JobUsage{
		FullName: job.FullName(),
		Path:     job.RootDir(),
		SizeKB:   size,
		Updated:  r.now(),
	})

	return nil
}

// Directories is like Jobs(), but for the given map of directory paths to
// display labels.
func (r *Reconciler) Directories(ctx context.Context, targets map[string]string,
	cache *usage.Cache[usage.DirUsage]) error {
	logger := r.logger()

	removed := cache.Prune(func(u usage.DirUsage) bool {
		_, ok := targets[u.Path]

		return !ok || !exists(u.Path)
	})

	logger.Debug("removed stale directory usages", "count", removed)

	mounts := r.mountPoints()

	for _, path := range sortedKeys(targets) {
		size, ok, err := r.measure(ctx, path)
		if err != nil {
			return err
		}

		if ok {
			cache.Upsert(usage.DirUsage{
				Label:   targets[path],
				Path:    path,
				Mount:   mounts.PrefixOf(path),
				SizeKB:  size,
				Updated: r.now(),
			})
		}

		if err := r.pause(ctx); err != nil {
			return err
		}
	}

	return nil
}

// measure returns the size of path, and true if it is usable. Measurement
// failures are logged and treated as unusable; only context errors are
// returned.
func (r *Reconciler) measure(ctx context.Context, path string) (uint64, bool, error) {
	size, err := r.Sizer.Measure(ctx, path)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, false, ctxErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false, err
	}

	if err != nil {
		r.logger().Warn("could not measure disk usage", "path", path, "err", err)

		return 0, false, nil
	}

	return size, size > 0, nil
}

// pause waits for our Throttle duration, returning early with ctx's error if
// it is cancelled.
func (r *Reconciler) pause(ctx context.Context) error {
	if r.Throttle <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(r.Throttle)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) mountPoints() du.MountPoints {
	if r.Mounts == nil {
		return nil
	}

	mounts, err := r.Mounts()
	if err != nil {
		r.logger().Debug("could not determine mount points", "err", err)
	}

	return mounts
}

func (r *Reconciler) logger() log15.Logger { //nolint:ireturn
	return logutil.OrDiscard(r.Logger)
}

func (r *Reconciler) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}

	return r.Now()
}

func exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))

	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
