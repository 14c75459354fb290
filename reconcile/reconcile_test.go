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

package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/wtsi-hgi/quickdu/du"
	"github.com/wtsi-hgi/quickdu/jobs"
	"github.com/wtsi-hgi/quickdu/usage"
)

type fakeSizer struct {
	mu       sync.Mutex
	sizes    map[string]uint64
	failures map[string]error
	measured []string
	onCall   func()
}

func newFakeSizer() *fakeSizer {
	return &fakeSizer{
		sizes:    make(map[string]uint64),
		failures: make(map[string]error),
	}
}

func (f *fakeSizer) Measure(ctx context.Context, path string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.measured = append(f.measured, path)

	if f.onCall != nil {
		f.onCall()
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err, ok := f.failures[path]; ok {
		return 0, err
	}

	return f.sizes[path], nil
}

type fakeJob struct {
	name     string
	dir      string
	topLevel bool
}

func (j *fakeJob) FullName() string              { return j.name }
func (j *fakeJob) RootDir() string               { return j.dir }
func (j *fakeJob) TopLevel() bool                { return j.topLevel }
func (j *fakeJob) Clean(_ context.Context) error { return nil }

func TestJobs(t *testing.T) {
	ctx := context.Background()

	Convey("Given a Reconciler and some job directories", t, func() {
		root := t.TempDir()
		sizer := newFakeSizer()
		r := New(sizer, 0, nil)
		refTime := time.Unix(1700000000, 0)
		r.Now = func() time.Time { return refTime }

		cache := usage.NewCache[usage.JobUsage]()

		jobA := newFakeJobDir(t, root, "a")
		jobB := newFakeJobDir(t, root, "b")
		sizer.sizes[jobA.dir] = 512
		sizer.sizes[jobB.dir] = 1024

		Convey("An empty registry leaves an empty cache", func() {
			So(r.Jobs(ctx, nil, cache), ShouldBeNil)
			So(cache.Len(), ShouldEqual, 0)
		})

		Convey("Live top level jobs are measured and cached", func() {
			So(r.Jobs(ctx, []jobs.Job{jobA, jobB}, cache), ShouldBeNil)

			So(cache.Snapshot(), ShouldResemble, []usage.JobUsage{
				{FullName: "a", Path: jobA.dir, SizeKB: 512, Updated: refTime},
				{FullName: "b", Path: jobB.dir, SizeKB: 1024, Updated: refTime},
			})

			Convey("Reconciling again with new sizes updates in place", func() {
				sizer.sizes[jobA.dir] = 2048

				So(r.Jobs(ctx, []jobs.Job{jobA, jobB}, cache), ShouldBeNil)
				So(cache.Len(), ShouldEqual, 2)

				u, ok := cache.Get("a")
				So(ok, ShouldBeTrue)
				So(u.SizeKB, ShouldEqual, 2048)
			})

			Convey("Jobs that are no longer live are removed", func() {
				So(r.Jobs(ctx, []jobs.Job{jobB}, cache), ShouldBeNil)

				_, ok := cache.Get("a")
				So(ok, ShouldBeFalse)
				So(cache.Len(), ShouldEqual, 1)
			})

			Convey("Jobs whose directory was deleted are removed even if the pass is then cancelled", func() {
				So(os.RemoveAll(jobA.dir), ShouldBeNil)

				cctx, cancel := context.WithCancel(ctx)
				sizer.onCall = cancel

				err := r.Jobs(cctx, []jobs.Job{jobA, jobB}, cache)
				So(errors.Is(err, context.Canceled), ShouldBeTrue)

				_, ok := cache.Get("a")
				So(ok, ShouldBeFalse)

				_, ok = cache.Get("b")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("Jobs that aren't top level, or that measure as empty, aren't cached", func() {
			jobA.topLevel = false
			sizer.sizes[jobB.dir] = 0

			So(r.Jobs(ctx, []jobs.Job{jobA, jobB}, cache), ShouldBeNil)
			So(cache.Len(), ShouldEqual, 0)
			So(sizer.measured, ShouldResemble, []string{jobB.dir})
		})

		Convey("Measurement failures skip just that job", func() {
			sizer.failures[jobA.dir] = du.ErrMeasurement

			So(r.Jobs(ctx, []jobs.Job{jobA, jobB}, cache), ShouldBeNil)
			So(cache.Len(), ShouldEqual, 1)

			_, ok := cache.Get("b")
			So(ok, ShouldBeTrue)
		})

		Convey("The throttle pauses between jobs and can be interrupted", func() {
			r.Throttle = 20 * time.Millisecond

			start := time.Now()
			So(r.Jobs(ctx, []jobs.Job{jobA, jobB}, cache), ShouldBeNil)
			So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 40*time.Millisecond)

			r.Throttle = time.Hour

			cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			err := r.Jobs(cctx, []jobs.Job{jobA, jobB}, cache)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}

func TestDirectories(t *testing.T) {
	ctx := context.Background()

	Convey("Given a Reconciler and a workspace", t, func() {
		root := t.TempDir()
		tmp := t.TempDir()
		sizer := newFakeSizer()
		r := New(sizer, 0, nil)
		r.Mounts = func() (du.MountPoints, error) { return du.NewMountPoints("/"), nil }

		cache := usage.NewCache[usage.DirUsage]()

		sub1 := filepath.Join(root, "jobs")
		sub2 := filepath.Join(root, "logs")
		So(os.Mkdir(sub1, 0700), ShouldBeNil)
		So(os.Mkdir(sub2, 0700), ShouldBeNil)
		So(os.WriteFile(filepath.Join(root, "config.xml"), nil, 0600), ShouldBeNil)

		for path, size := range map[string]uint64{root: 300, sub1: 100, sub2: 200, tmp: 50} {
			sizer.sizes[path] = size
		}

		Convey("DirectoryTargets lists the root, its subdirectories and tmp", func() {
			targets, err := DirectoryTargets(root, RootLabel, tmp, TempLabel)
			So(err, ShouldBeNil)
			So(targets, ShouldResemble, map[string]string{
				root: "WORKSPACE",
				sub1: "WORKSPACE/jobs",
				sub2: "WORKSPACE/logs",
				tmp:  "TMPDIR",
			})

			Convey("which can all be measured and cached", func() {
				So(r.Directories(ctx, targets, cache), ShouldBeNil)
				So(cache.Len(), ShouldEqual, 4)

				u, ok := cache.Get(sub2)
				So(ok, ShouldBeTrue)
				So(u.Label, ShouldEqual, "WORKSPACE/logs")
				So(u.SizeKB, ShouldEqual, 200)
				So(u.Mount, ShouldEqual, "/")

				Convey("and a deleted subdirectory disappears on the next pass", func() {
					So(os.RemoveAll(sub1), ShouldBeNil)

					targets, err = DirectoryTargets(root, RootLabel, tmp, TempLabel)
					So(err, ShouldBeNil)
					So(r.Directories(ctx, targets, cache), ShouldBeNil)

					_, ok = cache.Get(sub1)
					So(ok, ShouldBeFalse)
					So(cache.Len(), ShouldEqual, 3)
				})

				Convey("and directories no longer targeted are removed", func() {
					So(r.Directories(ctx, map[string]string{root: RootLabel}, cache), ShouldBeNil)
					So(cache.Len(), ShouldEqual, 1)
				})
			})

			Convey("a failure measuring one target leaves the others sized", func() {
				sizer.failures[sub1] = du.ErrMeasurement

				So(r.Directories(ctx, map[string]string{sub1: "a", sub2: "b", tmp: "c"}, cache), ShouldBeNil)
				So(cache.Len(), ShouldEqual, 2)

				u, _ := cache.Get(sub2)
				So(u.SizeKB, ShouldEqual, 200)

				u, _ = cache.Get(tmp)
				So(u.SizeKB, ShouldEqual, 50)
			})
		})

		Convey("A blank tmp is left out", func() {
			targets, err := DirectoryTargets(root, "HOME", "", TempLabel)
			So(err, ShouldBeNil)
			So(len(targets), ShouldEqual, 3)
			So(targets[root], ShouldEqual, "HOME")
		})

		Convey("An unreadable root is an error", func() {
			_, err := DirectoryTargets(filepath.Join(root, "missing"), RootLabel, tmp, TempLabel)
			So(errors.Is(err, ErrEnvironmentUnavailable), ShouldBeTrue)
		})

		Convey("Failing to find mount points leaves Mount blank", func() {
			r.Mounts = func() (du.MountPoints, error) { return nil, os.ErrPermission }

			So(r.Directories(ctx, map[string]string{tmp: TempLabel}, cache), ShouldBeNil)

			u, ok := cache.Get(tmp)
			So(ok, ShouldBeTrue)
			So(u.Mount, ShouldBeBlank)
		})
	})
}

func newFakeJobDir(t *testing.T, root, name string) *fakeJob {
	t.Helper()

	dir := filepath.Join(root, name)

	if err := os.Mkdir(dir, 0700); err != nil {
		t.Fatal(err)
	}

	return &fakeJob{name: name, dir: dir, topLevel: true}
}
