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

package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDirRegistry(t *testing.T) {
	ctx := context.Background()

	Convey("Given a directory of jobs and folders", t, func() {
		root := t.TempDir()

		mkdirs(t, root,
			"alpha/builds",
			"beta",
			"team/jobs/gamma/builds",
			"team/jobs/sub/jobs/delta",
		)

		So(os.WriteFile(filepath.Join(root, "notajob"), nil, 0600), ShouldBeNil)

		r := NewDirRegistry(root, 2, nil)
		So(r.Root(), ShouldEqual, root)

		Convey("System privilege lists every job with folder-qualified names", func() {
			found, err := r.Jobs(ctx, System)
			So(err, ShouldBeNil)

			names := make([]string, len(found))

			for n, job := range found {
				names[n] = job.FullName()
				So(job.TopLevel(), ShouldBeTrue)
			}

			sort.Strings(names)
			So(names, ShouldResemble, []string{"alpha", "beta", "team/gamma", "team/sub/delta"})
		})

		Convey("Caller privilege can't list jobs", func() {
			_, err := r.Jobs(ctx, Caller)
			So(errors.Is(err, ErrForbidden), ShouldBeTrue)
		})

		Convey("A cancelled context stops the listing", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := r.Jobs(cctx, System)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Convey("You can Lookup jobs by full name", func() {
			job, err := r.Lookup(ctx, Caller, "team/sub/delta")
			So(err, ShouldBeNil)
			So(job.FullName(), ShouldEqual, "team/sub/delta")
			So(job.RootDir(), ShouldEqual, filepath.Join(root, "team", "jobs", "sub", "jobs", "delta"))

			for _, name := range []string{"", "missing", "team", "team/sub", "notajob", "../beta", "team//gamma", "/alpha"} {
				_, err = r.Lookup(ctx, Caller, name)
				So(errors.Is(err, ErrJobNotFound), ShouldBeTrue)
			}
		})

		Convey("Cleaning a job keeps only its newest builds", func() {
			builds := filepath.Join(root, "alpha", "builds")

			for _, n := range []int{1, 2, 3, 10, 11} {
				mkdirs(t, builds, strconv.Itoa(n))
			}

			mkdirs(t, builds, "lastSuccessfulBuild")
			So(os.WriteFile(filepath.Join(builds, "legacyIds"), nil, 0600), ShouldBeNil)

			job, err := r.Lookup(ctx, Caller, "alpha")
			So(err, ShouldBeNil)
			So(job.Clean(ctx), ShouldBeNil)

			entries, err := os.ReadDir(builds)
			So(err, ShouldBeNil)

			var remaining []string
			for _, entry := range entries {
				remaining = append(remaining, entry.Name())
			}

			sort.Strings(remaining)
			So(remaining, ShouldResemble, []string{"10", "11", "lastSuccessfulBuild", "legacyIds"})

			Convey("and cleaning again changes nothing", func() {
				So(job.Clean(ctx), ShouldBeNil)

				entries, err = os.ReadDir(builds)
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 4)
			})
		})

		Convey("Cleaning deletes builds by their real names, even if zero padded", func() {
			builds := filepath.Join(root, "alpha", "builds")

			mkdirs(t, builds, "001", "002", "003", "07", "7")

			job, err := r.Lookup(ctx, Caller, "alpha")
			So(err, ShouldBeNil)
			So(job.Clean(ctx), ShouldBeNil)

			entries, err := os.ReadDir(builds)
			So(err, ShouldBeNil)

			var remaining []string
			for _, entry := range entries {
				remaining = append(remaining, entry.Name())
			}

			sort.Strings(remaining)
			So(remaining, ShouldResemble, []string{"07", "7"})
		})

		Convey("Cleaning a job without builds does nothing", func() {
			job, err := r.Lookup(ctx, Caller, "beta")
			So(err, ShouldBeNil)
			So(job.Clean(ctx), ShouldBeNil)
		})
	})

	Convey("A registry with a missing root is unavailable", t, func() {
		r := NewDirRegistry(filepath.Join(t.TempDir(), "missing"), 0, nil)

		_, err := r.Jobs(ctx, System)
		So(errors.Is(err, ErrRegistryUnavailable), ShouldBeTrue)

		_, err = r.Lookup(ctx, Caller, "job")
		So(errors.Is(err, ErrRegistryUnavailable), ShouldBeTrue)
	})

	Convey("Privileges have names", t, func() {
		So(System.String(), ShouldEqual, "system")
		So(Caller.String(), ShouldEqual, "caller")
	})
}

func mkdirs(t *testing.T, base string, dirs ...string) {
	t.Helper()

	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(base, dir), 0700); err != nil {
			t.Fatal(err)
		}
	}
}
