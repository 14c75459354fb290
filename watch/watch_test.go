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

package watch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestWatch(t *testing.T) {
	pollFrequency := 10 * time.Millisecond

	Convey("Given a file to watch", t, func() {
		path := filepath.Join(t.TempDir(), "sentinel")
		So(os.WriteFile(path, nil, 0600), ShouldBeNil)

		start := time.Now().Add(-time.Hour).Truncate(time.Second)
		So(os.Chtimes(path, start, start), ShouldBeNil)

		changes := make(chan time.Time, 10)

		w, err := New(path, func(mtime time.Time) { changes <- mtime }, pollFrequency)
		So(err, ShouldBeNil)

		defer w.Stop()

		So(w.Mtime().Equal(start), ShouldBeTrue)

		Convey("The callback is called when its mtime changes", func() {
			later := start.Add(time.Minute)
			So(os.Chtimes(path, later, later), ShouldBeNil)

			select {
			case mtime := <-changes:
				So(mtime.Equal(later), ShouldBeTrue)
			case <-time.After(time.Second):
				So("no callback", ShouldBeBlank)
			}

			So(w.Mtime().Equal(later), ShouldBeTrue)
		})

		Convey("The callback isn't called when nothing changes", func() {
			<-time.After(5 * pollFrequency)
			So(len(changes), ShouldEqual, 0)
		})

		Convey("A missing file is ignored until it comes back", func() {
			So(os.Remove(path), ShouldBeNil)
			<-time.After(5 * pollFrequency)
			So(len(changes), ShouldEqual, 0)

			So(os.WriteFile(path, nil, 0600), ShouldBeNil)

			select {
			case <-changes:
			case <-time.After(time.Second):
				So("no callback", ShouldBeBlank)
			}
		})

		Convey("Nothing is called after Stop", func() {
			w.Stop()
			w.Stop()

			later := start.Add(time.Minute)
			So(os.Chtimes(path, later, later), ShouldBeNil)

			<-time.After(5 * pollFrequency)
			So(len(changes), ShouldEqual, 0)
		})
	})

	Convey("Watching a file that doesn't exist fails", t, func() {
		_, err := New(filepath.Join(t.TempDir(), "missing"), func(time.Time) {}, pollFrequency)
		So(err, ShouldNotBeNil)
	})

	Convey("Watching with a poll frequency that isn't positive fails", t, func() {
		path := filepath.Join(t.TempDir(), "sentinel")
		So(os.WriteFile(path, nil, 0600), ShouldBeNil)

		for _, freq := range []time.Duration{0, -time.Second} {
			w, err := New(path, func(time.Time) {}, freq)
			So(errors.Is(err, ErrBadPollFrequency), ShouldBeTrue)
			So(w, ShouldBeNil)
		}
	})
}
