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

package history

import (
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	Convey("Given a new Store", t, func() {
		path := filepath.Join(t.TempDir(), "history.db")

		s, err := Open(path)
		So(err, ShouldBeNil)

		defer func() { s.Close() }()

		Convey("Recent returns nothing", func() {
			runs, err := s.Recent(10)
			So(err, ShouldBeNil)
			So(runs, ShouldBeEmpty)
		})

		Convey("You can record runs and get them back newest first", func() {
			base := time.Unix(1700000000, 0)

			for i := 0; i < 5; i++ {
				start := base.Add(time.Duration(i) * time.Minute)

				So(s.Record(Run{
					ID:    string(rune('a' + i)),
					Start: start,
					End:   start.Add(time.Duration(i) * time.Second),
					Dirs:  i,
					Jobs:  i * 2,
				}), ShouldBeNil)
			}

			So(s.Record(Run{
				ID:    "failed",
				Start: base.Add(time.Hour),
				End:   base.Add(time.Hour),
				Error: "workspace unavailable",
			}), ShouldBeNil)

			runs, err := s.Recent(3)
			So(err, ShouldBeNil)
			So(len(runs), ShouldEqual, 3)

			So(runs[0].ID, ShouldEqual, "failed")
			So(runs[0].Failed(), ShouldBeTrue)
			So(runs[0].Duration(), ShouldEqual, 0)
			So(runs[0].Start.Equal(base.Add(time.Hour)), ShouldBeTrue)

			So(runs[1].ID, ShouldEqual, "e")
			So(runs[1].Failed(), ShouldBeFalse)
			So(runs[1].Dirs, ShouldEqual, 4)
			So(runs[1].Jobs, ShouldEqual, 8)
			So(runs[1].Duration(), ShouldEqual, 4*time.Second)

			So(runs[2].ID, ShouldEqual, "d")

			runs, err = s.Recent(100)
			So(err, ShouldBeNil)
			So(len(runs), ShouldEqual, 6)
			So(runs[5].ID, ShouldEqual, "a")

			Convey("which persist after reopening", func() {
				So(s.Close(), ShouldBeNil)

				s, err = Open(path)
				So(err, ShouldBeNil)

				runs, err = s.Recent(1)
				So(err, ShouldBeNil)
				So(len(runs), ShouldEqual, 1)
				So(runs[0].ID, ShouldEqual, "failed")

				So(s.Close(), ShouldBeNil)

				s, err = OpenReadOnly(path)
				So(err, ShouldBeNil)

				runs, err = s.Recent(2)
				So(err, ShouldBeNil)
				So(len(runs), ShouldEqual, 2)
				So(runs[1].ID, ShouldEqual, "e")
			})
		})
	})
}
