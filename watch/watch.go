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

// package watch polls a file for changes to its mtime.

package watch

import (
	"os"
	"sync"
	"time"
)

// Error is the custom error type for the watch package.
type Error string

func (e Error) Error() string { return string(e) }

// ErrBadPollFrequency is returned by New() if the poll frequency isn't
// positive.
const ErrBadPollFrequency = Error("poll frequency must be positive")

// Watcher calls a callback whenever the mtime of a file changes.
type Watcher struct {
	path          string
	cb            func(mtime time.Time)
	pollFrequency time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once

	mu    sync.RWMutex
	mtime time.Time
}

// New returns a Watcher that checks the mtime of the given path every
// pollFrequency, and calls the given callback with the new mtime whenever it
// changes. A failed check (eg. the file being temporarily absent) is ignored.
//
// It returns an error if the path can't be checked right away, or
// ErrBadPollFrequency if pollFrequency isn't positive.
func New(path string, cb func(mtime time.Time), pollFrequency time.Duration) (*Watcher, error) {
	if pollFrequency <= 0 {
		return nil, ErrBadPollFrequency
	}

	mtime, err := getFileMtime(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:          path,
		cb:            cb,
		pollFrequency: pollFrequency,
		stopCh:        make(chan struct{}),
		mtime:         mtime,
	}

	go w.poll()

	return w, nil
}

func getFileMtime(path string) (time.Time, error) {
	st, err := os.Lstat(path)
	if err != nil {
		return time.Time{}, err
	}

	return st.ModTime(), nil
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.pollFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) check() {
	select {
	case <-w.stopCh:
		return
	default:
	}

	mtime, err := getFileMtime(w.path)
	if err != nil {
		return
	}

	w.mu.Lock()
	changed := !mtime.Equal(w.mtime)
	w.mtime = mtime
	w.mu.Unlock()

	if changed {
		w.cb(mtime)
	}
}

// Mtime returns the latest mtime of our file.
func (w *Watcher) Mtime() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.mtime
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}
