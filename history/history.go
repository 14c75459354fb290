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

// package history keeps an on-disk audit trail of refresh passes in a bolt
// database.

package history

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/ugorji/go/codec"
	bolt "go.etcd.io/bbolt"
)

// Error is the custom error type for the history package.
type Error string

func (e Error) Error() string { return string(e) }

// ErrNoStore is returned when run history is asked for but nothing is
// recording it.
const ErrNoStore = Error("no run history store configured")

const (
	dbOpenMode     = 0600
	dbOpenTimeout  = 5 * time.Second
	runsBucket     = "runs"
	sizeOfInt64Key = 8
)

// Run is the record of one refresh pass.
type Run struct {
	ID    string
	Start time.Time
	End   time.Time
	Error string
	Dirs  int
	Jobs  int
}

// Failed returns true if the pass did not complete.
func (r Run) Failed() bool {
	return r.Error != ""
}

// Duration returns how long the pass took.
func (r Run) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Store is a bolt database of Runs, keyed on their start time.
type Store struct {
	db *bolt.DB
	ch codec.Handle
}

// Open opens or creates the bolt database at the given path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, dbOpenMode, &bolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, err
	}

	if err = db.Update(func(tx *bolt.Tx) error {
		_, errc := tx.CreateBucketIfNotExists([]byte(runsBucket))

		return errc
	}); err != nil {
		return nil, errors.Join(err, db.Close())
	}

	return &Store{db: db, ch: new(codec.BincHandle)}, nil
}

// OpenReadOnly opens an existing bolt database at the given path for reading
// only. It fails if another process has the database open with Open().
func OpenReadOnly(path string) (*Store, error) {
	db, err := bolt.Open(path, dbOpenMode, &bolt.Options{Timeout: dbOpenTimeout, ReadOnly: true})
	if err != nil {
		return nil, err
	}

	return &Store{db: db, ch: new(codec.BincHandle)}, nil
}

// Record stores the given Run. A Run with the same start time as an existing
// one replaces it.
func (s *Store) Record(run Run) error {
	var encoded []byte

	if err := codec.NewEncoderBytes(&encoded, s.ch).Encode(run); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).Put(runKey(run.Start), encoded)
	})
}

func runKey(t time.Time) []byte {
	key := make([]byte, sizeOfInt64Key)
	binary.BigEndian.PutUint64(key, uint64(t.UnixNano())) //nolint:gosec

	return key
}

// Recent returns up to n of the most recently started Runs, newest first.
func (s *Store) Recent(n int) ([]Run, error) {
	var runs []Run

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))
		if b == nil {
			return nil
		}

		c := b.Cursor()

		for k, v := c.Last(); k != nil && len(runs) < n; k, v = c.Prev() {
			var run Run

			if err := codec.NewDecoderBytes(v, s.ch).Decode(&run); err != nil {
				return err
			}

			runs = append(runs, run)
		}

		return nil
	})

	return runs, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
