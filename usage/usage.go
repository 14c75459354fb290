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

// package usage holds the disk usage records we measure, and a concurrency-safe
// cache of them keyed on their identity.

package usage

import "time"

// KiB is the number of bytes in the unit du reports sizes in.
const KiB = 1024

// Record is a measurement that can be held in a Cache. Two records with the
// same Key are the same entry, regardless of their size.
type Record interface {
	// Key returns the identity of the record.
	Key() string

	// Location returns the directory that was measured.
	Location() string
}

// DirUsage is the disk usage of a directory, identified by its path.
type DirUsage struct {
	Label   string
	Path    string
	Mount   string // the mount point Path is on, if known
	SizeKB  uint64
	Updated time.Time
}

// Key returns the Path.
func (d DirUsage) Key() string { return d.Path }

// Location returns the Path.
func (d DirUsage) Location() string { return d.Path }

// Size returns the usage in bytes.
func (d DirUsage) Size() uint64 { return d.SizeKB * KiB }

// JobUsage is the disk usage of a job's root directory, identified by the
// job's full name.
type JobUsage struct {
	FullName string
	Path     string
	SizeKB   uint64
	Updated  time.Time
}

// Key returns the FullName.
func (j JobUsage) Key() string { return j.FullName }

// Location returns the Path.
func (j JobUsage) Location() string { return j.Path }

// Size returns the usage in bytes.
func (j JobUsage) Size() uint64 { return j.SizeKB * KiB }
