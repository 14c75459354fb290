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

// package jobs describes the registry of jobs whose directories we measure,
// and provides a filesystem-backed implementation of it.

package jobs

import "context"

// Error is the custom error type for the jobs package.
type Error string

const (
	// ErrRegistryUnavailable is returned when the registry isn't in a state to
	// answer queries.
	ErrRegistryUnavailable = Error("job registry unavailable")

	// ErrForbidden is returned when an operation needs more privilege than was
	// supplied.
	ErrForbidden = Error("insufficient privilege")

	// ErrJobNotFound is returned when no job has the requested full name.
	ErrJobNotFound = Error("job not found")
)

func (e Error) Error() string { return string(e) }

// Privilege is the capability a registry query is made with. It is always
// passed explicitly.
type Privilege int

const (
	// Caller is the privilege of whoever triggered an operation.
	Caller Privilege = iota

	// System may see every job, regardless of who triggered the operation.
	System
)

func (p Privilege) String() string {
	if p == System {
		return "system"
	}

	return "caller"
}

// Job is something with a stable identity that owns a directory tree.
type Job interface {
	// FullName is the job's unique identity.
	FullName() string

	// RootDir is the directory the job keeps its data in.
	RootDir() string

	// TopLevel reports if the job is eligible for independent disk
	// accounting.
	TopLevel() bool

	// Clean rotates the job's logs and build artefacts.
	Clean(ctx context.Context) error
}

// Registry supplies jobs.
type Registry interface {
	// Jobs returns every job.
	Jobs(ctx context.Context, priv Privilege) ([]Job, error)

	// Lookup returns the job with the given full name, or an error wrapping
	// ErrJobNotFound.
	Lookup(ctx context.Context, priv Privilege, fullName string) (Job, error) //nolint:ireturn
}
