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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/quickdu/internal/logutil"
)

const (
	// DefaultKeepBuilds is the number of builds Clean() keeps if not told
	// otherwise.
	DefaultKeepBuilds = 10

	foldersDir = "jobs"
	buildsDir  = "builds"
	separator  = "/"
)

// DirRegistry is a Registry backed by a directory of job directories.
//
// Each directory beneath the root is a job, unless it has a "jobs"
// subdirectory, in which case it is a folder whose jobs are in that
// subdirectory. Full names are the folder and job names joined with "/".
type DirRegistry struct {
	root   string
	keep   int
	logger log15.Logger
}

// NewDirRegistry returns a DirRegistry for the given root directory. Cleaning
// a job will keep its newest keepBuilds builds; values less than 1 mean
// DefaultKeepBuilds.
func NewDirRegistry(root string, keepBuilds int, logger log15.Logger) *DirRegistry {
	if keepBuilds < 1 {
		keepBuilds = DefaultKeepBuilds
	}

	return &DirRegistry{
		root:   filepath.Clean(root),
		keep:   keepBuilds,
		logger: logutil.OrDiscard(logger),
	}
}

// Root returns the directory we find jobs in.
func (d *DirRegistry) Root() string {
	return d.root
}

// Jobs returns every job beneath our root. It requires System privilege.
func (d *DirRegistry) Jobs(ctx context.Context, priv Privilege) ([]Job, error) {
	if priv != System {
		return nil, fmt.Errorf("%w: listing all jobs needs %s privilege", ErrForbidden, System)
	}

	if err := d.ready(); err != nil {
		return nil, err
	}

	var found []Job

	if err := d.walk(ctx, d.root, "", &found); err != nil {
		return nil, err
	}

	return found, nil
}

func (d *DirRegistry) ready() error {
	if !isDir(d.root) {
		return fmt.Errorf("%w: %q is not a directory", ErrRegistryUnavailable, d.root)
	}

	return nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)

	return err == nil && fi.IsDir()
}

func (d *DirRegistry) walk(ctx context.Context, dir, prefix string, found *[]Job) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(dir, entry.Name())
		if !isDir(path) {
			continue
		}

		name := prefix + entry.Name()

		if folder := filepath.Join(path, foldersDir); isDir(folder) {
			if err := d.walk(ctx, folder, name+separator, found); err != nil {
				return err
			}

			continue
		}

		*found = append(*found, d.newJob(name, path))
	}

	return nil
}

func (d *DirRegistry) newJob(name, path string) *DirJob {
	return &DirJob{
		name:   name,
		dir:    path,
		keep:   d.keep,
		logger: d.logger.New("job", name),
	}
}

// Lookup returns the job with the given full name. Any privilege may look up
// a job.
func (d *DirRegistry) Lookup(_ context.Context, _ Privilege, fullName string) (Job, error) { //nolint:ireturn
	if err := d.ready(); err != nil {
		return nil, err
	}

	path, ok := d.pathOf(fullName)
	if !ok || !isDir(path) || isDir(filepath.Join(path, foldersDir)) {
		return nil, fmt.Errorf("%w: %q", ErrJobNotFound, fullName)
	}

	return d.newJob(fullName, path), nil
}

// pathOf converts a full name like "a/b/c" to root/a/jobs/b/jobs/c.
func (d *DirRegistry) pathOf(fullName string) (string, bool) {
	if fullName == "" {
		return "", false
	}

	parts := strings.Split(fullName, separator)
	elements := make([]string, 0, len(parts)*2) //nolint:mnd

	elements = append(elements, d.root)

	for n, part := range parts {
		if part == "" || part == "." || part == ".." || strings.ContainsRune(part, filepath.Separator) {
			return "", false
		}

		if n > 0 {
			elements = append(elements, foldersDir)
		}

		elements = append(elements, part)
	}

	return filepath.Join(elements...), true
}

// DirJob is a Job found by a DirRegistry.
type DirJob struct {
	name   string
	dir    string
	keep   int
	logger log15.Logger
}

// FullName returns the folder-qualified name of the job.
func (j *DirJob) FullName() string { return j.name }

// RootDir returns the job's directory.
func (j *DirJob) RootDir() string { return j.dir }

// TopLevel is always true; every job in a DirRegistry is addressable.
func (j *DirJob) TopLevel() bool { return true }

// Clean deletes all but the newest builds of this job, where builds are the
// numerically named directories in the job's "builds" directory.
func (j *DirJob) Clean(ctx context.Context) error {
	old, err := j.oldBuilds()
	if err != nil {
		return err
	}

	var (
		errm    *multierror.Error
		deleted int
	)

	for _, build := range old {
		if err := ctx.Err(); err != nil {
			return multierror.Append(errm, err).ErrorOrNil()
		}

		j.logger.Debug("deleting old build", "build", build)

		if err := os.RemoveAll(build); err != nil {
			errm = multierror.Append(errm, err)

			continue
		}

		deleted++
	}

	j.logger.Info("rotated builds", "deleted", deleted)

	return errm.ErrorOrNil()
}

// build is a numbered directory in a job's builds directory. The name may not
// be the canonical form of the number, eg. "007".
type build struct {
	number int
	name   string
}

func (j *DirJob) oldBuilds() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(j.dir, buildsDir))
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var builds []build

	for _, entry := range entries {
		n, errc := strconv.Atoi(entry.Name())
		if errc != nil || n < 0 || !entry.IsDir() {
			continue
		}

		builds = append(builds, build{number: n, name: entry.Name()})
	}

	if len(builds) <= j.keep {
		return nil, nil
	}

	sort.Slice(builds, func(a, b int) bool {
		if builds[a].number != builds[b].number {
			return builds[a].number > builds[b].number
		}

		return builds[a].name > builds[b].name
	})

	old := make([]string, 0, len(builds)-j.keep)

	for _, b := range builds[j.keep:] {
		old = append(old, filepath.Join(j.dir, buildsDir, b.name))
	}

	return old, nil
}
