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
	"fmt"
	"os"
	"path/filepath"
)

// Error is the custom error type for the reconcile package.
type Error string

func (e Error) Error() string { return string(e) }

// ErrEnvironmentUnavailable is returned when the workspace root can't be
// read.
const ErrEnvironmentUnavailable = Error("workspace unavailable")

// Default directory labels.
const (
	// RootLabel is the default label of the workspace root directory.
	RootLabel = "WORKSPACE"

	// TempLabel is the default label of the temp directory.
	TempLabel = "TMPDIR"
)

// DirectoryTargets returns the directories that should be measured, mapped to
// their labels: the root (labelled rootLabel), each of its immediate
// subdirectories (labelled rootLabel/name) and tmp (labelled tmpLabel), unless
// tmp is blank.
func DirectoryTargets(root, rootLabel, tmp, tmpLabel string) (map[string]string, error) {
	root = filepath.Clean(root)

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvironmentUnavailable, err)
	}

	targets := map[string]string{root: rootLabel}

	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())

		if fi, errs := os.Stat(path); errs == nil && fi.IsDir() {
			targets[path] = rootLabel + "/" + entry.Name()
		}
	}

	if tmp != "" {
		targets[filepath.Clean(tmp)] = tmpLabel
	}

	return targets, nil
}
