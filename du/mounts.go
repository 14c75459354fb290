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

package du

import (
	"sort"
	"strings"

	"github.com/moby/sys/mountinfo"
)

// MountPoints is a list of mount points, longest first, each with a trailing
// slash.
type MountPoints []string

// LoadMounts returns the mount points of the current system.
func LoadMounts() (MountPoints, error) {
	mounts, err := mountinfo.GetMounts(nil)
	if err != nil {
		return nil, err
	}

	mps := make([]string, len(mounts))

	for n, mp := range mounts {
		mps[n] = mp.Mountpoint
	}

	return NewMountPoints(mps...), nil
}

// NewMountPoints returns the given mount points in MountPoints form.
func NewMountPoints(mountpoints ...string) MountPoints {
	mps := make(MountPoints, len(mountpoints))

	for n, mp := range mountpoints {
		if !strings.HasSuffix(mp, "/") {
			mp += "/"
		}

		mps[n] = mp
	}

	sort.Slice(mps, func(i, j int) bool {
		return len(mps[i]) > len(mps[j])
	})

	return mps
}

// PrefixOf returns the mount point that the given directory is on, or blank
// if none of our mount points contain it.
func (m MountPoints) PrefixOf(dir string) string {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	for _, mount := range m {
		if strings.HasPrefix(dir, mount) {
			return mount
		}
	}

	return ""
}
