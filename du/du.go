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

// package du estimates the disk usage of directories by running the du
// command on them.

package du

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"

	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/quickdu/internal/logutil"
)

// Error is the custom error type for the du package.
type Error string

const (
	// ErrNotDirectory is returned when asked to measure a path that isn't an
	// existing directory.
	ErrNotDirectory = Error("not an existing directory")

	// ErrMeasurement is returned when the du command could not be run or its
	// output could not be understood.
	ErrMeasurement = Error("disk usage measurement failed")
)

func (e Error) Error() string { return string(e) }

var summaryLine = regexp.MustCompile(`^([0-9]*)\t.$`)

// Sizer measures directories using an external du-like command.
type Sizer struct {
	// Command is the program and its arguments. It is run with the directory
	// being measured as its working directory, and the first line it prints
	// must look like "<KB>\t.".
	Command []string

	Logger log15.Logger
}

// New returns a Sizer that uses DefaultCommand().
func New(logger log15.Logger) *Sizer {
	return &Sizer{
		Command: DefaultCommand(),
		Logger:  logutil.OrDiscard(logger),
	}
}

// DefaultCommand returns "du -ks", run at idle IO priority with ionice on
// platforms where that is available.
func DefaultCommand() []string {
	cmd := []string{"du", "-ks"}

	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		return cmd
	}

	if _, err := exec.LookPath("ionice"); err != nil {
		return cmd
	}

	return append([]string{"ionice", "-c", "3"}, cmd...)
}

// Measure returns the disk usage in KB of the given directory.
//
// Returns an error wrapping ErrNotDirectory if path is blank, doesn't exist or
// isn't a directory, and an error wrapping ErrMeasurement if the command fails
// to start or its output can't be parsed. If ctx is cancelled, ctx's error is
// returned.
func (s *Sizer) Measure(ctx context.Context, path string) (uint64, error) {
	logger := logutil.OrDiscard(s.Logger)

	logger.Debug("estimating usage", "path", path)

	if !isDir(path) {
		return 0, fmt.Errorf("%w: %q", ErrNotDirectory, path)
	}

	line, err := s.firstLine(ctx, path, logger)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	} else if err != nil {
		return 0, err
	}

	kb, err := ParseOutput(line)
	if err != nil {
		logger.Warn("failed to parse du output", "path", path, "output", line)

		return 0, err
	}

	return kb, nil
}

func isDir(path string) bool {
	if path == "" {
		return false
	}

	fi, err := os.Stat(path)

	return err == nil && fi.IsDir()
}

// firstLine runs our command in dir, returning its first line of output. A
// non-zero exit is only logged, since du still prints a summary when some
// files under dir are unreadable.
func (s *Sizer) firstLine(ctx context.Context, dir string, logger log15.Logger) (string, error) {
	command := s.Command
	if len(command) == 0 {
		command = DefaultCommand()
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...) //nolint:gosec
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMeasurement, err)
	}

	if err = cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMeasurement, err)
	}

	line, readErr := readFirstLine(stdout)

	if waitErr := cmd.Wait(); waitErr != nil {
		logger.Debug("du exited uncleanly", "path", dir, "err", waitErr)
	}

	if readErr != nil {
		return "", fmt.Errorf("%w: %w", ErrMeasurement, readErr)
	}

	return line, nil
}

// readFirstLine returns the first line of r, then discards the rest so that
// the writer is never left blocked.
func readFirstLine(r io.Reader) (string, error) {
	br := bufio.NewReader(r)

	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	_, err = io.Copy(io.Discard, br)

	return trimEOL(line), err
}

func trimEOL(line string) string {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}

	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}

	return line
}

// ParseOutput parses a du summary line of the form "<digits>\t<one
// character>", returning the number. Anything else results in an error
// wrapping ErrMeasurement.
func ParseOutput(line string) (uint64, error) {
	m := summaryLine.FindStringSubmatch(line)
	if m == nil {
		return 0, fmt.Errorf("%w: unexpected du output %q", ErrMeasurement, line)
	}

	kb, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unexpected du output %q", ErrMeasurement, line)
	}

	return kb, nil
}
