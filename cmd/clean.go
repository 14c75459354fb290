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

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/quickdu/jobs"
)

var cleancmd = &cobra.Command{
	Use:   "clean JOB",
	Short: "rotate the builds of a job",
	Long: `clean deletes all but the newest builds of a job

JOB is the full name of a job in the --jobs directory, eg. "folder/job" for a
job in the "jobs" subdirectory of the "folder" directory.

Builds are the numerically named directories in the job's "builds" directory.
The --keep newest of them are kept, and the rest are deleted.

Unlike the server's clean endpoint, this waits for the deletions to finish.
`,
	Run: func(_ *cobra.Command, args []string) {
		if len(args) != 1 {
			die("exactly 1 job name should be provided")
		}

		registry, err := registryFromEnvAndFlags()
		if err != nil {
			die("%s", err)
		}

		setCLIFormat()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		job, err := registry.Lookup(ctx, jobs.Caller, args[0])
		if err != nil {
			die("%s", err)
		}

		if err := job.Clean(ctx); err != nil {
			die("log rotation failed: %s", err)
		}

		info("cleaned %s", job.FullName())
	},
}

func init() {
	RootCmd.AddCommand(cleancmd)

	addWorkspaceFlags(cleancmd)
}
