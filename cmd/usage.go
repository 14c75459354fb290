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
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"code.cloudfoundry.org/bytefmt"
	"github.com/dustin/go-humanize" //nolint:misspell
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/quickdu/usage"
)

// options for this cmd.
var (
	usageJSON    bool
	usageMinSize string
)

// usageReport is what --json prints.
type usageReport struct {
	Dirs []usage.DirUsage `json:"dirs"`
	Jobs []usage.JobUsage `json:"jobs"`
}

// usageCmd represents the usage command.
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Estimate and print disk usage",
	Long: `Estimate and print disk usage.

Measures the --workspace directory, each of its immediate subdirectories, the
--tmpdir and each job found in --jobs, one at a time with a --throttle pause
after each, then prints their sizes in tables, or as JSON with --json.

Use --size to only show directories and jobs of at least that size, eg. 10G.

If --history is given, the estimate is recorded in that bolt database.`,
	Run: func(_ *cobra.Command, _ []string) {
		minSize, err := parseMinSize(usageMinSize)
		if err != nil {
			die("bad --size: %s", err)
		}

		cfg, err := configFromEnvAndFlags()
		if err != nil {
			die("%s", err)
		}

		if !usageJSON {
			setCLIFormat()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m, closeHistory, err := cfg.newMonitor(ctx)
		if err != nil {
			die("failed to create disk usage monitor: %s", err)
		}

		defer closeHistory()

		m.Refresh()

		if err = m.Wait(ctx); err != nil {
			die("interrupted: %s", err)
		}

		if err = m.LastError(); err != nil {
			die("failed to estimate disk usage: %s", err)
		}

		stop()

		report := usageReport{
			Dirs: filterBySize(m.DirectoryUsages(), minSize),
			Jobs: filterBySize(m.JobUsages(), minSize),
		}

		if usageJSON {
			printUsageJSON(report)

			return
		}

		printDirUsages(report.Dirs)
		printJobUsages(report.Jobs)
		info("estimated in %s", m.Duration())
	},
}

// parseMinSize converts a size like "10G" to bytes. Blank means 0.
func parseMinSize(size string) (uint64, error) {
	if size == "" {
		return 0, nil
	}

	return bytefmt.ToBytes(size)
}

// filterBySize returns the records that are at least minSize bytes.
func filterBySize[R interface{ Size() uint64 }](records []R, minSize uint64) []R {
	kept := make([]R, 0, len(records))

	for _, r := range records {
		if r.Size() >= minSize {
			kept = append(kept, r)
		}
	}

	return kept
}

func printUsageJSON(report usageReport) {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		die("failed to encode usage: %s", err)
	}

	cliPrint("%s\n", b)
}

// printDirUsages prints a table of directory usages to STDOUT.
func printDirUsages(dus []usage.DirUsage) {
	if len(dus) == 0 {
		warn("no directories measured")

		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Directory", "Path", "Mount", "Size"})

	for _, du := range dus {
		table.Append([]string{du.Label, du.Path, du.Mount, humanize.IBytes(du.Size())})
	}

	table.Render()
}

// printJobUsages prints a table of job usages to STDOUT.
func printJobUsages(jus []usage.JobUsage) {
	if len(jus) == 0 {
		warn("no jobs measured")

		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Job", "Path", "Size"})

	for _, ju := range jus {
		table.Append([]string{ju.FullName, ju.Path, humanize.IBytes(ju.Size())})
	}

	table.Render()
}

func init() {
	RootCmd.AddCommand(usageCmd)

	addMonitorFlags(usageCmd)

	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "output JSON")
	usageCmd.Flags().StringVarP(&usageMinSize, "size", "s", "",
		"minimum size (eg. 10G) of directories and jobs to show")
}
