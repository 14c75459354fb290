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
	"os"
	"strconv"

	"github.com/dustin/go-humanize" //nolint:misspell
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/quickdu/history"
)

const defaultHistoryRuns = 10

// options for this cmd.
var historyRuns int

// historyCmd represents the history command.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past disk usage estimates",
	Long: `Show past disk usage estimates.

Prints the -n most recent estimates recorded in the --history bolt database by
'quickdu server' or 'quickdu usage', newest first.

The database can't be read while a server has it open; query the server's
/rest/v1/history endpoint instead.`,
	Run: func(_ *cobra.Command, _ []string) {
		loadDotEnv()

		path := flagOrEnv(historyPath, envHistory, "")
		if path == "" {
			die("you must supply --history")
		}

		store, err := history.OpenReadOnly(path)
		if err != nil {
			die("failed to open history database: %s", err)
		}

		defer store.Close()

		runs, err := store.Recent(historyRuns)
		if err != nil {
			die("failed to read history: %s", err)
		}

		printRuns(runs)
	},
}

// printRuns prints a table of runs to STDOUT.
func printRuns(runs []history.Run) {
	if len(runs) == 0 {
		warn("no estimates recorded")

		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Started", "Took", "Dirs", "Jobs", "Error"})

	for _, run := range runs {
		table.Append([]string{
			humanize.Time(run.Start),
			run.Duration().String(),
			strconv.Itoa(run.Dirs),
			strconv.Itoa(run.Jobs),
			run.Error,
		})
	}

	table.Render()
}

func init() {
	RootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyPath, "history", "",
		"bolt database estimates were recorded in (default $"+envHistory+")")
	historyCmd.Flags().IntVarP(&historyRuns, "number", "n", defaultHistoryRuns,
		"number of estimates to show")
}
