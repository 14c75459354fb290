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
	"io"
	"log/syslog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/quickdu/server"
	"github.com/wtsi-hgi/quickdu/watch"
)

// options for this cmd.
var (
	serverBind     string
	serverCert     string
	serverKey      string
	serverLogPath  string
	serverSentinel string
	serverPoll     time.Duration
)

const defaultSentinelPoll = time.Minute

// serverCmd represents the server command.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the web server",
	Long: `Start the web server.

Starting the web server brings up a REST API that serves the estimated disk
usage of the workspace directory, its immediate subdirectories, the temp
directory and every job:

GET /rest/v1/usage/dirs
GET /rest/v1/usage/jobs
GET /rest/v1/status
GET /rest/v1/history?n=10  (needs --history)

Reading usages when the last estimate finished more than --quiet ago starts a
new estimate in the background; you get the old sizes straight away. You can
also:

POST /rest/v1/refresh         to start a new estimate now
POST /rest/v1/clean?job=NAME  to rotate a job's builds, keeping the newest
                              --keep of them

If --sentinel is given, a new estimate is also started whenever the mtime of
that file changes (checked every --poll), so eg. a job that has just written
lots of data can "touch" it.

Your --bind address should include the port, and for it to work with your
--cert, you probably need to specify it as fqdn:port.

The server will log all messages (of any severity) to syslog at the INFO level,
except for non-graceful stops of the server, which are sent at the CRIT level
or include 'panic' in the message. The messages are tagged 'quickdu', and you
might want to filter away 'STATUS=200' to find problems.
If --logfile is supplied, logs to that file instead of syslog.

The server keeps running until you send it SIGINT or SIGTERM. While it is
running it holds a lock on its --history database, so use the history endpoint
instead of 'quickdu history'.`,
	Run: func(_ *cobra.Command, _ []string) {
		if serverCert == "" || serverKey == "" {
			die("you must supply --cert and --key")
		}

		if serverSentinel != "" && serverPoll <= 0 {
			die("--poll must be positive")
		}

		cfg, err := configFromEnvAndFlags()
		if err != nil {
			die("%s", err)
		}

		logWriter := setServerLogger(serverLogPath)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m, closeHistory, err := cfg.newMonitor(ctx)
		if err != nil {
			die("failed to create disk usage monitor: %s", err)
		}

		defer closeHistory()

		s := server.New(logWriter)
		s.SetMonitor(m)

		info("measuring %s and jobs in %s", cfg.Workspace, cfg.Jobs)
		m.Refresh()

		if serverSentinel != "" {
			w, errw := watch.New(serverSentinel, func(_ time.Time) {
				if m.Refresh() {
					info("sentinel changed, re-estimating disk usage")
				}
			}, serverPoll)
			if errw != nil {
				die("failed to watch sentinel file: %s", errw)
			}

			defer w.Stop()
		}

		go func() {
			<-ctx.Done()
			info("stopping server")
			s.Stop()
		}()

		info("starting server on %s", serverBind)

		if err = s.Start(serverBind, serverCert, serverKey); err != nil && ctx.Err() == nil {
			die("non-graceful stop: %s", err)
		}
	},
}

// setServerLogger makes our appLogger log to the given path if non-blank,
// otherwise to syslog. Returns an io.Writer version of our appLogger for the
// server to log to.
func setServerLogger(path string) io.Writer {
	if path == "" {
		logToSyslog()
	} else {
		logToFile(path)
	}

	lw := &log15Writer{logger: appLogger}

	return lw
}

// logToSyslog sends all our logs to syslog, tagged quickdu.
func logToSyslog() {
	fh, err := log15.SyslogHandler(syslog.LOG_INFO|syslog.LOG_DAEMON, "quickdu", log15.LogfmtFormat())
	if err != nil {
		warn("could not log to syslog: %s", err)

		return
	}

	appLogger.SetHandler(fh)
}

// log15Writer wraps a log15.Logger to make it conform to io.Writer interface.
type log15Writer struct {
	logger log15.Logger
}

// Write conforms to the io.Writer interface.
func (w *log15Writer) Write(p []byte) (int, error) {
	w.logger.Info(string(p))

	return len(p), nil
}

func init() {
	RootCmd.AddCommand(serverCmd)

	addMonitorFlags(serverCmd)

	serverCmd.Flags().StringVarP(&serverBind, "bind", "b", ":80",
		"address to bind to, eg host:port")
	serverCmd.Flags().StringVarP(&serverCert, "cert", "c", "",
		"path to certificate file")
	serverCmd.Flags().StringVarP(&serverKey, "key", "k", "",
		"path to key file")
	serverCmd.Flags().StringVar(&serverLogPath, "logfile", "",
		"log to this file instead of syslog")
	serverCmd.Flags().StringVarP(&quietPeriod, "quiet", "q", "",
		"re-estimate sizes read after they're this old (default $"+envQuietPeriod+" or 15m)")
	serverCmd.Flags().StringVar(&serverSentinel, "sentinel", "",
		"re-estimate sizes whenever this file's mtime changes")
	serverCmd.Flags().DurationVar(&serverPoll, "poll", defaultSentinelPoll,
		"how often to check the --sentinel file")
}
