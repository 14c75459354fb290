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

// package server exposes a disk usage Monitor over a REST API, using
// go-authserver for the HTTPS server, optional JWT auth and access logging.

package server

import (
	"io"
	"sync"
	"time"

	gas "github.com/wtsi-hgi/go-authserver"
	"github.com/wtsi-hgi/quickdu/history"
	"github.com/wtsi-hgi/quickdu/usage"
)

const (
	usageDirsPath = "/usage/dirs"
	usageJobsPath = "/usage/jobs"
	statusPath    = "/status"
	historyPath   = "/history"
	refreshPath   = "/refresh"
	cleanPath     = "/clean"

	// EndPointUsageDirs is the GET endpoint for directory usages.
	EndPointUsageDirs = gas.EndPointREST + usageDirsPath

	// EndPointUsageJobs is the GET endpoint for job usages.
	EndPointUsageJobs = gas.EndPointREST + usageJobsPath

	// EndPointStatus is the GET endpoint describing refresh state.
	EndPointStatus = gas.EndPointREST + statusPath

	// EndPointHistory is the GET endpoint for recent refreshes.
	EndPointHistory = gas.EndPointREST + historyPath

	// EndPointRefresh is the POST endpoint that triggers a refresh.
	EndPointRefresh = gas.EndPointREST + refreshPath

	// EndPointClean is the POST endpoint that cleans the job named by the
	// "job" parameter.
	EndPointClean = gas.EndPointREST + cleanPath

	// EndPointAuthUsageDirs is the endpoint for directory usages after
	// EnableAuth().
	EndPointAuthUsageDirs = gas.EndPointAuth + usageDirsPath

	// EndPointAuthUsageJobs is the endpoint for job usages after EnableAuth().
	EndPointAuthUsageJobs = gas.EndPointAuth + usageJobsPath

	// EndPointAuthStatus is the endpoint for refresh state after EnableAuth().
	EndPointAuthStatus = gas.EndPointAuth + statusPath

	// EndPointAuthHistory is the endpoint for recent refreshes after
	// EnableAuth().
	EndPointAuthHistory = gas.EndPointAuth + historyPath

	// EndPointAuthRefresh is the refresh endpoint after EnableAuth().
	EndPointAuthRefresh = gas.EndPointAuth + refreshPath

	// EndPointAuthClean is the clean endpoint after EnableAuth().
	EndPointAuthClean = gas.EndPointAuth + cleanPath

	defaultHistoryRuns = 10
	maxHistoryRuns     = 1000
)

// Monitor is the disk usage service we serve.
type Monitor interface {
	DirectoryUsages() []usage.DirUsage
	JobUsages() []usage.JobUsage
	IsRunning() bool
	LastRunStart() time.Time
	LastRunEnd() time.Time
	LastError() error
	Since() string
	Duration() string
	Refresh() bool
	Clean(fullName string) error
	RecentRuns(n int) ([]history.Run, error)
}

// Server is used to start a web server that provides a REST API to a Monitor.
type Server struct {
	gas.Server

	mu      sync.RWMutex
	monitor Monitor
}

// New creates a Server which can serve a REST API. Logs (including access
// logs) go to the given writer.
func New(logWriter io.Writer) *Server {
	s := &Server{
		Server: *gas.New(logWriter),
	}

	s.Router().HandleMethodNotAllowed = true

	return s
}

// SetMonitor sets the Monitor we serve. The first call adds these endpoints to
// the REST API:
//
// GET /rest/v1/usage/dirs, /rest/v1/usage/jobs, /rest/v1/status and
// /rest/v1/history
//
// POST /rest/v1/refresh and /rest/v1/clean?job=<full name>
//
// If you call EnableAuth() first, then these endpoints will be secured and be
// available at /rest/v1/auth/*.
func (s *Server) SetMonitor(m Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := s.monitor != nil
	s.monitor = m

	if !loaded {
		s.addRoutes()
	}
}

func (s *Server) addRoutes() {
	authGroup := s.AuthRouter()

	if authGroup == nil {
		s.Router().GET(EndPointUsageDirs, s.getDirUsages)
		s.Router().GET(EndPointUsageJobs, s.getJobUsages)
		s.Router().GET(EndPointStatus, s.getStatus)
		s.Router().GET(EndPointHistory, s.getHistory)
		s.Router().POST(EndPointRefresh, s.postRefresh)
		s.Router().POST(EndPointClean, s.postClean)
	} else {
		authGroup.GET(usageDirsPath, s.getDirUsages)
		authGroup.GET(usageJobsPath, s.getJobUsages)
		authGroup.GET(statusPath, s.getStatus)
		authGroup.GET(historyPath, s.getHistory)
		authGroup.POST(refreshPath, s.postRefresh)
		authGroup.POST(cleanPath, s.postClean)
	}
}

func (s *Server) getMonitor() Monitor { //nolint:ireturn
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.monitor
}
