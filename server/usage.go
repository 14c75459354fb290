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

package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gas "github.com/wtsi-hgi/go-authserver"
	"github.com/wtsi-hgi/quickdu/history"
	"github.com/wtsi-hgi/quickdu/jobs"
)

const (
	// ErrNoJob is the error for a clean request without a job parameter.
	ErrNoJob = gas.Error("job parameter required")

	// ErrBadHistory is the error for a history request with an unusable n.
	ErrBadHistory = gas.Error("bad query; n must be a positive number")
)

// Status describes the state of the Monitor's background refreshes.
type Status struct {
	Running      bool      `json:"running"`
	LastRunStart time.Time `json:"last_run_start"`
	LastRunEnd   time.Time `json:"last_run_end"`
	Since        string    `json:"since"`
	Duration     string    `json:"duration"`
	LastError    string    `json:"last_error,omitempty"`
}

// Accepted is the response to a POST that didn't come from a page we can
// redirect back to.
type Accepted struct {
	Started bool   `json:"started"`
	Job     string `json:"job,omitempty"`
}

// getDirUsages responds with the directory usages in JSON format. If they are
// stale, a refresh is triggered, but we don't wait for it.
//
// This is called when there is a GET on /rest/v1/usage/dirs or
// /rest/v1/auth/usage/dirs.
func (s *Server) getDirUsages(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.getMonitor().DirectoryUsages())
}

// getJobUsages is like getDirUsages(), but for /rest/v1/usage/jobs.
func (s *Server) getJobUsages(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.getMonitor().JobUsages())
}

func (s *Server) getStatus(c *gin.Context) {
	m := s.getMonitor()

	status := Status{
		Running:      m.IsRunning(),
		LastRunStart: m.LastRunStart(),
		LastRunEnd:   m.LastRunEnd(),
		Since:        m.Since(),
		Duration:     m.Duration(),
	}

	if err := m.LastError(); err != nil {
		status.LastError = err.Error()
	}

	c.IndentedJSON(http.StatusOK, status)
}

// getHistory responds with the most recent refreshes, newest first. The
// optional n parameter says how many.
func (s *Server) getHistory(c *gin.Context) {
	n := defaultHistoryRuns

	if nStr := c.Query("n"); nStr != "" {
		var err error

		n, err = strconv.Atoi(nStr)
		if err != nil || n < 1 {
			c.AbortWithError(http.StatusBadRequest, ErrBadHistory) //nolint:errcheck

			return
		}

		n = min(n, maxHistoryRuns)
	}

	runs, err := s.getMonitor().RecentRuns(n)
	if errors.Is(err, history.ErrNoStore) {
		c.AbortWithError(http.StatusNotFound, err) //nolint:errcheck

		return
	} else if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err) //nolint:errcheck

		return
	}

	if runs == nil {
		runs = []history.Run{}
	}

	c.IndentedJSON(http.StatusOK, runs)
}

// postRefresh starts a refresh, unless one is already running.
func (s *Server) postRefresh(c *gin.Context) {
	started := s.getMonitor().Refresh()

	s.respondToPost(c, Accepted{Started: started})
}

// postClean cleans the job named by the job parameter in the background. The
// parameter can be in the query string or a form-encoded body.
func (s *Server) postClean(c *gin.Context) {
	name := c.Query("job")
	if name == "" {
		name = c.PostForm("job")
	}

	if name == "" {
		c.AbortWithError(http.StatusBadRequest, ErrNoJob) //nolint:errcheck

		return
	}

	if err := s.getMonitor().Clean(name); err != nil {
		code := http.StatusInternalServerError

		if errors.Is(err, jobs.ErrJobNotFound) {
			code = http.StatusBadRequest
		}

		c.AbortWithError(code, err) //nolint:errcheck

		return
	}

	s.respondToPost(c, Accepted{Started: true, Job: name})
}

// respondToPost sends the caller back to the page they came from, if it was
// one of ours.
func (s *Server) respondToPost(c *gin.Context, body Accepted) {
	if referer := sameHostReferer(c.Request); referer != "" {
		c.Redirect(http.StatusSeeOther, referer)

		return
	}

	c.JSON(http.StatusAccepted, body)
}

// sameHostReferer returns the request's Referer if it is a path on this
// server, or an http(s) URL with the same host as the request. Otherwise
// returns blank.
func sameHostReferer(r *http.Request) string {
	referer := r.Referer()
	if referer == "" {
		return ""
	}

	u, err := url.Parse(referer)
	if err != nil {
		return ""
	}

	if u.Scheme == "" && u.Host == "" {
		if strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(referer, "//") &&
			!strings.HasPrefix(referer, "/\\") {
			return referer
		}

		return ""
	}

	if (u.Scheme == "http" || u.Scheme == "https") && u.User == nil && u.Host == r.Host {
		return referer
	}

	return ""
}
