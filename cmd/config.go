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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/quickdu/du"
	"github.com/wtsi-hgi/quickdu/history"
	"github.com/wtsi-hgi/quickdu/jobs"
	"github.com/wtsi-hgi/quickdu/monitor"
	"github.com/wtsi-hgi/quickdu/reconcile"
)

const (
	envWorkspace   = "QUICKDU_WORKSPACE"
	envJobs        = "QUICKDU_JOBS"
	envTmpDir      = "QUICKDU_TMPDIR"
	envHistory     = "QUICKDU_HISTORY"
	envQuietPeriod = "QUICKDU_QUIET_PERIOD"
	envThrottle    = "QUICKDU_THROTTLE"
	envKeepBuilds  = "QUICKDU_KEEP_BUILDS"

	noTmpDir = "none"
)

var (
	errWorkspaceRequired = errors.New("workspace directory required")
	errJobsRequired      = errors.New("jobs or workspace directory required")
)

var dotEnvKeys = []string{
	envWorkspace,
	envJobs,
	envTmpDir,
	envHistory,
	envQuietPeriod,
	envThrottle,
	envKeepBuilds,
}

// options shared by the commands that measure or clean.
var (
	workspaceDir string
	jobsDir      string
	tmpDir       string
	historyPath  string
	quietPeriod  string
	throttle     string
	keepBuilds   string
)

// config is the resolved form of the shared options.
type config struct {
	Workspace   string
	Jobs        string
	TmpDir      string
	History     string
	QuietPeriod time.Duration
	Throttle    time.Duration
	KeepBuilds  int
}

func addWorkspaceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&workspaceDir, "workspace", "w", "",
		"workspace directory to measure (default $"+envWorkspace+")")
	cmd.Flags().StringVarP(&jobsDir, "jobs", "j", "",
		"directory containing job directories (default $"+envJobs+" or <workspace>/jobs)")
	cmd.Flags().StringVar(&keepBuilds, "keep", "",
		"number of builds a clean keeps (default $"+envKeepBuilds+" or "+
			strconv.Itoa(jobs.DefaultKeepBuilds)+")")
}

func addMonitorFlags(cmd *cobra.Command) {
	addWorkspaceFlags(cmd)

	cmd.Flags().StringVarP(&tmpDir, "tmpdir", "t", "",
		"temp directory to measure, or '"+noTmpDir+"' (default $"+envTmpDir+" or the system temp dir)")
	cmd.Flags().StringVarP(&throttle, "throttle", "p", "",
		"pause after each measurement (default $"+envThrottle+" or "+reconcile.DefaultThrottle.String()+")")
	cmd.Flags().StringVar(&historyPath, "history", "",
		"bolt database to record refreshes in (default $"+envHistory+")")
}

func loadDotEnv() {
	orig := originalEnvKeys(dotEnvKeys)

	loadDotEnvFile(".env", orig)
	loadDotEnvFile(".env.local", orig)
}

func originalEnvKeys(keys []string) map[string]struct{} {
	orig := map[string]struct{}{}

	for _, key := range keys {
		if _, ok := os.LookupEnv(key); ok {
			orig[key] = struct{}{}
		}
	}

	return orig
}

func loadDotEnvFile(path string, orig map[string]struct{}) {
	env, err := godotenv.Read(path)
	if err != nil {
		return
	}

	for _, key := range dotEnvKeys {
		val, ok := env[key]
		if !ok {
			continue
		}

		if _, ok := orig[key]; ok {
			continue
		}

		_ = os.Setenv(key, val)
	}
}

// configFromEnvAndFlags loads any .env files, then resolves our shared options
// from their flags, falling back to environment variables and then defaults.
func configFromEnvAndFlags() (config, error) {
	loadDotEnv()

	workspace, err := requiredFlagOrEnv(workspaceDir, envWorkspace, errWorkspaceRequired)
	if err != nil {
		return config{}, err
	}

	cfg := config{
		Workspace: workspace,
		Jobs:      flagOrEnv(jobsDir, envJobs, filepath.Join(workspace, "jobs")),
		TmpDir:    flagOrEnv(tmpDir, envTmpDir, os.TempDir()),
		History:   flagOrEnv(historyPath, envHistory, ""),
	}

	if cfg.TmpDir == noTmpDir {
		cfg.TmpDir = ""
	}

	if cfg.QuietPeriod, err = parseDurationFlagOrEnv(quietPeriod, envQuietPeriod,
		monitor.DefaultQuietPeriod); err != nil {
		return config{}, err
	}

	if cfg.Throttle, err = parseDurationFlagOrEnv(throttle, envThrottle, reconcile.DefaultThrottle); err != nil {
		return config{}, err
	}

	if cfg.KeepBuilds, err = parseIntFlagOrEnv(keepBuilds, envKeepBuilds, jobs.DefaultKeepBuilds); err != nil {
		return config{}, err
	}

	return cfg, nil
}

// registryFromEnvAndFlags is like configFromEnvAndFlags(), but only needs the
// options for finding jobs.
func registryFromEnvAndFlags() (*jobs.DirRegistry, error) {
	loadDotEnv()

	dir := flagOrEnv(jobsDir, envJobs, "")
	if dir == "" {
		workspace, err := requiredFlagOrEnv(workspaceDir, envWorkspace, errJobsRequired)
		if err != nil {
			return nil, err
		}

		dir = filepath.Join(workspace, "jobs")
	}

	keep, err := parseIntFlagOrEnv(keepBuilds, envKeepBuilds, jobs.DefaultKeepBuilds)
	if err != nil {
		return nil, err
	}

	return newRegistry(dir, keep), nil
}

func newRegistry(dir string, keep int) *jobs.DirRegistry {
	return jobs.NewDirRegistry(dir, keep, appLogger.New("pkg", "jobs"))
}

func flagOrEnv(flagValue, envKey, defaultValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}

	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}

	return defaultValue
}

func requiredFlagOrEnv(flagValue string, envKey string, missing error) (string, error) {
	v := flagOrEnv(flagValue, envKey, "")
	if v == "" {
		return "", missing
	}

	return v, nil
}

func parseDurationFlagOrEnv(flagValue string, envKey string, defaultValue time.Duration) (time.Duration, error) {
	if strings.TrimSpace(flagValue) != "" {
		d, err := time.ParseDuration(flagValue)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %q: %w", envKey, err)
		}

		return d, nil
	}

	v := strings.TrimSpace(os.Getenv(envKey))
	if v == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %w", envKey, err)
	}

	return d, nil
}

func parseIntFlagOrEnv(flagValue string, envKey string, defaultValue int) (int, error) {
	v := flagOrEnv(flagValue, envKey, "")
	if v == "" {
		return defaultValue, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid number for %s: %w", envKey, err)
	}

	return n, nil
}

// newMonitor creates a Monitor for our configuration. If a history path was
// configured, the returned closer closes the history database.
func (c config) newMonitor(ctx context.Context) (*monitor.Monitor, func(), error) {
	throttle := c.Throttle
	if throttle == 0 {
		throttle = -1
	}

	mcfg := monitor.Config{
		Registry:    newRegistry(c.Jobs, c.KeepBuilds),
		Sizer:       du.New(appLogger.New("pkg", "du")),
		Root:        c.Workspace,
		Temp:        c.TmpDir,
		QuietPeriod: c.QuietPeriod,
		Throttle:    throttle,
		Logger:      appLogger,
	}

	closer := func() {}

	if c.History != "" {
		store, err := history.Open(c.History)
		if err != nil {
			return nil, nil, err
		}

		mcfg.History = store
		closer = func() {
			if errc := store.Close(); errc != nil {
				warn("failed to close history database: %s", errc)
			}
		}
	}

	m, err := monitor.New(ctx, mcfg)
	if err != nil {
		closer()

		return nil, nil, err
	}

	return m, closer, nil
}
