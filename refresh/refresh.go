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

// package refresh runs a refresh task in the background, at most one at a
// time, and keeps track of when it last started and finished.

package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/quickdu/internal/logutil"
)

// Task is the work done by a refresh.
type Task func(ctx context.Context) error

// Run describes one execution of a Task.
type Run struct {
	ID    string
	Start time.Time
	End   time.Time
	Err   error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used to report on runs.
func WithLogger(logger log15.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logutil.OrDiscard(logger)
	}
}

// WithClock sets the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithOnComplete sets a callback that is given every finished Run, before
// Wait()ers are released.
func WithOnComplete(cb func(Run)) Option {
	return func(s *Scheduler) {
		s.onComplete = cb
	}
}

// Scheduler executes its Task on a single worker goroutine. Requests made
// while a run is in flight are ignored.
//
// It is running exactly when the last run end is before the last run start.
// Both start at the zero time.
type Scheduler struct {
	ctx        context.Context //nolint:containedctx
	task       Task
	pending    chan Run
	logger     log15.Logger
	now        func() time.Time
	onComplete func(Run)

	mu           sync.Mutex
	lastRunStart time.Time
	lastRunEnd   time.Time
	done         chan struct{}
	stopped      bool
}

// New creates a Scheduler for the given task and starts its worker, which
// stops when ctx is done. ctx is also the context the task is run with.
func New(ctx context.Context, task Task, opts ...Option) *Scheduler {
	s := &Scheduler{
		ctx:     ctx,
		task:    task,
		pending: make(chan Run, 1),
		logger:  logutil.Discard(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.work()

	return s
}

// Request asks for the task to be run, returning true if a run was
// dispatched, or false if one was already running (or we've been stopped).
// It never blocks on the task.
func (s *Scheduler) Request() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning() || s.stopped || s.ctx.Err() != nil {
		return false
	}

	start := s.now()
	if !start.After(s.lastRunEnd) {
		start = s.lastRunEnd.Add(time.Nanosecond)
	}

	s.lastRunStart = start
	s.done = make(chan struct{})

	// pending has room, since the worker takes a run before finishing it.
	s.pending <- Run{ID: uuid.NewString(), Start: start}

	return true
}

func (s *Scheduler) isRunning() bool {
	return s.lastRunEnd.Before(s.lastRunStart)
}

// IsRunning returns true while a run is in flight.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isRunning()
}

// LastRunStart returns when the latest run started.
func (s *Scheduler) LastRunStart() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastRunStart
}

// LastRunEnd returns when the latest successful run ended. After a failed run
// it is the same as LastRunStart.
func (s *Scheduler) LastRunEnd() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastRunEnd
}

// Wait blocks until there is no run in flight, or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	running, done := s.isRunning(), s.done
	s.mu.Unlock()

	if !running {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) work() {
	for {
		select {
		case run := <-s.pending:
			s.execute(run)
		case <-s.ctx.Done():
			s.abandon()

			return
		}
	}
}

// abandon stops further requests, then finishes any run that was requested
// but never started.
func (s *Scheduler) abandon() {
	var (
		run     Run
		pending bool
	)

	s.mu.Lock()
	s.stopped = true

	select {
	case run = <-s.pending:
		pending = true
	default:
	}

	s.mu.Unlock()

	if pending {
		run.Err = s.ctx.Err()
		s.finish(run, s.logger.New("run", run.ID))
	}
}

func (s *Scheduler) execute(run Run) {
	logger := s.logger.New("run", run.ID)

	logger.Info("re-estimating disk usage")

	run.Err = s.runTask()

	s.finish(run, logger)
}

func (s *Scheduler) runTask() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh task panicked: %v", r) //nolint:err113
		}
	}()

	return s.task(s.ctx)
}

// finish stamps the end of the run. A failed run ends when it started, so the
// data still looks stale and the next read triggers another attempt.
//
// The run only stops counting as in flight after the OnComplete callback has
// returned.
func (s *Scheduler) finish(run Run, logger log15.Logger) {
	s.mu.Lock()
	run.End = s.lastRunStart
	s.mu.Unlock()

	if run.Err != nil {
		logger.Warn("unable to run disk usage check", "err", run.Err)
	} else {
		if end := s.now(); end.After(run.End) {
			run.End = end
		}

		logger.Info("finished re-estimating disk usage", "took", run.End.Sub(run.Start))
	}

	if s.onComplete != nil {
		s.onComplete(run)
	}

	s.mu.Lock()
	s.lastRunEnd = run.End
	done := s.done
	s.mu.Unlock()

	close(done)
}
