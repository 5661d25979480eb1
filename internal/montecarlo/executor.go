package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrExecutorClosed is returned by Run after Close, or before Start.
var ErrExecutorClosed = errors.New("montecarlo: executor not running")

// Executor runs simulations on a fixed-size worker pool so CPU-bound numeric
// work never executes on a caller's goroutine. It is a scoped resource:
// acquire with Start at service startup, release with Close at shutdown.
type Executor struct {
	workers int
	jobs    chan simJob
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

type simJob struct {
	model      *Model
	resolution time.Time
	opts       SimOptions
	done       chan simOutcome
}

type simOutcome struct {
	result *Result
	err    error
}

// NewExecutor sizes the pool; workers <= 0 means one per available CPU.
func NewExecutor(workers int) *Executor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Executor{
		workers: workers,
		jobs:    make(chan simJob, workers*2),
	}
}

// Start launches the worker pool. Safe to call once.
func (e *Executor) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	log.Info().Int("workers", e.workers).Msg("Simulation executor started")
}

// Close drains the pool and waits for in-flight simulations to finish.
func (e *Executor) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	close(e.jobs)
	e.wg.Wait()
}

// Workers returns the pool size.
func (e *Executor) Workers() int { return e.workers }

// Run executes model.Simulate on a pool worker and waits for the outcome.
// A worker failure surfaces as an error, never as an empty result. Context
// cancellation abandons the wait; the worker finishes and discards its
// result without corrupting the pool.
func (e *Executor) Run(ctx context.Context, model *Model, resolution time.Time, opts SimOptions) (*Result, error) {
	if !e.started.Load() || e.closed.Load() {
		return nil, ErrExecutorClosed
	}

	job := simJob{
		model:      model,
		resolution: resolution,
		opts:       opts,
		done:       make(chan simOutcome, 1),
	}

	select {
	case e.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-job.done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for job := range e.jobs {
		job.done <- e.execute(job)
	}
}

func (e *Executor) execute(job simJob) (out simOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = simOutcome{err: fmt.Errorf("montecarlo: simulation panic: %v", r)}
			log.Error().Interface("panic", r).Msg("Simulation worker recovered from panic")
		}
	}()
	result, err := job.model.Simulate(job.resolution, job.opts)
	return simOutcome{result: result, err: err}
}
