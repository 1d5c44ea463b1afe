// SPDX-License-Identifier: MIT

package async

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	sklog "github.com/ManuGH/skylib/internal/log"
)

// ErrClosed is returned when work is submitted to a closed Runner.
var ErrClosed = errors.New("async: runner closed")

// DefaultWorkers is used when Options.Workers is not positive.
const DefaultWorkers = 4

// Options configures a Runner.
type Options struct {
	// Workers bounds how many tasks run at the same time.
	Workers int
	Logger  *zerolog.Logger
}

// Runner executes tasks on background goroutines, at most Workers at a time.
// Submitting never blocks; excess tasks wait for a slot.
type Runner struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	log    zerolog.Logger
}

// NewRunner returns a started Runner.
func NewRunner(opts Options) *Runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := sklog.WithComponent("async")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
		log:    logger,
	}
}

// Go runs fn in the background. The context passed to fn carries a fresh
// operation ID and is cancelled when Close gives up waiting.
func (r *Runner) Go(fn func(ctx context.Context)) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	r.wg.Add(1)
	r.mu.RUnlock()
	id := uuid.NewString()
	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			return
		}
		defer r.sem.Release(1)
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().
					Str(sklog.FieldEvent, "async.task_panic").
					Str(sklog.FieldTaskID, id).
					Interface("panic", rec).
					Msg("background task panicked")
			}
		}()
		fn(sklog.ContextWithOperationID(r.ctx, id))
	}()
	return nil
}

// Submit runs fn in the background and delivers its result to cb through sched.
func Submit[T any](r *Runner, sched Scheduler, fn func(ctx context.Context) (T, error), cb func(T, error)) error {
	if sched == nil {
		sched = Inline{}
	}
	return r.Go(func(ctx context.Context) {
		var (
			v   T
			err error
		)
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("async: task panicked: %v", rec)
				}
			}()
			v, err = fn(ctx)
		}()
		if cb != nil {
			sched.Schedule(func() { cb(v, err) })
		}
	})
}

// Close stops accepting work and waits for in-flight and queued tasks. If ctx
// ends first, task contexts are cancelled, queued tasks are dropped and
// ctx.Err() is returned. Close is idempotent.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}
