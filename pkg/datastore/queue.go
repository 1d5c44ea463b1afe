// SPDX-License-Identifier: MIT

package datastore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	sklog "github.com/ManuGH/skylib/internal/log"
)

// ErrQueueClosed is the result of tasks enqueued after Shutdown.
var ErrQueueClosed = errors.New("datastore: write queue closed")

// Result is the outcome of one queued task. RowsAffected holds one entry per
// statement.
type Result struct {
	RowsAffected []int64
	Err          error
}

type task struct {
	id   uint64
	run  func(ctx context.Context, c *Conn) ([]int64, error)
	done chan Result
}

// WriteQueue runs writes against a pool on a fixed number of workers. With one
// worker writes apply in submission order.
//
// While paused, new tasks are held back and run after Resume. Tasks queued
// before Pause still run, so Pause followed by Wait leaves the store quiet.
type WriteQueue struct {
	pool   *Pool
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu          sync.Mutex
	cond        *sync.Cond
	pending     []*task
	held        []*task
	nextID      uint64
	outstanding int           // pending plus running
	empty       chan struct{} // closed while outstanding == 0
	paused      bool
	closed      bool
}

// NewWriteQueue starts workers that drain the queue. workers below 1 means 1.
func NewWriteQueue(p *Pool, workers int) *WriteQueue {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &WriteQueue{
		pool:   p,
		logger: p.logger.With().Str(sklog.FieldQueue, p.name).Logger(),
		ctx:    ctx,
		cancel: cancel,
		empty:  make(chan struct{}),
	}
	close(q.empty)
	q.cond = sync.NewCond(&q.mu)

	q.group = new(errgroup.Group)
	for range workers {
		q.group.Go(q.work)
	}
	return q
}

// Enqueue queues stmt. The returned channel receives exactly one Result.
func (q *WriteQueue) Enqueue(stmt Statement) <-chan Result {
	return q.push(func(ctx context.Context, c *Conn) ([]int64, error) {
		n, err := Exec(ctx, c, stmt)
		if err != nil {
			return nil, err
		}
		return []int64{n}, nil
	})
}

// EnqueueBatch queues stmts to run in one transaction. Either all statements
// apply or none does.
func (q *WriteQueue) EnqueueBatch(stmts []Statement) <-chan Result {
	return q.push(func(ctx context.Context, c *Conn) ([]int64, error) {
		affected := make([]int64, 0, len(stmts))
		err := InTx(ctx, c, func(tx *Tx) error {
			for _, stmt := range stmts {
				n, err := tx.Exec(ctx, stmt)
				if err != nil {
					return err
				}
				affected = append(affected, n)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return affected, nil
	})
}

// Submit queues an arbitrary task on a leased connection.
func (q *WriteQueue) Submit(fn func(ctx context.Context, c *Conn) error) <-chan Result {
	return q.push(func(ctx context.Context, c *Conn) ([]int64, error) {
		return nil, fn(ctx, c)
	})
}

func (q *WriteQueue) push(run func(ctx context.Context, c *Conn) ([]int64, error)) <-chan Result {
	done := make(chan Result, 1)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		done <- Result{Err: ErrQueueClosed}
		return done
	}
	q.nextID++
	t := &task{id: q.nextID, run: run, done: done}
	if q.paused {
		q.held = append(q.held, t)
	} else {
		q.enqueueLocked(t)
	}
	q.reportLocked()
	return done
}

func (q *WriteQueue) enqueueLocked(t *task) {
	if q.outstanding == 0 {
		q.empty = make(chan struct{})
	}
	q.outstanding++
	q.pending = append(q.pending, t)
	q.cond.Signal()
}

func (q *WriteQueue) reportLocked() {
	if q.pool.metrics != nil {
		q.pool.metrics.SetQueueDepth(q.pool.name, len(q.pending)+len(q.held))
	}
}

// Pause holds back tasks enqueued from now on until Resume. It reports
// whether this call paused the queue; false means it was already paused or
// is closed.
func (q *WriteQueue) Pause() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.paused || q.closed {
		return false
	}
	q.paused = true
	q.logger.Debug().Str(sklog.FieldEvent, "datastore.queue_paused").Msg("write queue paused")
	return true
}

// Resume releases held tasks in submission order.
func (q *WriteQueue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resumeLocked()
}

func (q *WriteQueue) resumeLocked() {
	if !q.paused {
		return
	}
	q.paused = false
	held := q.held
	q.held = nil
	for _, t := range held {
		q.enqueueLocked(t)
	}
	q.reportLocked()
	q.logger.Debug().
		Str(sklog.FieldEvent, "datastore.queue_resumed").
		Int("flushed", len(held)).
		Msg("write queue resumed")
}

// Paused reports whether the queue is paused.
func (q *WriteQueue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Wait blocks until no task is queued or running. Held tasks of a paused
// queue do not count.
func (q *WriteQueue) Wait(ctx context.Context) error {
	q.mu.Lock()
	empty := q.empty
	q.mu.Unlock()

	select {
	case <-empty:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks, releases held ones and waits for the
// workers to drain the queue. When ctx ends first, running tasks are
// cancelled and tasks still queued fail with ErrQueueClosed.
func (q *WriteQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.resumeLocked()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = q.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		q.mu.Lock()
		dropped := q.pending
		q.pending = nil
		for range dropped {
			q.finishLocked()
		}
		q.reportLocked()
		q.mu.Unlock()
		for _, t := range dropped {
			t.done <- Result{Err: ErrQueueClosed}
		}
		<-done
		q.logger.Warn().
			Str(sklog.FieldEvent, "datastore.queue_shutdown_timeout").
			Int("dropped", len(dropped)).
			Msg("write queue shut down before draining")
		return ctx.Err()
	}
}

func (q *WriteQueue) finishLocked() {
	q.outstanding--
	if q.outstanding == 0 {
		close(q.empty)
	}
}

func (q *WriteQueue) work() error {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return nil
		}
		t := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.reportLocked()
		q.mu.Unlock()

		res := q.run(t)
		t.done <- res

		q.mu.Lock()
		q.finishLocked()
		q.mu.Unlock()
	}
}

func (q *WriteQueue) run(t *task) Result {
	start := time.Now()
	var affected []int64
	err := WithConn(q.ctx, q.pool, func(ctx context.Context, c *Conn) error {
		var err error
		affected, err = t.run(ctx, c)
		return err
	})
	if err != nil {
		q.logger.Warn().
			Err(err).
			Str(sklog.FieldEvent, "datastore.write_failed").
			Uint64(sklog.FieldTaskID, t.id).
			Int64(sklog.FieldDuration, time.Since(start).Milliseconds()).
			Msg("queued write failed")
		return Result{Err: err}
	}
	return Result{RowsAffected: affected}
}
