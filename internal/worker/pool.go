/*

This file contains the bounded worker pool used for candidate evaluation.
Evaluations are pure functions of (parameters, dataset), so the pool only
fans out indices and joins; result collection is the caller's post-join.
Cancellation is cooperative via a shared deadline checked between tasks,
never mid-evaluation.

*/

package worker

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool bounds concurrent evaluations to a fraction of available cores.
type Pool struct {
	workers int
}

// NewPool sizes the pool to fraction of NumCPU, minimum one worker.
func NewPool(fraction float64) *Pool {
	n := int(float64(runtime.NumCPU()) * fraction)
	if n < 1 {
		n = 1
	}
	return &Pool{workers: n}
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Guard is a shared elapsed-time budget. Stages stop admitting new work
// once the guard expires and finish in-flight evaluations.
type Guard struct {
	deadlineUnixNano atomic.Int64
}

// NewGuard returns a guard expiring after the given budget. A zero
// budget never expires.
func NewGuard(budget time.Duration) *Guard {
	g := &Guard{}
	if budget > 0 {
		g.deadlineUnixNano.Store(time.Now().Add(budget).UnixNano())
	}
	return g
}

// Expired reports whether the budget has elapsed.
func (g *Guard) Expired() bool {
	d := g.deadlineUnixNano.Load()
	return d != 0 && time.Now().UnixNano() >= d
}

// Remaining returns the time left on the guard, or a large duration if
// the guard never expires.
func (g *Guard) Remaining() time.Duration {
	d := g.deadlineUnixNano.Load()
	if d == 0 {
		return time.Duration(1<<62 - 1)
	}
	rem := time.Until(time.Unix(0, d))
	if rem < 0 {
		return 0
	}
	return rem
}

// ForEach runs fn(i) for i in [0, n) across the pool, skipping admission
// of new tasks once the guard expires. It returns the number of tasks
// actually started. fn must handle its own failures; a task that cannot
// produce a result simply leaves its slot unfilled for the post-join.
func (p *Pool) ForEach(ctx context.Context, n int, guard *Guard, fn func(i int)) int {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var started atomic.Int64
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		if guard != nil && guard.Expired() {
			break
		}
		i := i
		started.Add(1)
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
	return int(started.Load())
}
