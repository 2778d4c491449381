package prober

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// PoolStats counts tasks that went through the probe pool.
type PoolStats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pool wraps an ants PoolWithFunc so callers never touch ants directly.
type Pool struct {
	inner *ants.PoolWithFunc
	stats PoolStats
}

type probeTask struct {
	ctx      context.Context
	req      Request
	match    Matcher
	index    int
	outcomes []Outcome
	batch    *sync.WaitGroup
}

func newBatch(n int) *sync.WaitGroup {
	wg := &sync.WaitGroup{}
	wg.Add(n)
	return wg
}

func newPool(size int, c *Client, log *logrus.Entry) (*Pool, error) {
	p := &Pool{}
	handler := func(i interface{}) {
		task, ok := i.(*probeTask)
		if !ok {
			atomic.AddInt64(&p.stats.Failed, 1)
			return
		}
		defer task.batch.Done()

		out := c.Probe(task.ctx, task.req, task.match)
		if out.Err != nil {
			atomic.AddInt64(&p.stats.Failed, 1)
		}
		task.outcomes[task.index] = out
		atomic.AddInt64(&p.stats.Completed, 1)
	}

	inner, err := ants.NewPoolWithFunc(
		size,
		handler,
		ants.WithExpiryDuration(time.Minute),
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(v interface{}) {
			atomic.AddInt64(&p.stats.Failed, 1)
			if log != nil {
				log.Error(fmt.Sprintf("probe worker panic: %v", v))
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	p.inner = inner
	return p, nil
}

// Submit hands a task to a worker, blocking while every worker is busy.
func (p *Pool) Submit(t *probeTask) error {
	if err := p.inner.Invoke(t); err != nil {
		return err
	}
	atomic.AddInt64(&p.stats.Submitted, 1)
	return nil
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Submitted: atomic.LoadInt64(&p.stats.Submitted),
		Completed: atomic.LoadInt64(&p.stats.Completed),
		Failed:    atomic.LoadInt64(&p.stats.Failed),
	}
}

// Release stops the workers.
func (p *Pool) Release() {
	p.inner.Release()
}

// PoolStats exposes the probe pool counters.
func (c *Client) PoolStats() PoolStats {
	if c.pool == nil {
		return PoolStats{}
	}
	return c.pool.Stats()
}
