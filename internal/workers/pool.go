// Package workers runs extraction and compression off the request path.
// A fixed pool drains a bounded queue; job outcomes are counted and
// logged but never surfaced to the request that enqueued them.
package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ent0n29/mnemo/internal/observability"
)

// Job is one background dispatch. Run errors are swallowed after
// logging; a panic is recovered so it cannot take a worker down.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Pool struct {
	size       int
	queue      chan Job
	jobTimeout time.Duration
	metrics    *observability.Metrics

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPool sizes the pool and its queue. Defaults: 2 workers, queue 64,
// 2 minute per-job timeout so a stuck generation call cannot hold a
// worker forever.
func NewPool(size, queueLen int, jobTimeout time.Duration, metrics *observability.Metrics) *Pool {
	if size <= 0 {
		size = 2
	}
	if queueLen <= 0 {
		queueLen = 64
	}
	if jobTimeout <= 0 {
		jobTimeout = 2 * time.Minute
	}
	return &Pool{
		size:       size,
		queue:      make(chan Job, queueLen),
		jobTimeout: jobTimeout,
		metrics:    metrics,
	}
}

// Start launches the workers. They exit when ctx is cancelled or the
// pool is stopped.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit enqueues a job without blocking. Returns false when the queue
// is full; the job is dropped (and counted), never the request.
func (p *Pool) Submit(job Job) bool {
	select {
	case p.queue <- job:
		if p.metrics != nil {
			p.metrics.WorkerQueueDepth.Set(float64(len(p.queue)))
		}
		return true
	default:
		log.Printf("workers: queue full, dropping job %q", job.Name)
		p.countJob(job.Name, "dropped")
		return false
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.queue) })
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			if p.metrics != nil {
				p.metrics.WorkerQueueDepth.Set(float64(len(p.queue)))
			}
			p.runJob(ctx, job)
		}
	}
}

func (p *Pool) runJob(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("workers: job %q panicked: %v", job.Name, r)
			p.countJob(job.Name, "panic")
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	if err := job.Run(jobCtx); err != nil {
		log.Printf("workers: job %q failed: %v", job.Name, err)
		p.countJob(job.Name, "error")
		return
	}
	p.countJob(job.Name, "ok")
}

func (p *Pool) countJob(name, outcome string) {
	if p.metrics != nil {
		p.metrics.WorkerJobs.WithLabelValues(name, outcome).Inc()
	}
}
