package service

import "sync"

// JobRunner executes enrichment work independently of the request that
// scheduled it: a bounded pool drains a buffered queue, and when the
// queue is full the job gets its own goroutine so Submit never blocks
// the caller and never drops work. Jobs run to completion; there is no
// cancellation of in-flight work. Submit stays safe after Stop: late
// jobs run in their own goroutine instead of hitting the closed queue.
type JobRunner struct {
	mu      sync.Mutex
	jobs    chan func()
	wg      sync.WaitGroup
	stopped bool
}

func NewJobRunner(workers, queueSize int) *JobRunner {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	r := &JobRunner{jobs: make(chan func(), queueSize)}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for job := range r.jobs {
				job()
			}
		}()
	}
	return r
}

func (r *JobRunner) Submit(job func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		go job()
		return
	}
	select {
	case r.jobs <- job:
	default:
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			job()
		}()
	}
}

// Stop drains queued jobs and waits for running ones. Idempotent.
func (r *JobRunner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.jobs)
	r.mu.Unlock()
	r.wg.Wait()
}
