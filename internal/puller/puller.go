// Package puller simulates the per-target scan/pull workers that consume the
// rebuild handles internal/rebuild mints. Real object scanning and the pull
// of redundant data are explicitly out of scope (spec.md §1): this package
// exists only so a demo process can drive a full SCAN -> QUERY -> FINI cycle
// end to end against internal/rebuild without a real storage backend,
// grounded in the teacher's worker pool (internal/worker/worker_pool.go,
// worker.go) and its simulated-delay-and-failure execute() pattern.
package puller

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/dsrb/rebuildd/internal/rebuild"
)

// ErrPoolClosed is returned by Submit once the pool has been stopped.
var ErrPoolClosed = errors.New("puller: pool is closed")

// Task is one simulated per-target rebuild job: claim worker slot WorkerID,
// scan, then pull ObjTotal/RecTotal objects/records from peers.
type Task struct {
	WorkerID int
	ObjTotal uint64
	RecTotal uint64

	// ScanDelay/PullTick are overridable so tests and demos can run fast
	// or slow; zero values fall back to sane simulated defaults.
	ScanDelay time.Duration
	PullTick  time.Duration
}

// Pool runs a fixed number of puller goroutines, each claiming whichever
// Task it is handed and driving that task's worker slot in the shared
// rebuild.CounterSet — the same TLC a real TGT_QUERY/TGT_FINI handler reads
// and tears down. Shape mirrors internal/worker.Pool: taskCh/stopCh/wg plus
// a started/stopped guard under mu.
type Pool struct {
	counters *rebuild.CounterSet

	taskCh  chan Task
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPool returns a puller pool bound to counters, unstarted.
func NewPool(counters *rebuild.CounterSet, bufferSize int) *Pool {
	return &Pool{
		counters: counters,
		taskCh:   make(chan Task, bufferSize),
		stopCh:   make(chan struct{}),
	}
}

// Start launches workerCount goroutines pulling from the shared task
// channel. Calling Start twice is an error, matching worker_pool.go.
func (p *Pool) Start(workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("puller: pool already started")
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.run()
	}
	p.started = true
	return nil
}

// Submit enqueues a simulated scan/pull task. Safe to call concurrently with
// Stop: the double-select against stopCh matches Submit's race-free shutdown
// discipline in worker_pool.go.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	taskCh := p.taskCh
	stopCh := p.stopCh
	p.mu.Unlock()

	select {
	case taskCh <- task:
		return nil
	case <-stopCh:
		return ErrPoolClosed
	}
}

// Stop closes the stop and task channels and waits for every worker to
// return. A task already pulling stops at its next tick; a task still
// buffered runs its scan delay and then returns without pulling.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	close(p.taskCh)
	p.wg.Wait()
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.taskCh {
		p.execute(task)
	}
}

// execute drives one task's worker slot through scanning -> pulling,
// incrementing ObjCount/RecCount a tick at a time so a concurrent TQA
// aggregation observes genuine in-flight progress, then clears the slot.
func (p *Pool) execute(task Task) {
	scanDelay := task.ScanDelay
	if scanDelay <= 0 {
		scanDelay = time.Duration(10+rand.Intn(40)) * time.Millisecond
	}
	tick := task.PullTick
	if tick <= 0 {
		tick = 20 * time.Millisecond
	}

	tlc := p.counters.Worker(task.WorkerID)
	tlc.Scanning = true
	p.counters.SetPullers(task.WorkerID, 1)

	ctx, cancel := context.WithTimeout(context.Background(), scanDelay+tick*10)
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(scanDelay):
	}
	tlc.Scanning = false

	const steps = 5
	for i := 1; i <= steps; i++ {
		select {
		case <-p.stopCh:
			p.counters.SetPullers(task.WorkerID, 0)
			return
		case <-time.After(tick):
		}
		tlc.ObjCount = task.ObjTotal * uint64(i) / steps
		tlc.RecCount = task.RecTotal * uint64(i) / steps
	}
	p.counters.SetPullers(task.WorkerID, 0)
}
