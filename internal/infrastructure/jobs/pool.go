// Package jobs runs fire-and-forget background work such as indexing and snippet builds.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// ErrPoolClosed is reported by handles submitted after Close.
var ErrPoolClosed = errors.New("job pool closed")

// Job is one unit of background work. Jobs are not cancelled once started.
type Job func(ctx context.Context) error

// State is the lifecycle stage of a job.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Handle tracks one submitted job.
type Handle struct {
	ID   int64
	Name string

	mu       sync.Mutex
	state    State
	err      error
	started  time.Time
	finished time.Time
	done     chan struct{}
}

func newHandle(id int64, name string) *Handle {
	return &Handle{ID: id, Name: name, state: StatePending, done: make(chan struct{})}
}

// Done is closed when the job finishes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the job finishes and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.Err()
}

// Err returns the job's error, nil while running or on success.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Info is a point-in-time view of a handle.
type Info struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	State    State     `json:"state"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started,omitempty"`
	Finished time.Time `json:"finished,omitempty"`
}

// Info returns the current state of the job.
func (h *Handle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	info := Info{ID: h.ID, Name: h.Name, State: h.state, Started: h.started, Finished: h.finished}
	if h.err != nil {
		info.Error = h.err.Error()
	}
	return info
}

func (h *Handle) start() {
	h.mu.Lock()
	h.state = StateRunning
	h.started = time.Now()
	h.mu.Unlock()
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.state = StateDone
	if err != nil {
		h.state = StateFailed
	}
	h.finished = time.Now()
	h.mu.Unlock()
	close(h.done)
}

// Pool runs jobs on at most workers goroutines at a time.
type Pool struct {
	ctx    context.Context
	sem    chan struct{}
	wg     conc.WaitGroup
	nextID atomic.Int64

	mu     sync.RWMutex
	closed bool
	recent []*Handle // bounded history for status views
}

const historySize = 64

// NewPool creates a job pool. workers <= 0 means 4.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{ctx: context.Background(), sem: make(chan struct{}, workers)}
}

// Submit schedules job and returns immediately.
func (p *Pool) Submit(name string, job Job) *Handle {
	h := newHandle(p.nextID.Add(1), name)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		h.finish(fmt.Errorf("%s: %w", name, ErrPoolClosed))
		return h
	}
	p.recent = append(p.recent, h)
	if len(p.recent) > historySize {
		p.recent = p.recent[len(p.recent)-historySize:]
	}

	p.wg.Go(func() {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		p.run(h, job)
	})
	return h
}

func (p *Pool) run(h *Handle, job Job) {
	h.start()
	logging.Infof("Job #%d %s started", h.ID, h.Name)

	var err error
	if rec := panics.Try(func() { err = job(p.ctx) }); rec != nil {
		err = fmt.Errorf("job panicked: %w", rec.AsError())
	}

	h.finish(err)
	if err != nil {
		logging.Errorf("Job #%d %s failed after %s: %v", h.ID, h.Name, time.Since(h.started).Round(time.Millisecond), err)
		return
	}
	logging.Infof("Job #%d %s finished in %s", h.ID, h.Name, time.Since(h.started).Round(time.Millisecond))
}

// Jobs returns the most recent jobs, oldest first.
func (p *Pool) Jobs() []Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Info, len(p.recent))
	for i, h := range p.recent {
		out[i] = h.Info()
	}
	return out
}

// Close stops accepting jobs and waits for submitted ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
