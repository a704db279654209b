// Package workerpool provides a small bounded goroutine pool (ants) for
// the two pieces of OMS work that must never share a thread with the
// gateway egress router or an engine partition: recording ack-latency
// samples into a histogram, and periodically snapshotting book depth
// for marketdata publication. Matching and gateway I/O never go through
// this pool - only this async fan-out work does.
package workerpool

import (
	"errors"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed     = errors.New("worker pool is closed")
	ErrPoolOverloaded = errors.New("worker pool is overloaded")
)

// Pool wraps a single named ants.Pool. The factory keys pools by name so
// the two independent jobs (latency recording, snapshot publication)
// don't compete with each other's backlog.
type Pool struct {
	name   string
	pool   *ants.Pool
	logger *zap.Logger
}

// New creates a pool of size goroutines. PreAlloc is enabled since both
// call sites run for the life of the process.
func New(name string, size int, logger *zap.Logger) (*Pool, error) {
	p, err := ants.NewPool(size, ants.WithOptions(ants.Options{
		PreAlloc:    true,
		Nonblocking: true,
		PanicHandler: func(r interface{}) {
			logger.Error("workerpool task panicked", zap.String("pool", name), zap.Any("panic", r))
		},
	}))
	if err != nil {
		return nil, err
	}
	return &Pool{name: name, pool: p, logger: logger}, nil
}

// Submit enqueues task for asynchronous execution. It never blocks the
// caller: a full pool returns ErrPoolOverloaded immediately so the
// caller (e.g. the egress router) can drop the sample rather than stall
// the hot path.
func (p *Pool) Submit(task func()) error {
	err := p.pool.Submit(task)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrPoolOverloaded
	default:
		return err
	}
}

// Running returns the number of goroutines currently executing a task.
func (p *Pool) Running() int { return p.pool.Running() }

// Release stops accepting new tasks and waits for in-flight ones to
// finish.
func (p *Pool) Release() { p.pool.Release() }

// Factory keeps the named pools used across the process so each is
// created exactly once, mirroring the one-pool-per-concern pattern the
// rest of the ambient stack follows.
type Factory struct {
	mu     sync.Mutex
	pools  map[string]*Pool
	logger *zap.Logger
}

func NewFactory(logger *zap.Logger) *Factory {
	return &Factory{pools: make(map[string]*Pool), logger: logger}
}

// Get returns the named pool, creating it with size workers on first
// use.
func (f *Factory) Get(name string, size int) (*Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.pools[name]; ok {
		return p, nil
	}
	p, err := New(name, size, f.logger)
	if err != nil {
		return nil, err
	}
	f.pools[name] = p
	return p, nil
}

// ReleaseAll releases every pool the factory has created.
func (f *Factory) ReleaseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pools {
		p.Release()
	}
}
