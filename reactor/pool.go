package reactor

import (
	"context"

	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/metrics"
)

// WorkerPool bounds the number of reactor drivers running concurrently,
// grounded on the same semaphore-gated goroutine dispatch used for
// gossip/broadcast fan-out in the retrieved pack's mempool reactor. A
// reactor's own dispatch stays single-threaded; the pool only bounds
// how many reactors run at once, it never shares one reactor across
// goroutines.
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a pool that runs at most size reactors at a
// time. size <= 0 is treated as 1.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{sem: make(chan struct{}, size)}
}

// Go blocks until a slot is free, then runs fn on its own goroutine.
// The slot is released when fn returns.
func (p *WorkerPool) Go(fn func()) {
	p.sem <- struct{}{}
	go func() {
		defer func() { <-p.sem }()
		fn()
	}()
}

// Spawn registers a mailbox for id, builds a driver around params, and
// runs it on the pool. The returned driver's Handle can be used to seed
// initial links before the first external message arrives.
func Spawn[S any](ctx context.Context, broker *Broker, pool *WorkerPool, id ID, name string, params *CoreParams[S], logger log.Logger, m *metrics.Metrics) (*ReactorDriver[S], error) {
	mb, err := broker.NewMailbox(id, name)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if m == nil {
		m = metrics.Noop()
	}
	d := newDriver(id, name, broker, mb, params, logger, m)
	pool.Go(func() { d.Run(ctx) })
	return d, nil
}
