package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// DefaultWorkers is the worker count used when Start is given zero.
const DefaultWorkers = 4

// ErrAlreadyStarted is returned by a second call to Processor.Start.
var ErrAlreadyStarted = errors.New("processor already started")

// Committer is the unit of work run for every dequeued request.
// *Service implements it.
type Committer interface {
	CreateReservation(ctx context.Context, req Request) (*model.Reservation, error)
}

// Options tunes a Processor.  The zero value gives an unbounded queue
// without per-request timeouts.
type Options struct {
	// MaxQueueDepth rejects submissions with model.ErrOverloaded once
	// this many requests are waiting.  Zero means unbounded.
	MaxQueueDepth int
	// RequestTimeout resolves a handle with model.ErrTimeout when no
	// worker has picked the request up in time.  Zero disables it.
	RequestTimeout time.Duration
	Logger         *zap.Logger
	Metrics        *Metrics
}

const (
	statePending int32 = iota
	stateProcessing
	stateTimedOut
)

// pending is a queued request together with its completion handle.  The
// state word decides whether a worker or the timeout timer owns it.
type pending struct {
	req      Request
	handle   *Handle
	state    atomic.Int32
	timer    *time.Timer
	enqueued time.Time
}

// Processor decouples submission from processing: Submit appends to a
// FIFO queue and returns immediately, a fixed pool of workers drains the
// queue.  Every request is processed by exactly one worker, exactly
// once; no ordering is guaranteed between requests picked up by
// different workers.
type Processor struct {
	committer Committer
	opts      Options
	logger    *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*pending
	started bool
	closing bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessor returns a processor that hands requests to committer.
func NewProcessor(committer Committer, opts Options) *Processor {
	if committer == nil {
		panic("nil committer passed to reservation.NewProcessor")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		committer: committer,
		opts:      opts,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start spins up workers goroutines draining the shared queue.  It may
// be called once; later calls return ErrAlreadyStarted.
func (p *Processor) Start(workers int) error {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	if p.closing {
		return model.ErrShuttingDown
	}
	p.started = true
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i + 1)
	}
	p.logger.Info("reservation processor started", zap.Int("workers", workers))
	return nil
}

// Submit enqueues req and returns its handle without waiting for any
// processing.  Requests submitted before Start wait in the queue.
// Rejections (overload, shutdown) are delivered through the handle.
func (p *Processor) Submit(req Request) *Handle {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	item := &pending{req: req, handle: newHandle(), enqueued: time.Now()}
	if p.opts.RequestTimeout > 0 {
		item.timer = time.AfterFunc(p.opts.RequestTimeout, func() { p.expire(item) })
	}

	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		p.reject(item, model.ErrShuttingDown)
		return item.handle
	}
	if p.opts.MaxQueueDepth > 0 && len(p.queue) >= p.opts.MaxQueueDepth {
		p.mu.Unlock()
		p.reject(item, model.ErrOverloaded)
		return item.handle
	}
	p.queue = append(p.queue, item)
	depth := len(p.queue)
	p.cond.Signal()
	p.mu.Unlock()

	p.opts.Metrics.setQueueDepth(depth)
	return item.handle
}

// QueueDepth returns the number of requests waiting for a worker.
func (p *Processor) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Shutdown stops accepting submissions, lets the workers drain the queue
// and waits for them to exit.  When ctx expires first, in-flight work is
// cancelled, requests still queued resolve with model.ErrShuttingDown
// and ctx.Err() is returned.  A processor that was never started
// resolves its queued requests with model.ErrShuttingDown.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closing = true
	started := p.started
	var orphans []*pending
	if !started {
		orphans, p.queue = p.queue, nil
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, item := range orphans {
		p.reject(item, model.ErrShuttingDown)
	}
	p.opts.Metrics.setQueueDepth(p.QueueDepth())

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		p.logger.Info("reservation processor stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.mu.Lock()
		orphans, p.queue = p.queue, nil
		p.mu.Unlock()
		p.opts.Metrics.setQueueDepth(0)
		for _, item := range orphans {
			p.reject(item, model.ErrShuttingDown)
		}
		p.logger.Warn("reservation processor shutdown interrupted",
			zap.Int("rejected", len(orphans)), zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// next blocks until an item is available or the processor is closing
// with an empty queue.  The predicate is re-checked under the lock after
// every wake-up, so a signal sent while a worker is busy is never lost.
func (p *Processor) next() (*pending, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closing {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}
	item := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.opts.Metrics.setQueueDepth(len(p.queue))
	return item, true
}

func (p *Processor) worker(id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))
	for {
		item, ok := p.next()
		if !ok {
			log.Debug("worker exiting")
			return
		}
		p.process(log, item)
	}
}

func (p *Processor) process(log *zap.Logger, item *pending) {
	if p.ctx.Err() != nil {
		// shutdown gave up waiting; never start new work
		p.reject(item, model.ErrShuttingDown)
		return
	}
	if !item.state.CompareAndSwap(statePending, stateProcessing) {
		// the timeout fired first and already resolved the handle
		return
	}
	if item.timer != nil {
		item.timer.Stop()
	}
	log.Debug("processing", zap.Stringer("request", item.req), zap.Duration("queued", time.Since(item.enqueued)))

	start := time.Now()
	res, err := p.run(log, item.req)
	p.opts.Metrics.observe(err, time.Since(start))
	p.complete(item, res, err)
}

// run executes one request and converts a panic into a fault attributed
// to that request, keeping the worker alive.
func (p *Processor) run(log *zap.Logger, req Request) (res *model.Reservation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = model.Fault(fmt.Errorf("panic while processing reservation: %v", r))
			res = nil
			log.Error("reservation worker recovered from panic",
				zap.Stringer("request", req),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	return p.committer.CreateReservation(p.ctx, req)
}

func (p *Processor) expire(item *pending) {
	if !item.state.CompareAndSwap(statePending, stateTimedOut) {
		return
	}
	p.dequeue(item)
	p.logger.Debug("reservation request timed out", zap.Stringer("request", item.req))
	p.opts.Metrics.count(model.ErrTimeout)
	p.complete(item, nil, model.ErrTimeout)
}

// dequeue drops item from the queue if it is still waiting there.
func (p *Processor) dequeue(item *pending) {
	p.mu.Lock()
	for i, q := range p.queue {
		if q == item {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	depth := len(p.queue)
	p.mu.Unlock()
	p.opts.Metrics.setQueueDepth(depth)
}

func (p *Processor) reject(item *pending, err error) {
	if item.timer != nil {
		item.timer.Stop()
	}
	if !item.state.CompareAndSwap(statePending, stateProcessing) {
		return
	}
	p.opts.Metrics.count(err)
	p.complete(item, nil, err)
}

func (p *Processor) complete(item *pending, res *model.Reservation, err error) {
	if rerr := item.handle.resolve(res, err); rerr != nil {
		// DPanic panics with a development logger and logs in production
		p.logger.DPanic("reservation handle resolved twice", zap.Stringer("request", item.req), zap.Error(err))
	}
}
