// File: workerpool/workerpool.go
// Author: momentics <momentics@gmail.com>
//
// WorkerPool shards NetworkEvents across N workers by connection_id, so all
// events for one connection are observed by the user in the reactor's
// original order while distinct connections run in parallel.
package workerpool

import (
	"sync"
	"time"

	"github.com/hioload/netrt/api"
	"github.com/hioload/netrt/queue"
	"github.com/rs/zerolog"
)

const (
	defaultQueueCapacity = 4096
	idleSleep            = time.Millisecond
)

// WorkerPool owns N goroutines, each draining its own ConcurrentQueue and
// invoking the user's EventHandler for every dequeued event.
type WorkerPool struct {
	queues  []*queue.ConcurrentQueue[api.NetworkEvent]
	handler api.EventHandler
	log     zerolog.Logger

	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// New creates a WorkerPool with n workers, each backed by a bounded queue of
// queueCapacity (defaultQueueCapacity if <= 0). handler is invoked for every
// event; it must be set before Start.
func New(n int, queueCapacity int, handler api.EventHandler, log zerolog.Logger) *WorkerPool {
	if n <= 0 {
		n = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}
	p := &WorkerPool{
		queues:  make([]*queue.ConcurrentQueue[api.NetworkEvent], n),
		handler: handler,
		log:     log,
	}
	for i := range p.queues {
		p.queues[i] = queue.New[api.NetworkEvent](queueCapacity)
	}
	return p
}

// Start launches one goroutine per worker.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	for i, q := range p.queues {
		p.wg.Add(1)
		go p.run(i, q)
	}
}

func (p *WorkerPool) run(id int, q *queue.ConcurrentQueue[api.NetworkEvent]) {
	defer p.wg.Done()
	for {
		ev, ok := q.WaitDequeue(idleSleep)
		if ok {
			p.invoke(ev)
			continue
		}
		if p.stopped() {
			// Drain any residual events enqueued just before stop for
			// at-least-once delivery, then exit.
			for {
				ev, ok := q.TryDequeue()
				if !ok {
					return
				}
				p.invoke(ev)
			}
		}
	}
}

func (p *WorkerPool) invoke(ev api.NetworkEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().
				Interface("panic", r).
				Uint64("connection_id", ev.ConnectionID).
				Str("event", ev.Type.String()).
				Msg("worker: user callback panicked")
		}
	}()
	p.handler(ev)
}

func (p *WorkerPool) stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.running
}

// SubmitEvent routes e to queue connection_id % N, blocking if that queue is
// momentarily full.
func (p *WorkerPool) SubmitEvent(e api.NetworkEvent) {
	idx := e.ConnectionID % uint64(len(p.queues))
	p.queues[idx].Enqueue(e)
}

// Stop signals all queues to stop (waking any blocked dequeues), joins the
// workers, and lets each worker drain its residual events before returning
// so no observed event is silently dropped.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	for _, q := range p.queues {
		q.NotifyStop()
	}
	p.wg.Wait()
}

// WorkerCount reports N.
func (p *WorkerPool) WorkerCount() int { return len(p.queues) }
