package bridge

import (
	"sync"

	"github.com/nerrad567/gray-logic-cloud/internal/entity"
)

// defaultQueueDepth is the number of states held per entity before the
// oldest is dropped.
const defaultQueueDepth = 32

// stateQueue hands published states to per-entity workers so a coordinator
// callback only enqueues. States of one entity are delivered in order; at
// most one worker runs per entity and exits once its queue is empty.
type stateQueue struct {
	deliver func(entity.State)
	onDrop  func(entity.State)
	depth   int

	mu       sync.Mutex
	idle     *sync.Cond
	pending  map[string][]entity.State
	draining map[string]bool
	workers  int
	closed   bool
}

func newStateQueue(depth int, deliver, onDrop func(entity.State)) *stateQueue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	q := &stateQueue{
		deliver:  deliver,
		onDrop:   onDrop,
		depth:    depth,
		pending:  make(map[string][]entity.State),
		draining: make(map[string]bool),
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// push enqueues s. It never blocks on delivery and reports false once the
// queue is closed.
func (q *stateQueue) push(s entity.State) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	var dropped *entity.State
	p := q.pending[s.EntityID]
	if len(p) >= q.depth {
		oldest := p[0]
		dropped = &oldest
		p = p[1:]
	}
	q.pending[s.EntityID] = append(p, s)

	if !q.draining[s.EntityID] {
		q.draining[s.EntityID] = true
		q.workers++
		go q.drain(s.EntityID)
	}
	q.mu.Unlock()

	if dropped != nil && q.onDrop != nil {
		q.onDrop(*dropped)
	}
	return true
}

func (q *stateQueue) drain(entityID string) {
	for {
		q.mu.Lock()
		p := q.pending[entityID]
		if len(p) == 0 {
			delete(q.pending, entityID)
			delete(q.draining, entityID)
			q.workers--
			if q.workers == 0 {
				q.idle.Broadcast()
			}
			q.mu.Unlock()
			return
		}
		s := p[0]
		q.pending[entityID] = p[1:]
		q.mu.Unlock()

		q.deliver(s)
	}
}

// wait blocks until every queued state has been delivered.
func (q *stateQueue) wait() {
	q.mu.Lock()
	for q.workers > 0 {
		q.idle.Wait()
	}
	q.mu.Unlock()
}

// close rejects further states and waits for the queued ones.
func (q *stateQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wait()
}
