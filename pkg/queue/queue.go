// Package queue serializes continuation-style actions.
package queue

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Action is one unit of queued work. It must call next once it is finished,
// from any goroutine and at any later time, to let the queue move on.
// Calling next more than once has no further effect.
type Action func(next func()) error

// Queue runs actions strictly in FIFO order, one at a time. An action that
// returns an error or panics is discarded and the queue continues with the
// following one.
type Queue struct {
	mu      sync.Mutex
	items   []Action
	running bool
	log     *zap.SugaredLogger
	onFault func(error)
}

// New returns an empty queue.
func New(log *zap.SugaredLogger) *Queue {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Queue{log: log}
}

// OnFault registers fn to be called with the error of every failed action.
func (q *Queue) OnFault(fn func(error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFault = fn
}

// Enqueue appends an action. It does not start the queue.
func (q *Queue) Enqueue(a Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, a)
}

// Len returns the number of actions waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Running reports whether an action is in flight.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// RunQueue starts the head action unless one is already running or the
// queue is empty.
func (q *Queue) RunQueue() {
	for {
		q.mu.Lock()
		if q.running || len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		a := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.running = true
		q.mu.Unlock()

		var once sync.Once
		release := func() (fired bool) {
			once.Do(func() {
				q.mu.Lock()
				q.running = false
				q.mu.Unlock()
				fired = true
			})
			return fired
		}
		next := func() {
			if release() {
				q.RunQueue()
			}
		}

		err := invoke(a, next)
		if err == nil {
			return
		}
		q.fault(err)
		if !release() {
			// next already ran and moved the queue on
			return
		}
	}
}

func (q *Queue) fault(err error) {
	q.log.Warnf("queued action failed: %v", err)
	q.mu.Lock()
	fn := q.onFault
	q.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func invoke(a Action, next func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a(next)
}
