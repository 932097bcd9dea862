package sync

import (
	"context"
	"sync"
)

// Loop runs posted tasks one at a time on a single goroutine. Session state,
// the pending queue and every buffer mutation are confined to it; the only
// way other goroutines touch them is by posting a task.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed chan struct{}
	once   sync.Once
}

// NewLoop creates a loop. Call Run to start processing.
func NewLoop() *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Post queues fn without blocking. Tasks posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.closed:
		return
	default:
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it. It must not be called from a task.
// It returns false if the loop shut down before fn ran.
func (l *Loop) Do(fn func()) bool {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return true
	case <-l.closed:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// Run processes tasks until ctx is done or Close is called.
func (l *Loop) Run(ctx context.Context) {
	for {
		l.mu.Lock()
		tasks := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range tasks {
			fn()
		}
		if len(tasks) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			l.Close()
			return
		case <-l.closed:
			return
		case <-l.wake:
		}
	}
}

// Close stops the loop. Queued tasks that have not started are discarded.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.closed) })
}
