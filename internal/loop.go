package internal

import (
	"context"
	"fmt"
	"sync"
)

// Loop runs posted closures one at a time on a single goroutine; everything that touches
// station state goes through it
type Loop struct {
	queue   chan func()
	done    chan struct{}
	logger  LogHandler
	started sync.Once
	stopped sync.Once
}

func NewLoop(size int, logger LogHandler) *Loop {
	if size <= 0 {
		size = 64
	}
	return &Loop{
		queue:  make(chan func(), size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run blocks until ctx is cancelled
func (l *Loop) Run(ctx context.Context) {
	defer l.stopped.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			l.execute(fn)
		}
	}
}

func (l *Loop) Start(ctx context.Context) {
	l.started.Do(func() {
		go l.Run(ctx)
	})
}

// Done is closed once the loop has stopped
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil && l.logger != nil {
			l.logger.Error("loop task panic", fmt.Errorf("%v", r))
		}
	}()
	fn()
}

// Post queues fn, false when the loop is stopped
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do queues fn and waits for it to finish; never call it from inside a loop task
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}
