package scheduler

import "time"

// Executor runs callbacks on the station loop
type Executor interface {
	Post(fn func()) bool
}

// Task is a periodic or one-shot job. The stopped flag is only touched on the loop, a tick
// that was already queued when the task stopped is dropped there.
type Task struct {
	period  time.Duration
	once    bool
	quit    chan struct{}
	stopped bool
}

func (t *Task) Period() time.Duration {
	return t.period
}

// Stop is idempotent
func (t *Task) Stop() {
	if t == nil || t.stopped {
		return
	}
	t.stopped = true
	close(t.quit)
}

func startTask(clock Clock, executor Executor, period time.Duration, once bool, fire func()) *Task {
	task := &Task{
		period: period,
		once:   once,
		quit:   make(chan struct{}),
	}
	ticker := clock.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				executor.Post(func() {
					if task.stopped {
						return
					}
					if task.once {
						task.Stop()
					}
					fire()
				})
				if once {
					return
				}
			case <-task.quit:
				return
			}
		}
	}()
	return task
}
