package watcher

import (
	"sync"
	"time"
)

// Timer is a cancelable schedule: a single delayed run or a fixed-interval poll. Stop is
// idempotent; no run starts after it returns.
type Timer struct {
	stop chan struct{}
	once sync.Once
}

// After runs fn once after d.
func After(d time.Duration, fn func()) *Timer {
	t := &Timer{stop: make(chan struct{})}

	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-t.stop:
		case <-timer.C:
			t.run(fn)
		}
	}()

	return t
}

// Every runs fn on each tick of interval.
func Every(interval time.Duration, fn func()) *Timer {
	t := &Timer{stop: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				t.run(fn)
			}
		}
	}()

	return t
}

func (t *Timer) run(fn func()) {
	select {
	case <-t.stop:
	default:
		fn()
	}
}

func (t *Timer) Stop() {
	t.once.Do(func() {
		close(t.stop)
	})
}
