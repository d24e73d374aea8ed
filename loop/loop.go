// Package loop provides the cooperative event loop every node runs on. All
// protocol state of a node is confined to the loop goroutine, so handlers
// run to completion and need no locking.
package loop

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/golang/glog"
)

// A Scheduler is the only way protocol components observe time or defer
// work. Loop is the production implementation; Manual drives tests.
type Scheduler interface {
	// Now returns the current time.
	Now() time.Time
	// Post queues f to run on the loop.
	Post(f func())
	// AfterFunc runs f on the loop after d has elapsed, unless the
	// returned timer is stopped first.
	AfterFunc(d time.Duration, f func()) Timer
	// Go runs work outside the loop and delivers its result to done on
	// the loop.
	Go(work func() error, done func(error))
}

type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was stopped.
	Stop() bool
}

type Loop struct {
	events      chan func()
	stop        chan struct{}
	stopOnce    sync.Once
	stopCheckIn *sync.WaitGroup
}

func NewLoop(queueSize int, stopCheckIn *sync.WaitGroup) *Loop {
	return &Loop{
		events:      make(chan func(), queueSize),
		stop:        make(chan struct{}),
		stopCheckIn: stopCheckIn,
	}
}

func (l *Loop) Start() {
	glog.V(1).Info("starting event loop")
	go func() {
		defer l.stopCheckIn.Done()
		for {
			select {
			case f := <-l.events:
				run(f)
			case <-l.stop:
				glog.V(1).Info("exiting")
				return
			}
		}
	}()
}

// Stop makes the loop goroutine exit. Events posted afterwards are
// discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post blocks while the queue is full, but never once the loop has been
// stopped.
func (l *Loop) Post(f func()) {
	select {
	case l.events <- f:
	case <-l.stop:
	}
}

func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.stopped {
				return
			}
			lt.stopped = true
			f()
		})
	})
	return lt
}

func (l *Loop) Go(work func() error, done func(error)) {
	go func() {
		err := work()
		l.Post(func() { done(err) })
	}()
}

// loopTimer is only touched from the loop goroutine, apart from the
// underlying time.Timer which is safe for concurrent use.
type loopTimer struct {
	t       *time.Timer
	stopped bool
}

func (lt *loopTimer) Stop() bool {
	if lt.stopped {
		return false
	}
	lt.stopped = true
	lt.t.Stop()
	return true
}

// run executes one event. A panicking handler is logged and never unwinds
// into the loop.
func run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("recovered from panic in event handler: %v\n%s", r, debug.Stack())
		}
	}()
	f()
}
