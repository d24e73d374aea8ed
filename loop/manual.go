package loop

import (
	"container/heap"
	"time"
)

// Manual is a deterministic Scheduler with virtual time. Several nodes may
// share one Manual, which then serializes a whole simulated cluster.
type Manual struct {
	now     time.Time
	queue   []func()
	timers  timerHeap
	seq     uint64
	Panics  int
	MaxRuns int
}

// Epoch is the virtual start time of every Manual.
var Epoch = time.Date(2014, time.January, 1, 0, 0, 0, 0, time.UTC)

func NewManual() *Manual {
	return &Manual{now: Epoch, MaxRuns: 1 << 20}
}

func (m *Manual) Now() time.Time {
	return m.now
}

func (m *Manual) Post(f func()) {
	m.queue = append(m.queue, f)
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.seq++
	mt := &manualTimer{when: m.now.Add(d), seq: m.seq, f: f}
	heap.Push(&m.timers, mt)
	return mt
}

// Go runs work immediately but delivers done through the queue, so the
// caller still observes an asynchronous completion.
func (m *Manual) Go(work func() error, done func(error)) {
	err := work()
	m.Post(func() { done(err) })
}

// RunPending runs queued events, including those queued while running,
// until the queue is empty. It returns the number of events run.
func (m *Manual) RunPending() int {
	n := 0
	for len(m.queue) > 0 && n < m.MaxRuns {
		f := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.run(f)
		n++
	}
	return n
}

// Advance moves virtual time forward by d, firing due timers in deadline
// order and draining the event queue after each.
func (m *Manual) Advance(d time.Duration) {
	m.RunPending()
	end := m.now.Add(d)
	for m.timers.Len() > 0 && !m.timers[0].when.After(end) {
		mt := heap.Pop(&m.timers).(*manualTimer)
		if mt.stopped {
			continue
		}
		if mt.when.After(m.now) {
			m.now = mt.when
		}
		mt.stopped = true
		m.run(mt.f)
		m.RunPending()
	}
	m.now = end
}

// Step advances time in increments of d for a total of total, which
// spreads timer firings the way a real clock would.
func (m *Manual) Step(d, total time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += d {
		m.Advance(d)
	}
}

func (m *Manual) run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			m.Panics++
		}
	}()
	f()
}

type manualTimer struct {
	when    time.Time
	seq     uint64
	f       func()
	stopped bool
}

func (mt *manualTimer) Stop() bool {
	if mt.stopped {
		return false
	}
	mt.stopped = true
	return true
}

type timerHeap []*manualTimer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*manualTimer)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
