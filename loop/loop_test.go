package loop

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestManualTimersFireInOrder(t *testing.T) {
	m := NewManual()
	var fired []int
	m.AfterFunc(30*time.Millisecond, func() { fired = append(fired, 3) })
	m.AfterFunc(10*time.Millisecond, func() { fired = append(fired, 1) })
	m.AfterFunc(10*time.Millisecond, func() { fired = append(fired, 2) })
	stopped := m.AfterFunc(20*time.Millisecond, func() { fired = append(fired, 99) })
	if !stopped.Stop() {
		t.Error("expected Stop to report true")
	}
	if stopped.Stop() {
		t.Error("expected second Stop to report false")
	}

	m.Advance(25 * time.Millisecond)
	if len(fired) != 2 || fired[0] != 1 || fired[1] != 2 {
		t.Fatalf("unexpected firing order %v", fired)
	}
	if got := m.Now().Sub(Epoch); got != 25*time.Millisecond {
		t.Errorf("now advanced by %v, want 25ms", got)
	}
	m.Advance(10 * time.Millisecond)
	if len(fired) != 3 || fired[2] != 3 {
		t.Fatalf("unexpected firing order %v", fired)
	}
}

func TestManualPostAndGo(t *testing.T) {
	m := NewManual()
	var order []string
	m.Post(func() {
		order = append(order, "a")
		m.Post(func() { order = append(order, "c") })
	})
	m.Go(func() error { order = append(order, "work"); return errors.New("x") },
		func(err error) {
			if err == nil {
				t.Error("expected error to be delivered")
			}
			order = append(order, "b")
		})
	if len(order) != 1 || order[0] != "work" {
		t.Fatalf("work should run immediately, done should be queued: %v", order)
	}
	m.RunPending()
	want := []string{"work", "a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("%v != %v", order, want)
		}
	}
}

func TestManualRecoversPanics(t *testing.T) {
	m := NewManual()
	ran := false
	m.Post(func() { panic("boom") })
	m.Post(func() { ran = true })
	m.RunPending()
	if !ran || m.Panics != 1 {
		t.Errorf("ran=%t panics=%d", ran, m.Panics)
	}
}

func TestLoopRunsEventsAndTimers(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	l := NewLoop(16, &wg)
	l.Start()

	done := make(chan string, 3)
	l.Post(func() { panic("handler failure") })
	l.Post(func() { done <- "post" })
	l.AfterFunc(5*time.Millisecond, func() { done <- "timer" })
	cancelled := l.AfterFunc(time.Millisecond, func() { done <- "cancelled" })
	l.Post(func() { cancelled.Stop() })
	l.Go(func() error { return nil }, func(err error) { done <- "go" })

	seen := make(map[string]bool)
	timeout := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case s := <-done:
			seen[s] = true
		case <-timeout:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	if seen["cancelled"] {
		t.Error("stopped timer fired")
	}
	l.Stop()
	wg.Wait()
}

func TestLoopPostAfterStopReturns(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	l := NewLoop(2, &wg)
	l.Start()
	l.Stop()
	l.Stop()
	wg.Wait()

	fired := make(chan struct{})
	for i := 0; i < 4; i++ {
		l.AfterFunc(time.Millisecond, func() {})
		l.Go(func() error { return nil }, func(error) {})
	}
	go func() {
		defer close(fired)
		for i := 0; i < 8; i++ {
			l.Post(func() { t.Error("event ran after stop") })
		}
	}()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("Post blocked on a stopped loop")
	}
}
