package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock drives AfterFunc timers manually.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

func TestOnlyLastTriggerRuns(t *testing.T) {
	clock := &fakeClock{}
	d := NewWithTimer(300*time.Millisecond, clock.AfterFunc)
	var got []string
	for _, q := range []string{"p", "pu", "pum", "pump"} {
		q := q
		d.Trigger(func() { got = append(got, q) })
		clock.Advance(100 * time.Millisecond)
	}
	if len(got) != 0 {
		t.Fatalf("ran before the window elapsed: %v", got)
	}
	clock.Advance(200 * time.Millisecond)
	if len(got) != 1 || got[0] != "pump" {
		t.Fatalf("got %v, want [pump]", got)
	}
	clock.Advance(time.Second)
	if len(got) != 1 {
		t.Fatalf("ran more than once: %v", got)
	}
}

func TestCancelDropsPending(t *testing.T) {
	clock := &fakeClock{}
	d := NewWithTimer(300*time.Millisecond, clock.AfterFunc)
	var calls int
	d.Trigger(func() { calls++ })
	if !d.Pending() {
		t.Fatalf("expected pending call")
	}
	d.Cancel()
	clock.Advance(time.Second)
	if calls != 0 || d.Pending() {
		t.Fatalf("cancelled call ran: calls=%d", calls)
	}
}

func TestFlushRunsPendingNow(t *testing.T) {
	clock := &fakeClock{}
	d := NewWithTimer(300*time.Millisecond, clock.AfterFunc)
	var calls int
	d.Trigger(func() { calls++ })
	d.Flush()
	if calls != 1 {
		t.Fatalf("flush did not run the call")
	}
	clock.Advance(time.Second)
	if calls != 1 {
		t.Fatalf("flushed call ran again")
	}
	d.Flush()
	if calls != 1 {
		t.Fatalf("flush with nothing pending ran something")
	}
}

func TestRealTimer(t *testing.T) {
	d := New(20 * time.Millisecond)
	var calls atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		d.Trigger(func() {
			if calls.Add(1) == 1 {
				close(done)
			}
		})
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("debounced call never ran")
	}
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestPendingWhileCallRuns(t *testing.T) {
	clock := &fakeClock{}
	d := NewWithTimer(300*time.Millisecond, clock.AfterFunc)
	started := make(chan struct{})
	release := make(chan struct{})
	d.Trigger(func() {
		close(started)
		<-release
	})

	done := make(chan struct{})
	go func() {
		clock.Advance(time.Second)
		close(done)
	}()
	<-started
	if !d.Pending() {
		t.Fatalf("expected pending while the call runs")
	}
	close(release)
	<-done
	if d.Pending() {
		t.Fatalf("still pending after the call returned")
	}
}
