package segment

import (
	"sync"
	"testing"
	"time"
)

// fakeClock drives Segmenter deadlines without sleeping.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	stopped  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Advance moves the clock forward, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.deadline.After(target) {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.stopped = true
		c.now = next.deadline
		f := next.f
		c.mu.Unlock()
		f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func expectUtterance(t *testing.T, seg *Segmenter, want string) {
	t.Helper()
	select {
	case got := <-seg.Utterances():
		if got != want {
			t.Fatalf("unexpected utterance: got %q want %q", got, want)
		}
	default:
		t.Fatalf("expected utterance %q, got none", want)
	}
}

func expectNoUtterance(t *testing.T, seg *Segmenter) {
	t.Helper()
	select {
	case got := <-seg.Utterances():
		t.Fatalf("unexpected utterance %q", got)
	default:
	}
}

func TestBurstJoinsFragments(t *testing.T) {
	clock := newFakeClock()
	seg := NewWithClock(2*time.Second, clock)
	defer seg.Close()

	seg.Push("hello", true)
	clock.Advance(500 * time.Millisecond)
	seg.Push("there world", true)

	clock.Advance(1999 * time.Millisecond)
	expectNoUtterance(t, seg)

	clock.Advance(time.Millisecond)
	expectUtterance(t, seg, "hello there world")
}

func TestEmitsExactlyOnce(t *testing.T) {
	clock := newFakeClock()
	seg := NewWithClock(2*time.Second, clock)
	defer seg.Close()

	seg.Push("only once", true)
	clock.Advance(2 * time.Second)
	expectUtterance(t, seg, "only once")

	clock.Advance(10 * time.Second)
	expectNoUtterance(t, seg)
}

func TestReArmSupersedesDeadline(t *testing.T) {
	clock := newFakeClock()
	seg := NewWithClock(2*time.Second, clock)
	defer seg.Close()

	// Fragments 1s apart never let the 2s deadline elapse.
	seg.Push("a", true)
	clock.Advance(time.Second)
	seg.Push("b", true)
	clock.Advance(time.Second)
	seg.Push("c", true)

	expectNoUtterance(t, seg)

	clock.Advance(2 * time.Second)
	expectUtterance(t, seg, "a b c")
	expectNoUtterance(t, seg)
}

func TestInterimFragmentsIgnored(t *testing.T) {
	clock := newFakeClock()
	seg := NewWithClock(2*time.Second, clock)
	defer seg.Close()

	seg.Push("partial words", false)
	clock.Advance(time.Minute)
	expectNoUtterance(t, seg)
}

func TestEmptyFinalDoesNotArmOrReset(t *testing.T) {
	clock := newFakeClock()
	seg := NewWithClock(2*time.Second, clock)
	defer seg.Close()

	seg.Push("   ", true)
	clock.Advance(time.Minute)
	expectNoUtterance(t, seg)

	// An empty final after real content must not push the deadline out.
	seg.Push("hi", true)
	clock.Advance(time.Second)
	seg.Push("", true)
	clock.Advance(time.Second)
	expectUtterance(t, seg, "hi")
}

func TestRunningTranscriptNotDuplicated(t *testing.T) {
	clock := newFakeClock()
	seg := NewWithClock(2*time.Second, clock)
	defer seg.Close()

	seg.Push("what", false)
	seg.Push("what is", true)
	clock.Advance(500 * time.Millisecond)
	seg.Push("what is entropy", true)

	clock.Advance(2100 * time.Millisecond)
	expectUtterance(t, seg, "what is entropy")
	expectNoUtterance(t, seg)
}

func TestCloseCancelsPendingDeadline(t *testing.T) {
	clock := newFakeClock()
	seg := NewWithClock(2*time.Second, clock)

	seg.Push("dangling", true)
	seg.Close()
	clock.Advance(time.Minute)
	expectNoUtterance(t, seg)
}
