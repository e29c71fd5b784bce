package sim

import (
	"container/heap"
	"time"

	"github.com/sirupsen/logrus"
)

// Timer is a pending callback owned by a VirtualClock. It fires at most once.
type Timer struct {
	fireTime float64
	seq      uint64
	callback func()
	index    int // position in the heap, -1 once fired or stopped
}

// FireTime returns the virtual time at which the timer fires.
func (t *Timer) FireTime() float64 {
	return t.fireTime
}

// Pending reports whether the timer is still queued.
func (t *Timer) Pending() bool {
	return t.index >= 0
}

// timerHeap orders timers by fire time, ties broken by registration order.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].fireTime != h[j].fireTime {
		return h[i].fireTime < h[j].fireTime
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[0 : n-1]
	return t
}

// VirtualClock owns simulation time (in virtual seconds) and the pending timer
// queue. It never blocks: Advance only invokes callbacks, and callbacks are
// expected to wake tasks rather than run them.
type VirtualClock struct {
	now     float64
	timers  timerHeap
	nextSeq uint64

	// settle runs after every fired callback so that resumed tasks can re-arm
	// timers that are already due within the same Advance call.
	settle func()
}

// NewVirtualClock creates a clock at time zero with no pending timers.
func NewVirtualClock() *VirtualClock {
	c := &VirtualClock{timers: make(timerHeap, 0)}
	heap.Init(&c.timers)
	return c
}

// Now returns the current virtual time in seconds.
func (c *VirtualClock) Now() float64 {
	return c.now
}

// Pending returns the number of queued timers.
func (c *VirtualClock) Pending() int {
	return c.timers.Len()
}

// SetTimer schedules callback at Now()+delay and returns its handle.
func (c *VirtualClock) SetTimer(delay float64, callback func()) *Timer {
	c.nextSeq++
	t := &Timer{fireTime: c.now + delay, seq: c.nextSeq, callback: callback}
	heap.Push(&c.timers, t)
	return t
}

// Stop removes t from the queue. It returns false if t already fired or was
// stopped before.
func (c *VirtualClock) Stop(t *Timer) bool {
	if t == nil || t.index < 0 || t.index >= len(c.timers) || c.timers[t.index] != t {
		return false
	}
	heap.Remove(&c.timers, t.index)
	return true
}

// Advance converts delta from host time units (the driver's frame delta, one
// millisecond of host time per virtual millisecond) into virtual seconds and
// advances the clock. It returns the number of timers fired.
func (c *VirtualClock) Advance(delta time.Duration) int {
	return c.AdvanceSeconds(delta.Seconds())
}

// AdvanceSeconds adds delta virtual seconds to the clock and fires, in order,
// every timer whose fire time is strictly below the new time. The queue head is
// re-checked after every callback, so a timer armed by a callback that is
// already due fires within the same call.
func (c *VirtualClock) AdvanceSeconds(delta float64) int {
	if delta < 0 {
		logrus.Warnf("VirtualClock: ignoring negative advance %g", delta)
		return 0
	}
	c.now += delta
	fired := 0
	for c.timers.Len() > 0 && c.timers[0].fireTime < c.now {
		t := heap.Pop(&c.timers).(*Timer)
		logrus.Debugf("[t=%.3f] firing timer #%d due at %.3f", c.now, t.seq, t.fireTime)
		t.callback()
		fired++
		if c.settle != nil {
			c.settle()
		}
	}
	return fired
}
