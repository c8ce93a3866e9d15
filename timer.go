package reactord

import (
	"container/heap"
	"time"
)

// timerItem is one scheduled deadline, keyed by the fd it guards. idx is the
// item's current position in the heap slice; it is kept in sync by heap.Fix
// swaps so heap[byFD[fd].idx].fd == fd always holds (spec.md §8 invariant).
type timerItem struct {
	fd       int
	expireAt time.Time
	callback func()
	idx      int
}

// timerHeap implements container/heap.Interface, ordered by expireAt
// ascending (soonest deadline at the root). Directly modeled on gaio's
// timedHeap in watcher.go, generalized from per-operation deadlines to
// per-connection idle deadlines.
type timerHeap []*timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].expireAt.Before(h[j].expireAt) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *timerHeap) Push(x interface{}) {
	item := x.(*timerItem)
	item.idx = len(*h)
	*h = append(*h, item)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.idx = -1
	*h = old[:n-1]
	return item
}

// TimerWheel is one per worker loop: a binary min-heap of timers plus a
// fd->index side map for O(1) adjust/remove. Callbacks run on the loop
// thread and must not block (spec.md §4.7).
type TimerWheel struct {
	heap    timerHeap
	byFD    map[int]*timerItem
}

// NewTimerWheel constructs an empty wheel.
func NewTimerWheel() *TimerWheel {
	return &TimerWheel{
		heap: make(timerHeap, 0, 64),
		byFD: make(map[int]*timerItem),
	}
}

// Add registers a timeout for fd, firing callback after timeoutMS
// milliseconds. Adding an fd that already has a timer upgrades to Adjust,
// per spec.md §4.7 semantics.
func (t *TimerWheel) Add(fd int, timeoutMS int64, callback func()) {
	if existing, ok := t.byFD[fd]; ok {
		existing.expireAt = time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
		existing.callback = callback
		heap.Fix(&t.heap, existing.idx)
		return
	}
	item := &timerItem{
		fd:       fd,
		expireAt: time.Now().Add(time.Duration(timeoutMS) * time.Millisecond),
		callback: callback,
	}
	t.byFD[fd] = item
	heap.Push(&t.heap, item)
}

// Adjust re-heapifies fd's timer in place with a new timeout. A no-op (not
// an error) if fd has no timer, matching "adjust on every read" being safe
// to call even for fds the caller isn't sure are tracked.
func (t *TimerWheel) Adjust(fd int, timeoutMS int64) {
	item, ok := t.byFD[fd]
	if !ok {
		return
	}
	item.expireAt = time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	heap.Fix(&t.heap, item.idx)
}

// Remove drops fd's timer, if any.
func (t *TimerWheel) Remove(fd int) {
	item, ok := t.byFD[fd]
	if !ok {
		return
	}
	heap.Remove(&t.heap, item.idx)
	delete(t.byFD, fd)
}

// HandleExpired pops and invokes every timer whose deadline has passed,
// outside the heap-invariant-restoring step (heap.Pop already restored it
// before the callback runs).
func (t *TimerWheel) HandleExpired() {
	now := time.Now()
	for t.heap.Len() > 0 {
		root := t.heap[0]
		if root.expireAt.After(now) {
			break
		}
		heap.Pop(&t.heap)
		delete(t.byFD, root.fd)
		if root.callback != nil {
			root.callback()
		}
	}
}

// NextTimeoutMS reports how long the event loop's multiplexer wait may
// block: 0 if something is already expired, -1 (wait forever) if empty,
// else the milliseconds remaining until the next deadline.
func (t *TimerWheel) NextTimeoutMS() int {
	if t.heap.Len() == 0 {
		return -1
	}
	remaining := time.Until(t.heap[0].expireAt)
	if remaining <= 0 {
		return 0
	}
	ms := remaining.Milliseconds()
	if ms > int64(int(^uint(0)>>1)) {
		return int(^uint(0) >> 1)
	}
	return int(ms)
}

// Len reports the number of tracked timers, used by tests asserting that a
// removed/expired timer returns the wheel to its previous size.
func (t *TimerWheel) Len() int {
	return t.heap.Len()
}
