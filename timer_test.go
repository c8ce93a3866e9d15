package reactord

import "testing"

func TestTimerWheelHeapIndexInvariant(t *testing.T) {
	w := NewTimerWheel()
	for fd := 0; fd < 20; fd++ {
		w.Add(fd, int64(1000-fd), func() {})
	}
	for fd, item := range w.byFD {
		if w.heap[item.idx].fd != fd {
			t.Fatalf("heap[index_map[%d]].fd = %d, want %d", fd, w.heap[item.idx].fd, fd)
		}
	}
}

func TestTimerWheelAddThenRemoveIsNoop(t *testing.T) {
	w := NewTimerWheel()
	w.Add(1, 5000, func() {})
	before := w.NextTimeoutMS()

	w.Add(2, 100, func() {})
	w.Remove(2)

	after := w.NextTimeoutMS()
	if before != after {
		t.Fatalf("NextTimeoutMS changed after add+remove of unrelated fd: before=%d after=%d", before, after)
	}
	if w.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", w.Len())
	}
}

func TestTimerWheelAddExistingFDUpgradesToAdjust(t *testing.T) {
	w := NewTimerWheel()
	fired := 0
	w.Add(7, 100000, func() { fired++ })
	w.Add(7, 0, func() { fired++ }) // re-add with near-immediate expiry

	if w.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (re-add must upgrade, not duplicate)", w.Len())
	}
	w.HandleExpired()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestTimerWheelNextTimeoutMSEmptyIsMinusOne(t *testing.T) {
	w := NewTimerWheel()
	if got := w.NextTimeoutMS(); got != -1 {
		t.Fatalf("NextTimeoutMS() on empty wheel = %d, want -1", got)
	}
}

func TestTimerWheelHandleExpiredOnlyFiresPastDeadlines(t *testing.T) {
	w := NewTimerWheel()
	fired := make(map[int]bool)
	w.Add(1, 0, func() { fired[1] = true })
	w.Add(2, 60000, func() { fired[2] = true })

	w.HandleExpired()
	if !fired[1] {
		t.Fatalf("expired timer for fd 1 did not fire")
	}
	if fired[2] {
		t.Fatalf("future timer for fd 2 fired early")
	}
	if w.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after one expiry", w.Len())
	}
}
