//go:build linux
// +build linux

package reactord

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// fdReg holds the callbacks and current interest for one registered fd.
// Mutated only on the owning loop's thread (spec.md §5 thread-affinity rules).
type fdReg struct {
	onRead   func()
	onWrite  func()
	readable bool
	writable bool
}

// EventLoop owns one epoll instance, one eventfd wakeup channel, and a
// cross-thread task queue. It is pinned to the OS thread that calls Run()
// for its entire lifetime (spec.md §4.1).
type EventLoop struct {
	id int

	pfd  *poller
	wake *wakeupFD

	ownerTID atomic.Int32
	quit     atomic.Bool

	taskMu sync.Mutex
	tasks  []func()

	regs map[int]*fdReg

	timers *TimerWheel

	onFatal func(error)
}

// NewEventLoop constructs (but does not start) a worker loop identified by id.
func NewEventLoop(id int) (*EventLoop, error) {
	pfd, err := newPoller()
	if err != nil {
		return nil, err
	}
	wk, err := newWakeupFD()
	if err != nil {
		_ = pfd.close()
		return nil, err
	}
	return &EventLoop{
		id:     id,
		pfd:    pfd,
		wake:   wk,
		regs:   make(map[int]*fdReg),
		timers: NewTimerWheel(),
	}, nil
}

// ID returns this loop's index within its LoopPool.
func (l *EventLoop) ID() int { return l.id }

// Timers exposes the loop-local TimerWheel, used by Connections established on this loop.
func (l *EventLoop) Timers() *TimerWheel { return l.timers }

// SetFatalHandler installs the callback invoked when a registration or
// multiplexer error is deemed fatal (spec.md §4.1 errors, §7 Fatal init).
func (l *EventLoop) SetFatalHandler(f func(error)) { l.onFatal = f }

func (l *EventLoop) fatal(err error) {
	if l.onFatal != nil {
		l.onFatal(err)
		return
	}
	panic(err)
}

// onOwnerThread reports whether the calling goroutine is running on this
// loop's pinned OS thread, compared via the real kernel thread id (stable
// because Run locks the goroutine to its OS thread for its lifetime).
func (l *EventLoop) onOwnerThread() bool {
	return int32(unix.Gettid()) == l.ownerTID.Load()
}

// Run enters the readiness wait loop; it pins the calling goroutine to its
// OS thread and returns once Quit() has been observed and the final
// iteration's task queue has drained.
func (l *EventLoop) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	l.ownerTID.Store(int32(unix.Gettid()))

	if err := l.pfd.add(l.wake.fd, true, false); err != nil {
		l.fatal(err)
		return
	}

	events := make([]pollEvent, maxPollEvents)
	for !l.quit.Load() {
		timeout := l.timers.NextTimeoutMS()
		n, err := l.pfd.wait(events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.fatal(err)
			return
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)
			if fd == l.wake.fd {
				l.wake.drain()
				continue
			}
			l.dispatch(fd, ev.Events)
		}

		l.runQueuedTasks()
		l.timers.HandleExpired()
	}

	l.shutdown()
}

// dispatch invokes the read/write callbacks registered for fd, tolerating
// the read callback unregistering fd (e.g. on peer close) before the write
// check runs (spec.md §4.1 algorithm).
func (l *EventLoop) dispatch(fd int, mask uint32) {
	reg, ok := l.regs[fd]
	if !ok {
		return
	}
	if mask&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 && reg.onRead != nil {
		reg.onRead()
	}
	reg, ok = l.regs[fd]
	if ok && mask&unix.EPOLLOUT != 0 && reg.onWrite != nil {
		reg.onWrite()
	}
}

func (l *EventLoop) runQueuedTasks() {
	l.taskMu.Lock()
	tasks := l.tasks
	l.tasks = nil
	l.taskMu.Unlock()
	for _, t := range tasks {
		t()
	}
}

// Quit marks shutdown and wakes the loop if necessary.
func (l *EventLoop) Quit() {
	l.quit.Store(true)
	l.wake.signal()
}

// Post runs task synchronously if called from the owning thread; otherwise
// it is enqueued and the loop is woken via the wakeup channel. FIFO is
// preserved per producer (spec.md §4.1).
func (l *EventLoop) Post(task func()) {
	if l.onOwnerThread() {
		task()
		return
	}
	l.taskMu.Lock()
	l.tasks = append(l.tasks, task)
	l.taskMu.Unlock()
	l.wake.signal()
}

// Register installs callbacks for fd with the given interest mask. If not
// called on the owning thread it is redirected through Post.
func (l *EventLoop) Register(fd int, readable, writable bool, onRead, onWrite func()) {
	l.Post(func() {
		if _, exists := l.regs[fd]; exists {
			l.fatal(ErrAlreadyRegistered)
			return
		}
		l.regs[fd] = &fdReg{onRead: onRead, onWrite: onWrite, readable: readable, writable: writable}
		if err := l.pfd.add(fd, readable, writable); err != nil {
			l.fatal(err)
		}
	})
}

// UpdateInterest changes fd's read/write interest mask.
func (l *EventLoop) UpdateInterest(fd int, readable, writable bool) {
	l.Post(func() {
		reg, ok := l.regs[fd]
		if !ok {
			return
		}
		reg.readable, reg.writable = readable, writable
		if err := l.pfd.modify(fd, readable, writable); err != nil {
			l.fatal(err)
		}
	})
}

// Unregister removes fd from the multiplexer and drops its callbacks.
func (l *EventLoop) Unregister(fd int) {
	l.Post(func() {
		if _, ok := l.regs[fd]; !ok {
			return
		}
		delete(l.regs, fd)
		_ = l.pfd.remove(fd)
	})
}

func (l *EventLoop) shutdown() {
	for fd := range l.regs {
		_ = l.pfd.remove(fd)
	}
	delete(l.regs, l.wake.fd)
	_ = l.pfd.remove(l.wake.fd)
	_ = l.wake.close()
	_ = l.pfd.close()
}
