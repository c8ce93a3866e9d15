//go:build linux
// +build linux

package reactord

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// maxPollEvents bounds how many ready events a single Wait call drains at
// once, mirroring gaio's maxEvents constant in watcher.go.
const maxPollEvents = 128

// poller is a thin edge-triggered epoll wrapper: the readiness multiplexer
// named in spec.md §4.1. All interest registration happens with EPOLLET so
// every caller must drain until EAGAIN (spec.md §9 "edge-triggered reads").
type poller struct {
	epfd int
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &poller{epfd: epfd}, nil
}

func eventMask(readable, writable bool) uint32 {
	mask := uint32(unix.EPOLLET)
	if readable {
		mask |= unix.EPOLLIN
	}
	if writable {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (p *poller) add(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: eventMask(readable, writable)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *poller) modify(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: eventMask(readable, writable)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *poller) remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// pollEvent is the readiness event type that wait fills; on Linux it is
// unix.EpollEvent itself.
type pollEvent = unix.EpollEvent

// wait blocks up to timeoutMS milliseconds (-1 forever, 0 non-blocking) and
// fills events with ready fds, returning the count.
func (p *poller) wait(events []pollEvent, timeoutMS int) (int, error) {
	return unix.EpollWait(p.epfd, events, timeoutMS)
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}

// wakeupFD is the glossary's "wakeup channel": a real fd registered in the
// same epoll set, signaled from any thread via a single eventfd write, used
// to break the multiplexer out of its wait.
type wakeupFD struct {
	fd int
}

func newWakeupFD() (*wakeupFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &wakeupFD{fd: fd}, nil
}

// signal increments the eventfd counter by one; EAGAIN (counter already
// saturated, i.e. a wakeup is already pending) is not an error here.
func (w *wakeupFD) signal() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1) // eventfd reads the counter in host byte order
	_, _ = unix.Write(w.fd, buf[:])
}

// drain reads and discards the eventfd counter.
func (w *wakeupFD) drain() {
	var buf [8]byte
	_, _ = unix.Read(w.fd, buf[:])
}

func (w *wakeupFD) close() error {
	return unix.Close(w.fd)
}
