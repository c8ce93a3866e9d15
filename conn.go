//go:build linux
// +build linux

package reactord

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ConnState is one of the four states in spec.md §4.4's linear state
// machine: Connecting -> Connected -> Disconnecting -> closed, with a
// direct Connected/Disconnecting -> Disconnected edge on peer close or error.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

const readScratchSize = 64 * 1024
const maxWriteVectors = 16 // K in spec.md §4.4 write drain

// Connection is a per-fd read/write state machine, exclusively owned by one
// worker EventLoop after Established(). Unlike the C++ original this spec
// is drawn from, Go's garbage collector has no trouble with the
// loop-callback-table -> Connection -> loop reference cycle, so there is no
// separate "weak handle" type here; the at-most-once close guarantee that
// cycle existed to protect is instead provided directly by closeOnce, and
// fd lifecycle (which GC does NOT manage) is tied to that same close path.
type Connection struct {
	fd   int
	loop *EventLoop

	state atomic.Int32

	input  []byte
	output *OutputChain

	maxLineLen    int
	idleTimeoutMS int64

	onMessage func(c *Connection)
	onClose   func(c *Connection)

	closeOnce sync.Once

	remoteAddr string
}

// NewConnection constructs a Connection pinned to loop for fd. It is not
// yet registered with the loop's multiplexer; call Established() from the
// owning loop thread (typically via loop.Post from the acceptor) to do so.
func NewConnection(fd int, loop *EventLoop, maxLineLen int, idleTimeoutMS int64, remoteAddr string) *Connection {
	c := &Connection{
		fd:            fd,
		loop:          loop,
		output:        NewOutputChain(),
		maxLineLen:    maxLineLen,
		idleTimeoutMS: idleTimeoutMS,
		remoteAddr:    remoteAddr,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// Fd returns the connection's raw file descriptor.
func (c *Connection) Fd() int { return c.fd }

// RemoteAddr returns the peer address string captured at accept time.
func (c *Connection) RemoteAddr() string { return c.remoteAddr }

// State returns the current state, safe to call from any thread.
func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }

// SetCallbacks installs the message and close callbacks. Must be called
// before Established().
func (c *Connection) SetCallbacks(onMessage, onClose func(c *Connection)) {
	c.onMessage = onMessage
	c.onClose = onClose
}

// InputBytes returns the unconsumed prefix of the input buffer.
func (c *Connection) InputBytes() []byte { return c.input }

// ConsumeInput drops the first n bytes of the input buffer, used after a
// complete request has been handled so pipelined requests remain for the
// next loop iteration of the caller's message-callback invocation.
func (c *Connection) ConsumeInput(n int) {
	if n <= 0 {
		return
	}
	if n >= len(c.input) {
		c.input = c.input[:0]
		return
	}
	copy(c.input, c.input[n:])
	c.input = c.input[:len(c.input)-n]
}

// ResetInput discards all buffered input, used after a framing error.
func (c *Connection) ResetInput() { c.input = c.input[:0] }

// Established transitions Connecting->Connected, installs read/write
// callbacks, and registers edge-triggered read interest. Must run on the
// owning loop's thread (spec.md §4.4).
func (c *Connection) Established() {
	c.state.Store(int32(StateConnected))
	c.loop.Register(c.fd, true, false, c.onReadable, c.onWritable)
	if c.idleTimeoutMS > 0 {
		c.loop.Timers().Add(c.fd, c.idleTimeoutMS, c.onIdleTimeout)
	}
}

// onReadable drains the socket until EAGAIN, EOF, or a fatal error, per the
// edge-triggered requirement (spec.md §9): every readable event must be
// read to exhaustion or the next transition is lost forever.
func (c *Connection) onReadable() {
	var scratch [readScratchSize]byte
	for {
		n, err := unix.Read(c.fd, scratch[:])
		switch {
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			c.afterDrain()
			return
		case err == unix.EINTR:
			continue
		case n == 0 && err == nil:
			c.handleClose(nil)
			return
		case err != nil:
			c.handleClose(err)
			return
		default:
			c.input = append(c.input, scratch[:n]...)
		}
	}
}

// afterDrain adjusts the idle timer and invokes the message callback once
// the current readable event has been fully drained.
func (c *Connection) afterDrain() {
	if c.idleTimeoutMS > 0 {
		c.loop.Timers().Adjust(c.fd, c.idleTimeoutMS)
	}
	if c.onMessage != nil {
		c.onMessage(c)
	}
}

func (c *Connection) onIdleTimeout() {
	c.handleClose(nil)
}

// Send enqueues owned bytes for writing. Thread-safe: if called off the
// owning loop, the mutation is posted with a strong reference to both c and
// b kept alive in the task closure (spec.md §4.4, §9).
func (c *Connection) Send(b []byte) {
	if c.State() == StateDisconnected || len(b) == 0 {
		return
	}
	if c.loop.onOwnerThread() {
		c.sendOwnedInLoop(b)
		return
	}
	c.loop.Post(func() { c.sendOwnedInLoop(b) })
}

// SendResource enqueues a shared mmap Resource handle for writing. The
// caller's retained reference is handed off to the OutputChain node; the
// caller should not call release() itself after this.
func (c *Connection) SendResource(r *Resource) {
	if r == nil {
		return
	}
	if c.State() == StateDisconnected {
		r.release()
		return
	}
	if c.loop.onOwnerThread() {
		c.sendResourceInLoop(r)
		return
	}
	c.loop.Post(func() { c.sendResourceInLoop(r) })
}

func (c *Connection) sendOwnedInLoop(b []byte) {
	if c.State() == StateDisconnected {
		return
	}
	c.output.PushOwned(b)
	c.tryWriteNow()
}

func (c *Connection) sendResourceInLoop(r *Resource) {
	if c.State() == StateDisconnected {
		r.release()
		return
	}
	c.output.PushMapped(r)
	r.release() // chain now holds its own retained reference
	c.tryWriteNow()
}

// tryWriteNow issues a gather-write over up to maxWriteVectors chain nodes,
// advancing on partial success, keeping write interest on EAGAIN, and
// closing on fatal error (spec.md §4.4 write drain).
func (c *Connection) tryWriteNow() {
	for !c.output.IsEmpty() {
		vecs := c.output.FillIOVectors(maxWriteVectors)
		n, err := writevFD(c.fd, vecs)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			c.loop.UpdateInterest(c.fd, true, true)
			return
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			c.handleClose(err)
			return
		}
		if n == 0 {
			c.loop.UpdateInterest(c.fd, true, true)
			return
		}
		c.output.Advance(n)
	}

	c.loop.UpdateInterest(c.fd, true, false)
	if c.State() == StateDisconnecting {
		_ = unix.Shutdown(c.fd, unix.SHUT_WR)
	}
}

// onWritable is the write-interest readiness callback.
func (c *Connection) onWritable() {
	c.tryWriteNow()
}

// Shutdown transitions Connected->Disconnecting. If the output chain is
// already empty the write-side shutdown happens immediately; otherwise it
// happens once the chain drains (spec.md §4.4).
func (c *Connection) Shutdown() {
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnecting)) {
		return
	}
	if c.output.IsEmpty() {
		_ = unix.Shutdown(c.fd, unix.SHUT_WR)
	}
}

// handleClose performs the at-most-once transition to Disconnected. The
// close callback — which removes the Connection from the server's fd map —
// must run strictly before the fd itself is closed: once Close frees the
// fd number, the acceptor can Accept4 a brand new connection onto that same
// fd and install it in the map before this delete runs, which would evict
// the new connection instead of this one (spec.md §4.4).
func (c *Connection) handleClose(_ error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateDisconnected))
		c.loop.Timers().Remove(c.fd)
		c.loop.Unregister(c.fd)
		if c.onClose != nil {
			c.onClose(c)
		}
		_ = unix.Close(c.fd)
	})
}

// writevFD issues a single gather-write syscall over vecs.
func writevFD(fd int, vecs [][]byte) (int, error) {
	if len(vecs) == 0 {
		return 0, nil
	}
	return unix.Writev(fd, vecs)
}
