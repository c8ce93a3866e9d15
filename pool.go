//go:build linux
// +build linux

package reactord

import (
	"sync"
	"sync/atomic"
)

// LoopPool owns N worker EventLoops, each running on its own OS thread, and
// serves round-robin assignment for new connections (spec.md §4.2).
type LoopPool struct {
	loops []*EventLoop
	next  atomic.Uint64

	wg sync.WaitGroup
}

// NewLoopPool constructs n worker loops without starting them. onFatal is
// wired into every loop's fatal-error handler.
func NewLoopPool(n int, onFatal func(error)) (*LoopPool, error) {
	p := &LoopPool{loops: make([]*EventLoop, n)}
	for i := 0; i < n; i++ {
		l, err := NewEventLoop(i)
		if err != nil {
			return nil, err
		}
		l.SetFatalHandler(onFatal)
		p.loops[i] = l
	}
	return p, nil
}

// Start launches one goroutine per loop, each calling Run(), and returns
// without waiting for the loops to start (goroutines are spawned, not
// necessarily yet pinned — callers rely on Register/Post, which are safe
// before the target loop begins waiting).
func (p *LoopPool) Start() {
	p.wg.Add(len(p.loops))
	for _, l := range p.loops {
		loop := l
		go func() {
			defer p.wg.Done()
			loop.Run()
		}()
	}
}

// Next returns the next worker loop in round-robin order.
func (p *LoopPool) Next() *EventLoop {
	n := p.next.Add(1) - 1
	return p.loops[int(n)%len(p.loops)]
}

// Loops returns the underlying loop slice (read-only use: status reporting, tests).
func (p *LoopPool) Loops() []*EventLoop {
	return p.loops
}

// Stop calls Quit on every loop and waits for all Run goroutines to return.
func (p *LoopPool) Stop() {
	for _, l := range p.loops {
		l.Quit()
	}
	p.wg.Wait()
}
