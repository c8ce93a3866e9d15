//go:build !linux
// +build !linux

package reactord

import "errors"

// The core's readiness multiplexer is specified in terms of epoll and
// eventfd (spec.md §4.1 glossary). Non-Linux platforms are out of scope for
// this core, matching the original TinyWebServer's Linux-only epoll design
// (see original_source/include/reactor/epoll_reactor.h).
var errUnsupportedPlatform = errors.New("reactord: epoll reactor requires linux")

const maxPollEvents = 128

type pollEvent struct {
	Events uint32
	Fd     int32
}

type poller struct{}

func newPoller() (*poller, error) { return nil, errUnsupportedPlatform }

func (p *poller) add(int, bool, bool) error    { return errUnsupportedPlatform }
func (p *poller) modify(int, bool, bool) error { return errUnsupportedPlatform }
func (p *poller) remove(int) error             { return errUnsupportedPlatform }
func (p *poller) close() error                 { return errUnsupportedPlatform }
func (p *poller) wait([]pollEvent, int) (int, error) {
	return 0, errUnsupportedPlatform
}

type wakeupFD struct{}

func newWakeupFD() (*wakeupFD, error) { return nil, errUnsupportedPlatform }
func (w *wakeupFD) signal()           {}
func (w *wakeupFD) drain()            {}
func (w *wakeupFD) close() error      { return errUnsupportedPlatform }
