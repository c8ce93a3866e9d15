//go:build linux
// +build linux

package reactord

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// Server owns the listening fd, the acceptor loop, the worker LoopPool, and
// the fd->Connection map (spec.md §4.9). It is the wiring point for the
// four core subsystems plus the CLI-facing Config.
type Server struct {
	cfg Config

	metrics *Metrics
	cache   *ResourceCache
	alog    *AsyncLog
	pool    *LoopPool

	acceptor *EventLoop
	listenFD int

	connsMu sync.Mutex
	conns   map[int]*Connection

	acceptorDone chan struct{}
}

// NewServer constructs every subsystem without binding a socket or
// starting any goroutine; call Start to go live.
func NewServer(cfg Config) (*Server, error) {
	cfg = cfg.Normalize()

	alog, err := NewAsyncLog(cfg.LogFilePath, defaultBufferCapacity, defaultFlushInterval)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		cfg:          cfg,
		metrics:      &Metrics{},
		alog:         alog,
		conns:        make(map[int]*Connection),
		acceptorDone: make(chan struct{}),
	}

	s.cache = NewResourceCache(cfg.CacheByteLimit, func(format string, args ...interface{}) {
		s.alog.Append(WARN, "cache.go", 0, fmt.Sprintf(format, args...))
	})

	pool, err := NewLoopPool(cfg.LoopCount, s.onFatal)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	s.pool = pool

	acceptor, err := NewEventLoop(-1)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	acceptor.SetFatalHandler(s.onFatal)
	s.acceptor = acceptor

	return s, nil
}

func (s *Server) onFatal(err error) {
	s.alog.Append(FATAL, "server.go", 0, err.Error())
}

// Start binds the listening socket, launches the AsyncLog writer, the
// worker LoopPool, and the acceptor loop.
func (s *Server) Start() error {
	if err := s.alog.Start(); err != nil {
		return err
	}

	fd, err := bindAndListen(s.cfg.ListenAddr, s.cfg.ListenPort, s.cfg.ListenBacklog)
	if err != nil {
		s.alog.Append(FATAL, "server.go", 0, fmt.Sprintf("listen: %v", err))
		return err
	}
	s.listenFD = fd

	s.pool.Start()
	s.acceptor.Register(s.listenFD, true, false, s.acceptLoop, nil)
	go func() {
		defer close(s.acceptorDone)
		s.acceptor.Run()
	}()

	s.alog.Append(INFO, "server.go", 0, fmt.Sprintf("listening on %s:%d", s.cfg.ListenAddr, s.cfg.ListenPort))
	return nil
}

// acceptLoop accepts connections until EAGAIN, per the edge-triggered
// accept requirement (spec.md §4.9, §9).
func (s *Server) acceptLoop() {
	for {
		nfd, sa, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return
		case err == unix.EINTR:
			continue
		case err != nil:
			s.alog.Append(WARN, "server.go", 0, fmt.Sprintf("accept: %v", err))
			return
		}

		s.metrics.onAccept()
		remote := sockaddrString(sa)
		loop := s.pool.Next()
		conn := NewConnection(nfd, loop, s.cfg.MaxHeaderLineLength, s.cfg.IdleTimeout.Milliseconds(), remote)
		conn.SetCallbacks(s.handleMessage, s.handleConnClose)

		s.connsMu.Lock()
		s.conns[nfd] = conn
		s.connsMu.Unlock()

		loop.Post(conn.Established)
	}
}

// handleConnClose is the Connection close callback; it drops the server's
// last strong reference to the Connection, matching spec.md §4.4's note
// that removal from the fd map is what allows the Connection to die.
func (s *Server) handleConnClose(c *Connection) {
	s.connsMu.Lock()
	delete(s.conns, c.Fd())
	s.connsMu.Unlock()
	s.metrics.onClose()
}

// handleMessage is the Connection message callback: it frames as many
// complete requests as are buffered, dispatching each and popping exactly
// the consumed bytes so pipelined requests are handled in one invocation
// (spec.md §4.5). A panic from dispatch (e.g. an unexpected cache or I/O
// fault) is recovered here and reported as a 500 rather than killing the
// worker loop's goroutine, matching net/http's per-request recovery.
func (s *Server) handleMessage(c *Connection) {
	defer func() {
		if r := recover(); r != nil {
			s.alog.Append(ERROR, "server.go", 0, fmt.Sprintf("panic handling request: %v", r))
			s.respondAndClose(c, 500, internalErrorBody)
		}
	}()

	for {
		buf := c.InputBytes()
		end, err := FindHeaderEnd(buf, s.cfg.MaxHeaderLineLength)
		if err != nil {
			s.respondAndClose(c, 400, badRequestBody)
			c.ResetInput()
			return
		}
		if end < 0 {
			return // incomplete request, wait for more bytes
		}

		req, perr := ParseRequest(buf[:end])
		if perr != nil {
			s.respondAndClose(c, 400, badRequestBody)
			c.ResetInput()
			return
		}

		bodyLen := 0
		if req.ContentLength > 0 {
			bodyLen = int(req.ContentLength)
		}
		total := end + bodyLen
		if len(buf) < total {
			return // body not fully arrived yet
		}

		s.dispatch(c, req)
		c.ConsumeInput(total)

		if c.State() != StateConnected {
			return
		}
	}
}

// dispatch serves one fully-framed request: GET and POST both resolve to
// the same static-file lookup (spec.md §6; POST bodies are drained above,
// never consulted for routing, per SPEC_FULL.md §6).
func (s *Server) dispatch(c *Connection, req *Request) {
	keepAlive := req.KeepAlive()

	fsPath, ok := ResolvePath(s.cfg.DocumentRoot, req.Path)
	if !ok {
		s.respond(c, 403, forbiddenBody, keepAlive)
		return
	}

	res, err := s.cache.Get(fsPath)
	if err != nil {
		s.respond(c, 404, notFoundBody, keepAlive)
		return
	}

	header := buildResponseHeader(200, contentTypeFor(fsPath), res.Len(), keepAlive)
	c.Send(header)
	c.SendResource(res)
	s.metrics.onResponse(200, int64(res.Len()))

	if !keepAlive {
		c.Shutdown()
	}
}

// respond sends a fixed-body error response and shuts down the write side
// unless the request asked for keep-alive.
func (s *Server) respond(c *Connection, status int, body string, keepAlive bool) {
	c.Send(errorResponse(status, body, keepAlive))
	s.metrics.onResponse(status, int64(len(body)))
	if !keepAlive {
		c.Shutdown()
	}
}

// respondAndClose sends a fixed-body error response and always closes,
// per spec.md §9's keep-alive-after-framing-error resolution.
func (s *Server) respondAndClose(c *Connection, status int, body string) {
	c.Send(errorResponse(status, body, false))
	s.metrics.onResponse(status, int64(len(body)))
	c.Shutdown()
}

// MetricsSnapshot returns a point-in-time view of server metrics.
func (s *Server) MetricsSnapshot() MetricsSnapshot { return s.metrics.Snapshot() }

// CacheStatus returns a point-in-time view of the resource cache.
func (s *Server) CacheStatus() CacheStatus { return s.cache.Status() }

// Stop performs cooperative shutdown: quit every loop, close the listening
// fd, wait for the acceptor and worker goroutines to exit, then flush and
// close the log (spec.md §5 "Cancellation & timeouts").
func (s *Server) Stop() {
	s.acceptor.Quit()
	_ = unix.Close(s.listenFD)
	<-s.acceptorDone

	s.pool.Stop()

	s.alog.Append(INFO, "server.go", 0, "stopped")
	s.alog.Stop()
}

// bindAndListen creates a non-blocking TCP listening socket with
// SO_REUSEADDR set, per spec.md §4.9.
func bindAndListen(addr string, port int, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		ip = net.IPv4zero
	}
	var sa unix.SockaddrInet4
	sa.Port = port
	copy(sa.Addr[:], ip.To4())

	if err := unix.Bind(fd, &sa); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// sockaddrString renders a unix.Sockaddr as "host:port" for logging.
func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("%s:%d", ip.String(), a.Port)
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("[%s]:%d", ip.String(), a.Port)
	default:
		return "unknown"
	}
}
