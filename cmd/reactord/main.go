// Command reactord runs a high-concurrency HTTP/1.1 static-file server
// built on reactord's multi-reactor event-loop core.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/reactord/reactord"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		addr       = pflag.String("addr", "0.0.0.0", "listen address")
		port       = pflag.Int("port", 8080, "listen port")
		root       = pflag.String("root", ".", "document root")
		logPath    = pflag.String("log", "reactord.log", "log file path")
		loops      = pflag.Int("loops", 4, "number of worker event loops")
		cacheBytes = pflag.Int64("cache-bytes", 64<<20, "resource cache byte budget")
		idleMS     = pflag.Int64("idle-timeout-ms", 60000, "idle connection timeout in milliseconds")
		maxLine    = pflag.Int("max-line", 8192, "maximum request/header line length")
		backlog    = pflag.Int("backlog", 2048, "listen backlog")
	)
	pflag.Parse()

	cfg := reactord.Config{
		ListenAddr:          *addr,
		ListenPort:          *port,
		DocumentRoot:        *root,
		LogFilePath:         *logPath,
		LoopCount:           *loops,
		CacheByteLimit:      *cacheBytes,
		IdleTimeout:         time.Duration(*idleMS) * time.Millisecond,
		MaxHeaderLineLength: *maxLine,
		ListenBacklog:       *backlog,
	}.Normalize()

	srv, err := reactord.NewServer(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reactord: init:", err)
		return 1
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "reactord: start:", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()

	select {
	case <-done:
		return 0
	case <-time.After(2 * cfg.IdleTimeout):
		fmt.Fprintln(os.Stderr, "reactord: shutdown timed out")
		return 2
	}
}
