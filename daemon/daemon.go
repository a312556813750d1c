/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package daemon

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/juleastore/juleastore/backend"
	"github.com/juleastore/juleastore/stats"
)

// DefaultStripeSize is the arena size used when the caller doesn't
// override it; it matches the wire protocol's default stripe.
const DefaultStripeSize = 512 * 1024

// Listener binds a TCP port, accepts connections, and spawns one worker
// per connection. Signals HUP/INT/TERM stop accepting and let running
// workers drain before backend state is released.
type Listener struct {
	data       backend.Data
	global     *stats.Global
	log        *zap.Logger
	stripeSize int

	ln net.Listener
	eg *errgroup.Group
}

// NewListener constructs a listener over an already-initialized backend.
func NewListener(data backend.Data, global *stats.Global, log *zap.Logger) *Listener {
	return &Listener{data: data, global: global, log: log, stripeSize: DefaultStripeSize}
}

// Serve binds port and accepts connections until ctx is cancelled or a
// termination signal arrives, whichever comes first. It blocks until
// every in-flight worker has drained. The listen backlog is the one Go's
// net package requests (the OS SOMAXCONN), not listenBacklog's 128.
func (l *Listener) Serve(ctx context.Context, port int) error {
	lc := net.ListenConfig{Control: controlListen}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("daemon: listen on port %d: %w", port, err)
	}
	l.ln = ln

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	l.eg = eg

	go func() {
		<-egCtx.Done()
		l.log.Info("daemon: shutdown signal received, closing listener")
		_ = ln.Close()
	}()

	acceptErr := l.acceptLoop(egCtx, ln)

	// Stop accepting, then wait for every spawned worker to drain.
	waitErr := eg.Wait()

	l.data.Fini()

	if acceptErr != nil && egCtx.Err() == nil {
		return acceptErr
	}
	return waitErr
}

func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		l.eg.Go(func() error {
			w := NewWorker(conn, l.data, l.global, l.stripeSize, l.log)
			w.Run()
			return nil
		})
	}
}

// Daemonize detaches the process: in the original process it re-execs
// the binary in a new session and exits; in that re-exec'd child it
// performs chdir("/") and redirects the std streams. The caller
// (cmd/juleastore) invokes this before constructing a Listener when
// --daemon is set; it is implemented in detach_linux.go (Linux-only).
func Daemonize() error {
	return daemonizeLinux()
}
