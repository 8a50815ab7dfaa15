package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Listener accepts TCP clients and hands each connection to the Hub.
type Listener struct {
	addr string
	hub  *Hub
	log  *slog.Logger

	mu     sync.Mutex
	ln     net.Listener
	closed bool
}

// NewListener prepares a listener for addr ("host:port").
func NewListener(addr string, hub *Hub, log *slog.Logger) *Listener {
	if log == nil {
		log = hub.log
	}
	return &Listener{addr: addr, hub: hub, log: log}
}

// Listen binds the address. A bind failure is a startup failure.
func (l *Listener) Listen() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.addr, err)
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	l.log.Info("listener.start", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve accepts connections until Shutdown or ctx cancellation, running one
// session goroutine per connection. It returns nil on orderly stop.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return errors.New("listener: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { l.closeListener() })
	defer stop()

	// Sessions end through Shutdown closing their connections, not through ctx.
	sessCtx := context.WithoutCancel(ctx)

	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if l.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				l.log.Warn("listener.accept.retry", "err", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		conn := NewStreamConn(c, l.hub.cfg.MaxFrameBytes)
		go func() {
			if err := l.hub.Serve(sessCtx, conn); err != nil {
				l.log.Info("listener.session.reject", "remote", conn.RemoteAddr(), "err", err)
			}
		}()
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Listener) closeListener() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.ln == nil {
		l.closed = true
		return nil
	}
	l.closed = true
	return l.ln.Close()
}

// Shutdown stops accepting, then shuts the hub down: shutdown notice, every
// live session closed, remaining users logged out.
func (l *Listener) Shutdown(ctx context.Context) error {
	lerr := l.closeListener()
	herr := l.hub.Shutdown(ctx)
	l.log.Info("listener.stop", "addr", l.addr)
	return errors.Join(lerr, herr)
}
