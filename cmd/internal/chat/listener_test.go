package chat

import (
	"context"
	"net"
	"testing"

	v1 "lobby/shared/contracts/chat/v1"
)

func TestListener_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.mustRegister(t, "alice", "secret1")

	l := NewListener("127.0.0.1:0", env.hub, nil)
	if err := l.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- l.Serve(ctx) }()

	nc, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	c := newTestClient(t, nc)
	c.mustLogin("alice", "secret1")

	c.send(v1.Envelope{Type: v1.TypeGetUserList})
	if ul := c.next(); ul.Type != v1.TypeUserList || len(ul.Users) != 1 {
		t.Fatalf("user_list over TCP: %+v", ul)
	}

	shut := make(chan error, 1)
	go func() { shut <- l.Shutdown(context.Background()) }()

	got := c.expectClosed()
	if len(got) == 0 || got[len(got)-1].Content != "server is shutting down" {
		t.Fatalf("no shutdown notice: %+v", got)
	}
	if err := <-shut; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-served; err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if _, err := net.Dial("tcp", l.Addr().String()); err == nil {
		t.Fatalf("listener still accepting after Shutdown")
	}
}

func TestListener_ContextCancelStopsAccept(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	l := NewListener("127.0.0.1:0", env.hub, nil)
	if err := l.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- l.Serve(ctx) }()
	cancel()

	if err := <-served; err != nil {
		t.Fatalf("Serve after cancel: %v", err)
	}
}

func TestListener_SessionsOutliveAcceptContext(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	l := NewListener("127.0.0.1:0", env.hub, nil)
	if err := l.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- l.Serve(ctx) }()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	c := newTestClient(t, conn)
	c.sync()

	cancel()
	if err := <-served; err != nil {
		t.Fatalf("Serve after cancel: %v", err)
	}

	if resp := c.register("alice", "secret1"); !resp.Success {
		t.Fatalf("register after accept stopped: %+v", resp)
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		done <- l.Shutdown(ctx)
	}()
	if env := c.waitFor(v1.TypeSystemMessage); env.Content != "server is shutting down" {
		t.Fatalf("unexpected notice %+v", env)
	}
	if err := <-done; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestListener_ListenFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	first := NewListener("127.0.0.1:0", env.hub, nil)
	if err := first.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer first.Shutdown(context.Background())

	second := NewListener(first.Addr().String(), env.hub, nil)
	if err := second.Listen(); err == nil {
		t.Fatalf("second Listen on a bound port succeeded")
	}
	if err := NewListener("127.0.0.1:0", env.hub, nil).Serve(context.Background()); err == nil {
		t.Fatalf("Serve before Listen succeeded")
	}
}
