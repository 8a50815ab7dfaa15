package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lobby/cmd/identity"
	v1 "lobby/shared/contracts/chat/v1"
)

const testTimeout = 3 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	hub   *Hub
	store *identity.FileStore
}

func newTestEnv(t *testing.T, cfg Config, opts ...HubOption) *testEnv {
	t.Helper()

	store, err := identity.OpenFileStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}

	hub := NewHub(testLogger(), store, cfg, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})
	return &testEnv{hub: hub, store: store}
}

func (e *testEnv) mustRegister(t *testing.T, username, password string) {
	t.Helper()

	if err := e.store.Register(context.Background(), username, password); err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
}

// testClient speaks newline-delimited JSON over one end of a net.Pipe.
type testClient struct {
	t *testing.T
	c net.Conn
	r *bufio.Reader
}

func (e *testEnv) dial(t *testing.T) *testClient {
	t.Helper()

	client, server := net.Pipe()
	go func() { _ = e.hub.Serve(context.Background(), NewStreamConn(server, e.hub.cfg.MaxFrameBytes)) }()

	t.Cleanup(func() { _ = client.Close() })
	return &testClient{t: t, c: client, r: bufio.NewReader(client)}
}

func newTestClient(t *testing.T, c net.Conn) *testClient {
	t.Cleanup(func() { _ = c.Close() })
	return &testClient{t: t, c: c, r: bufio.NewReader(c)}
}

func (c *testClient) sendRaw(line string) {
	c.t.Helper()

	_ = c.c.SetWriteDeadline(time.Now().Add(testTimeout))
	if _, err := io.WriteString(c.c, line+"\n"); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testClient) send(env v1.Envelope) {
	c.t.Helper()

	b, err := json.Marshal(env)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	c.sendRaw(string(b))
}

// next reads one envelope or fails the test.
func (c *testClient) next() v1.Envelope {
	c.t.Helper()

	env, err := c.tryNext(testTimeout)
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return env
}

func (c *testClient) tryNext(d time.Duration) (v1.Envelope, error) {
	_ = c.c.SetReadDeadline(time.Now().Add(d))
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.DecodeAny(line)
}

// waitFor skips envelopes until one of type typ arrives.
func (c *testClient) waitFor(typ string) v1.Envelope {
	c.t.Helper()

	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		env := c.next()
		if env.Type == typ {
			return env
		}
	}
	c.t.Fatalf("no %s within %v", typ, testTimeout)
	return v1.Envelope{}
}

// sync sends a frame that always yields "bad format" and returns everything
// received before that reply.
func (c *testClient) sync() []v1.Envelope {
	c.t.Helper()

	c.sendRaw("sync")
	var out []v1.Envelope
	for {
		env := c.next()
		if env.Type == v1.TypeError && env.Message == "bad format" {
			return out
		}
		out = append(out, env)
	}
}

// expectClosed reads until the server closes the connection.
func (c *testClient) expectClosed() []v1.Envelope {
	c.t.Helper()

	var out []v1.Envelope
	for {
		env, err := c.tryNext(testTimeout)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return out
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				c.t.Fatalf("connection still open after %v", testTimeout)
			}
			return out
		}
		out = append(out, env)
	}
}

func (c *testClient) register(username, password string) v1.Envelope {
	c.t.Helper()

	c.send(v1.Envelope{Type: v1.TypeRegister, Username: username, Password: password})
	return c.waitFor(v1.TypeRegisterResponse)
}

func (c *testClient) login(username, password string) v1.Envelope {
	c.t.Helper()

	c.send(v1.Envelope{Type: v1.TypeLogin, Username: username, Password: password})
	return c.waitFor(v1.TypeLoginResponse)
}

// mustLogin logs in and drains the post-login user lists.
func (c *testClient) mustLogin(username, password string) {
	c.t.Helper()

	resp := c.login(username, password)
	if !resp.Success {
		c.t.Fatalf("login %s failed: %s", username, resp.Message)
	}
	c.sync()
}

func countType(envs []v1.Envelope, typ string) int {
	n := 0
	for _, e := range envs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

// nopConn is a Conn whose reads block until Close.
type nopConn struct {
	closed chan struct{}
}

func newNopConn() *nopConn { return &nopConn{closed: make(chan struct{})} }

func (n *nopConn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-n.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *nopConn) WriteFrame(context.Context, []byte) error { return nil }

func (n *nopConn) Close() error {
	select {
	case <-n.closed:
	default:
		close(n.closed)
	}
	return nil
}

func (n *nopConn) RemoteAddr() string { return "nop" }
func (n *nopConn) Transport() string  { return "nop" }
