// Package main provides a CI-friendly smoke test for a running lobby server.
//
// It validates, over TCP or WebSocket:
//   - register + login for two fresh users
//   - both users in get_user_list
//   - chat_message fanout to the other user and not back to the sender
//   - logout closes the connection and the peer sees the departure
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	v1 "lobby/shared/contracts/chat/v1"
)

const maxReadBytes = 1 << 20

// transport is one client connection carrying whole envelopes.
type transport interface {
	write(ctx context.Context, b []byte) error
	read(ctx context.Context) ([]byte, error)
	close()
}

type tcpTransport struct {
	c net.Conn
	r *bufio.Reader
}

func (t *tcpTransport) write(ctx context.Context, b []byte) error {
	dl, _ := ctx.Deadline()
	_ = t.c.SetWriteDeadline(dl)
	_, err := t.c.Write(append(b, '\n'))
	return err
}

func (t *tcpTransport) read(ctx context.Context) ([]byte, error) {
	dl, _ := ctx.Deadline()
	_ = t.c.SetReadDeadline(dl)
	return t.r.ReadBytes('\n')
}

func (t *tcpTransport) close() { _ = t.c.Close() }

type wsTransport struct{ c *websocket.Conn }

func (t *wsTransport) write(ctx context.Context, b []byte) error {
	return t.c.Write(ctx, websocket.MessageText, b)
}

func (t *wsTransport) read(ctx context.Context) ([]byte, error) {
	_, data, err := t.c.Read(ctx)
	return data, err
}

func (t *wsTransport) close() { _ = t.c.Close(websocket.StatusNormalClosure, "bye") }

type smokeClient struct {
	name    string
	user    string
	t       transport
	timeout time.Duration
}

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:8888", "TCP chat address")
		wsURL    = flag.String("ws", "", "WebSocket URL (e.g. ws://127.0.0.1:8889/ws); overrides -addr")
		origin   = flag.String("origin", "", "Origin header for the WebSocket handshake")
		password = flag.String("password", "smoke-pass-1", "Password for the generated users")
		text     = flag.String("text", "hello lobby 👋", "Message text to send")
		timeout  = flag.Duration("timeout", 5*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	suffix := strings.ToLower(ulid.Make().String()[20:])
	a := mustConnect("A", "smoke_a_"+suffix, *addr, *wsURL, *origin, *timeout)
	defer a.t.close()
	b := mustConnect("B", "smoke_b_"+suffix, *addr, *wsURL, *origin, *timeout)
	defer b.t.close()

	for _, c := range []*smokeClient{a, b} {
		c.mustRegister(*password)
		c.mustLogin(*password)
	}
	if *verbose {
		fmt.Printf("logged in: A=%s B=%s\n", a.user, b.user)
	}

	b.send(v1.Envelope{Type: v1.TypeGetUserList})
	ul := b.mustReadUntil(v1.TypeUserList, func(e v1.Envelope) bool {
		return slices.Contains(e.Users, a.user) && slices.Contains(e.Users, b.user)
	})
	if *verbose {
		fmt.Printf("user_list: %v\n", ul.Users)
	}

	a.send(v1.Envelope{Type: v1.TypeMessage, Content: *text})
	msg := b.mustReadUntil(v1.TypeChatMessage, nil)
	if msg.Username != a.user || msg.Content != *text || msg.Timestamp <= 0 {
		fatalf("chat_message mismatch: %+v", msg)
	}
	a.mustNotSee(v1.TypeChatMessage, 750*time.Millisecond)

	b.send(v1.Envelope{Type: v1.TypeLogout})
	b.mustBeClosed()
	a.mustReadUntil(v1.TypeSystemMessage, func(e v1.Envelope) bool {
		return strings.Contains(e.Content, b.user) && strings.Contains(e.Content, "left")
	})

	fmt.Printf("OK: A=%s B=%s\n", a.user, b.user)
}

func mustConnect(name, user, addr, wsURL, origin string, timeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c := &smokeClient{name: name, user: user, timeout: timeout}

	if wsURL == "" {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			fatalf("connect %s: %v", name, err)
		}
		c.t = &tcpTransport{c: conn, r: bufio.NewReaderSize(conn, 64<<10)}
		return c
	}

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)
	c.t = &wsTransport{c: conn}
	return c
}

func (c *smokeClient) send(env v1.Envelope) {
	b, err := v1.Encode(env)
	if err != nil {
		fatalf("encode (%s): %v", c.name, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.t.write(ctx, b); err != nil {
		fatalf("write (%s): %v", c.name, err)
	}
}

func (c *smokeClient) next(d time.Duration) (v1.Envelope, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	data, err := c.t.read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.DecodeAny(data)
}

func (c *smokeClient) mustReadUntil(typ string, match func(v1.Envelope) bool) v1.Envelope {
	deadline := time.Now().Add(c.timeout)
	for time.Now().Before(deadline) {
		env, err := c.next(time.Until(deadline))
		if err != nil {
			fatalf("waiting for %s (%s): %v", typ, c.name, err)
		}
		if env.Type == v1.TypeError {
			fatalf("server error (%s): %s", c.name, env.Message)
		}
		if env.Type == typ && (match == nil || match(env)) {
			return env
		}
	}
	fatalf("timeout waiting for %s (%s)", typ, c.name)
	return v1.Envelope{}
}

func (c *smokeClient) mustNotSee(typ string, window time.Duration) {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		env, err := c.next(time.Until(deadline))
		if err != nil {
			return
		}
		if env.Type == typ {
			fatalf("unexpected %s (%s): %+v", typ, c.name, env)
		}
	}
}

func (c *smokeClient) mustBeClosed() {
	for {
		_, err := c.next(c.timeout)
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			fatalf("connection %s still open after logout", c.name)
		}
		return
	}
}

func (c *smokeClient) mustRegister(pw string) {
	c.send(v1.Envelope{Type: v1.TypeRegister, Username: c.user, Password: pw})
	resp := c.mustReadUntil(v1.TypeRegisterResponse, nil)
	if !resp.Success {
		fatalf("register %s: %s", c.user, resp.Message)
	}
}

func (c *smokeClient) mustLogin(pw string) {
	c.send(v1.Envelope{Type: v1.TypeLogin, Username: c.user, Password: pw})
	resp := c.mustReadUntil(v1.TypeLoginResponse, nil)
	if !resp.Success || resp.Username != c.user {
		fatalf("login %s: %+v", c.user, resp)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
