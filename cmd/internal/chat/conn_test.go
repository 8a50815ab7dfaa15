package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestClassifyReadErr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{io.EOF, reasonEOF},
		{fmt.Errorf("read: %w", io.ErrClosedPipe), reasonEOF},
		{os.ErrDeadlineExceeded, reasonIdleTimeout},
		{context.DeadlineExceeded, reasonIdleTimeout},
		{context.Canceled, reasonContextDone},
		{net.ErrClosed, reasonConnClosed},
		{websocket.CloseError{Code: websocket.StatusGoingAway}, reasonPeerClosed},
		{errors.New("boom"), reasonReadError},
	}
	for _, tc := range cases {
		if got := classifyReadErr(tc.err); got != tc.want {
			t.Fatalf("classifyReadErr(%v)=%s want %s", tc.err, got, tc.want)
		}
	}
}

func TestStreamConn_RoundTripAndDeadline(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	conn := NewStreamConn(server, 1024)
	defer conn.Close()

	if conn.Transport() != TransportTCP {
		t.Fatalf("Transport=%s", conn.Transport())
	}

	go func() { _, _ = client.Write([]byte("{\"type\":\"logout\"}\n")) }()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	frame, err := conn.ReadFrame(ctx)
	if err != nil || string(frame) != `{"type":"logout"}` {
		t.Fatalf("ReadFrame=%q, %v", frame, err)
	}

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		got <- string(buf[:n])
	}()
	if err := conn.WriteFrame(ctx, []byte(`{"type":"x"}`)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if s := <-got; s != "{\"type\":\"x\"}\n" {
		t.Fatalf("peer read %q", s)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	_, err = conn.ReadFrame(short)
	if classifyReadErr(err) != reasonIdleTimeout {
		t.Fatalf("expected idle timeout, got %v", err)
	}
}
