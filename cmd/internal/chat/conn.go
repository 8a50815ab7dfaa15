package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/coder/websocket"
)

// Transport names used in logs and metrics.
const (
	TransportTCP = "tcp"
	TransportWS  = "ws"
)

// Conn is one framed client connection. A Session owns its Conn exclusively.
//
// ReadFrame is called from one goroutine and WriteFrame from another; Close may
// be called from any goroutine and unblocks both.
type Conn interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
	RemoteAddr() string
	Transport() string
}

// tcpConn frames a stream connection as newline-delimited JSON.
// Context deadlines become socket deadlines; closing is the only cancellation.
type tcpConn struct {
	c  net.Conn
	fr *FrameReader
}

// NewStreamConn adapts a net.Conn (TCP, unix socket, net.Pipe) to Conn.
func NewStreamConn(c net.Conn, maxFrameBytes int) Conn {
	return &tcpConn{c: c, fr: NewFrameReader(c, maxFrameBytes)}
}

func (t *tcpConn) ReadFrame(ctx context.Context) ([]byte, error) {
	dl, _ := ctx.Deadline()
	if err := t.c.SetReadDeadline(dl); err != nil {
		return nil, err
	}
	return t.fr.ReadFrame()
}

func (t *tcpConn) WriteFrame(ctx context.Context, frame []byte) error {
	dl, _ := ctx.Deadline()
	if err := t.c.SetWriteDeadline(dl); err != nil {
		return err
	}
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := t.c.Write(buf)
	return err
}

func (t *tcpConn) Close() error       { return t.c.Close() }
func (t *tcpConn) RemoteAddr() string { return addrString(t.c.RemoteAddr()) }
func (t *tcpConn) Transport() string  { return TransportTCP }

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// wsConn carries one envelope per WebSocket message.
type wsConn struct {
	c      *websocket.Conn
	remote string
}

func newWSConn(c *websocket.Conn, remote string) *wsConn {
	return &wsConn{c: c, remote: remote}
}

func (w *wsConn) ReadFrame(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (w *wsConn) WriteFrame(ctx context.Context, frame []byte) error {
	return w.c.Write(ctx, websocket.MessageText, frame)
}

func (w *wsConn) Close() error {
	err := w.c.Close(websocket.StatusNormalClosure, "bye")
	if err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, net.ErrClosed) {
		_ = w.c.CloseNow()
	}
	return nil
}

func (w *wsConn) RemoteAddr() string { return w.remote }
func (w *wsConn) Transport() string  { return TransportWS }

// ---- read error classification ----

// Close reasons recorded when a session ends.
const (
	reasonLogout      = "logout"
	reasonEOF         = "eof"
	reasonPeerClosed  = "peer_closed"
	reasonIdleTimeout = "idle_timeout"
	reasonContextDone = "context_done"
	reasonConnClosed  = "conn_closed"
	reasonReadError   = "read_error"
	reasonClosed      = "closed"
)

func classifyReadErr(err error) string {
	var ne net.Error
	switch {
	case websocket.CloseStatus(err) != -1:
		return reasonPeerClosed
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe):
		return reasonEOF
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return reasonIdleTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return reasonIdleTimeout
	case errors.Is(err, context.Canceled):
		return reasonContextDone
	case errors.Is(err, net.ErrClosed):
		return reasonConnClosed
	default:
		return reasonReadError
	}
}

// writeContext bounds a single frame write.
func writeContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
