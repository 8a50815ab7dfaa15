package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"lobby/cmd/identity"
	"lobby/cmd/security/digest"
	v1 "lobby/shared/contracts/chat/v1"
)

// State is a session's lifecycle position.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session is one client connection and its protocol state.
//
// Notes:
// - send is never closed, so concurrent broadcasters cannot panic.
// - done signals the writer to flush and close the connection.
// - Close is idempotent and safe from any goroutine.
type Session struct {
	ID string

	conn Conn
	hub  *Hub
	log  *slog.Logger

	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	writerDone chan struct{}

	mu       sync.Mutex
	username string
	state    State
}

func newSession(id string, conn Conn, hub *Hub) *Session {
	return &Session{
		ID:         id,
		conn:       conn,
		hub:        hub,
		log:        hub.log.With("session_id", id, "transport", conn.Transport()),
		send:       make(chan []byte, hub.cfg.SendQueueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// Username returns the bound username, or "" before login.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr() }

// Done is closed once the session starts shutting down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close marks the session closed. Queued frames are flushed (bounded) and the
// connection is closed, which unblocks the read loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
	})
}

// Enqueue queues an encoded frame without blocking.
// It reports false when the queue is full or the session is closing.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) bind(username string) {
	s.mu.Lock()
	s.username = username
	if s.state != StateClosed {
		s.state = StateAuthenticated
	}
	s.mu.Unlock()
}

// run drives the session until the peer leaves or the session is closed.
func (s *Session) run(ctx context.Context) {
	go s.writeLoop()

	reason := s.readLoop(ctx)
	s.hub.endSession(s, reason)
	s.Close()
	<-s.writerDone
}

func (s *Session) readLoop(ctx context.Context) string {
	idle := s.hub.cfg.ReadIdleTimeout

	for {
		select {
		case <-s.done:
			return reasonClosed
		default:
		}

		readCtx, cancel := ctx, context.CancelFunc(func() {})
		if idle > 0 {
			readCtx, cancel = context.WithTimeout(ctx, idle)
		}
		frame, err := s.conn.ReadFrame(readCtx)
		cancel()

		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				s.hub.metrics.EnvelopesReceived.WithLabelValues("invalid").Inc()
				s.replyError(fmt.Sprintf("frame too large: max=%d bytes", s.hub.cfg.MaxFrameBytes))
				continue
			}
			if s.State() == StateClosed {
				return reasonClosed
			}
			return classifyReadErr(err)
		}

		env, err := v1.Decode(frame)
		if err != nil {
			s.hub.metrics.EnvelopesReceived.WithLabelValues("invalid").Inc()
			if errors.Is(err, v1.ErrUnknownType) {
				s.replyError(fmt.Sprintf("unsupported type: %s", env.Type))
			} else {
				s.log.Debug("session.decode.fail", "err", err)
				s.replyError("bad format")
			}
			continue
		}
		s.hub.metrics.EnvelopesReceived.WithLabelValues(env.Type).Inc()

		if reason := s.handle(ctx, env); reason != "" {
			return reason
		}
	}
}

// handle applies one request. A non-empty result ends the session with that reason.
func (s *Session) handle(ctx context.Context, env v1.Envelope) string {
	state := s.State()
	if state == StateClosed {
		return reasonClosed
	}

	switch env.Type {
	case v1.TypeRegister:
		s.onRegister(ctx, env)
		return ""
	case v1.TypeLogin:
		if state == StateAuthenticated {
			s.replyError("already logged in")
			return ""
		}
		s.onLogin(ctx, env)
		return ""
	}

	if state != StateAuthenticated {
		s.replyError("login required")
		return ""
	}

	switch env.Type {
	case v1.TypeMessage:
		s.onMessage(env)
	case v1.TypeGetUserList:
		s.reply(v1.NewUserList(s.hub.registry.SnapshotUsernames(), s.hub.now()))
	case v1.TypeLogout:
		return reasonLogout
	}
	return ""
}

func (s *Session) onRegister(ctx context.Context, env v1.Envelope) {
	username := identity.NormalizeUsername(env.Username)

	if err := s.hub.store.Register(ctx, env.Username, env.Password); err != nil {
		s.hub.metrics.AuthFailures.WithLabelValues(v1.TypeRegister).Inc()
		if identity.IsPersistence(err) {
			s.log.Warn("store.persist.fail", "op", v1.TypeRegister, "username", username, "err", err)
		} else {
			s.log.Info("session.register.fail", "username", username, "err", err)
		}
		s.reply(v1.NewRegisterResponse(false, identity.Message(err)))
		return
	}

	s.log.Info("session.register.ok", "username", username)
	s.reply(v1.NewRegisterResponse(true, "registration successful"))
}

func (s *Session) onLogin(ctx context.Context, env v1.Envelope) {
	name, err := s.hub.login(ctx, s, env.Username, env.Password)
	if err != nil {
		s.hub.metrics.AuthFailures.WithLabelValues(v1.TypeLogin).Inc()
		// Unknown names are logged only as a fingerprint.
		if identity.IsNotFound(err) {
			s.log.Info("session.login.fail", "username_fp", digest.Fingerprint(identity.NormalizeUsername(env.Username)), "reason", "unknown_user")
		} else {
			s.log.Info("session.login.fail", "username", identity.NormalizeUsername(env.Username), "err", err)
		}
		s.reply(v1.NewLoginResponse(false, identity.Message(err), ""))
		return
	}

	s.log.Info("session.login.ok", "username", name, "remote", s.RemoteAddr())

	now := s.hub.now()
	s.reply(v1.NewUserList(s.hub.registry.SnapshotUsernames(), now))
	s.hub.Broadcast(v1.NewSystemMessage(fmt.Sprintf("welcome %s to the chat room!", name), now), s)
	s.hub.BroadcastUserList()
}

func (s *Session) onMessage(env v1.Envelope) {
	content := env.Content
	if strings.TrimSpace(content) == "" {
		s.replyError("empty message")
		return
	}
	if limit := s.hub.cfg.MaxMessageChars; utf8.RuneCountInString(content) > limit {
		s.replyError(fmt.Sprintf("message too long: max=%d chars", limit))
		return
	}

	s.hub.Broadcast(v1.NewChatMessage(s.Username(), content, s.hub.now()), s)
}

// ---- send helpers ----

func (s *Session) reply(msg any) {
	b, err := v1.Encode(msg)
	if err != nil {
		s.log.Error("session.encode.fail", "err", err)
		return
	}
	if !s.Enqueue(b) {
		s.log.Info("session.send.drop", "state", s.State().String())
		s.Close()
	}
}

func (s *Session) replyError(msg string) {
	s.reply(v1.NewError(msg))
}

// writeLoop is the only writer on conn. Writes ignore the session context so a
// final notice still goes out during shutdown; Close is the cancellation.
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	defer func() { _ = s.conn.Close() }()

	for {
		select {
		case <-s.done:
			s.flush()
			return
		case b := <-s.send:
			wctx, cancel := writeContext(context.Background(), s.hub.cfg.WriteTimeout)
			err := s.conn.WriteFrame(wctx, b)
			cancel()
			if err != nil {
				s.log.Info("session.write.fail", "err", err)
				s.Close()
				return
			}
		}
	}
}

// flush drains frames queued before Close, e.g. a shutdown or takeover notice.
func (s *Session) flush() {
	deadline := time.Now().Add(flushTimeout)
	for {
		select {
		case b := <-s.send:
			ctx, cancel := context.WithDeadline(context.Background(), deadline)
			err := s.conn.WriteFrame(ctx, b)
			cancel()
			if err != nil {
				return
			}
		default:
			return
		}
	}
}
