package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"lobby/cmd/identity"
	"lobby/cmd/identity/ids"
	v1 "lobby/shared/contracts/chat/v1"
)

// ErrHubClosed is returned by Serve once Shutdown has started.
var ErrHubClosed = errors.New("chat: hub is shut down")

// Hub owns presence: the registry of online users, every live session, and
// the credential store they authenticate against. Transports hand it
// connections through Serve.
type Hub struct {
	log      *slog.Logger
	store    identity.Store
	registry *Registry
	presence *presenceLocks
	metrics  *Metrics
	cfg      Config
	now      func() time.Time

	mu      sync.Mutex
	live    map[*Session]struct{}
	closing bool
	wg      sync.WaitGroup
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) HubOption {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithClock overrides time.Now for envelope timestamps (tests).
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHub constructs a Hub over store.
func NewHub(log *slog.Logger, store identity.Store, cfg Config, opts ...HubOption) *Hub {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	h := &Hub{
		log:      log,
		store:    store,
		registry: NewRegistry(),
		presence: newPresenceLocks(),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		live:     make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(nil)
	}
	return h
}

// Registry exposes the online-user registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Config returns the effective session config.
func (h *Hub) Config() Config { return h.cfg }

// LiveSessions returns the number of connected sessions, authenticated or not.
func (h *Hub) LiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Serve runs a session on conn and blocks until it ends. The hub takes
// ownership of conn and closes it.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	s, err := h.attach(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer h.detach(s)

	s.log.Info("session.open", "remote", conn.RemoteAddr())
	s.run(ctx)
	return nil
}

func (h *Hub) attach(conn Conn) (*Session, error) {
	id, err := ids.NewULID(h.now())
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return nil, ErrHubClosed
	}
	s := newSession(id, conn, h)
	h.live[s] = struct{}{}
	h.wg.Add(1)

	h.metrics.SessionsAccepted.WithLabelValues(conn.Transport()).Inc()
	h.metrics.SessionsActive.Inc()
	return s, nil
}

func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	delete(h.live, s)
	h.mu.Unlock()

	h.metrics.SessionsActive.Dec()
	h.wg.Done()
}

func (h *Hub) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// login authenticates s and binds it to the username under the presence lock.
//
// login_response is queued before the registry binding, so it precedes any
// broadcast the new session receives. Under the takeover policy a previously
// bound session gets a notice and is closed; its own cleanup then finds the
// binding gone and does nothing.
func (h *Hub) login(ctx context.Context, s *Session, username, pw string) (string, error) {
	const op = "chat.Login"

	name := identity.NormalizeUsername(username)
	unlock := h.presence.Lock(name)
	defer unlock()

	takeover := h.cfg.DuplicateLogin == DuplicateLoginTakeover

	rec, err := h.store.Login(ctx, name, pw, identity.LoginOptions{AllowTakeover: takeover})
	if err != nil {
		if !identity.IsPersistence(err) || rec.Username == "" {
			return "", err
		}
		h.log.Warn("store.persist.fail", "op", v1.TypeLogin, "username", rec.Username, "err", err)
	}
	name = rec.Username

	if cur, ok := h.registry.Lookup(name); ok && cur != s && !takeover {
		return "", identity.OpError{Op: op, Kind: identity.ErrAlreadyOnline, Msg: "bound to a live session"}
	}

	b, err := v1.Encode(v1.NewLoginResponse(true, "login successful", name))
	if err != nil {
		return "", err
	}
	s.Enqueue(b)

	prev := h.registry.Replace(name, s)
	s.bind(name)
	h.metrics.UsersOnline.Set(float64(h.registry.Len()))

	if prev != nil {
		h.metrics.Takeovers.Inc()
		h.log.Info("session.takeover", "username", name, "old_session_id", prev.ID, "new_session_id", s.ID)
		if notice, err := v1.Encode(v1.NewSystemMessage("you have been signed out: this account logged in from another connection", h.now())); err == nil {
			prev.Enqueue(notice)
		}
		prev.Close()
	}
	return name, nil
}

// endSession releases a session's username binding. Only the session still
// bound to the username logs it out and announces the departure.
func (h *Hub) endSession(s *Session, reason string) {
	h.metrics.SessionsClosed.WithLabelValues(reason).Inc()

	name := s.Username()
	if name == "" {
		s.log.Info("session.close", "reason", reason)
		return
	}

	unlock := h.presence.Lock(name)
	removed := h.registry.UnregisterIf(name, s)
	if removed {
		ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
		if err := h.store.Logout(ctx, name); err != nil {
			h.log.Warn("store.persist.fail", "op", v1.TypeLogout, "username", name, "err", err)
		}
		cancel()
		h.metrics.UsersOnline.Set(float64(h.registry.Len()))
	}
	unlock()

	s.log.Info("session.close", "username", name, "reason", reason, "unbound", removed)

	if removed && !h.isClosing() {
		h.Broadcast(v1.NewSystemMessage(fmt.Sprintf("%s left the chat room", name), h.now()), nil)
		h.BroadcastUserList()
	}
}

// Shutdown stops accepting sessions, sends every live session a shutdown
// notice, closes them and waits (bounded by ctx) for their goroutines. Any
// username still bound afterwards is logged out.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return nil
	}
	h.closing = true
	live := make([]*Session, 0, len(h.live))
	for s := range h.live {
		live = append(live, s)
	}
	h.mu.Unlock()

	h.log.Info("hub.shutdown.start", "sessions", len(live), "online", h.registry.Len())

	if notice, err := v1.Encode(v1.NewSystemMessage("server is shutting down", h.now())); err == nil {
		for _, s := range live {
			s.Enqueue(notice)
		}
	}
	for _, s := range live {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		h.log.Warn("hub.shutdown.timeout", "remaining", h.LiveSessions())
	}

	stale := h.registry.SnapshotUsernames()
	for _, name := range stale {
		h.registry.Unregister(name)
		lctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
		if lerr := h.store.Logout(lctx, name); lerr != nil {
			h.log.Warn("store.persist.fail", "op", v1.TypeLogout, "username", name, "err", lerr)
		}
		cancel()
	}
	h.metrics.UsersOnline.Set(0)

	h.log.Info("hub.shutdown.done", "forced_logouts", len(stale))
	return err
}
