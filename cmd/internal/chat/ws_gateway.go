package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "lobby/shared/contracts/chat/v1"
)

const (
	wsDefaultHeartbeatInterval = 25 * time.Second
	wsDefaultHeartbeatTimeout  = 5 * time.Second
	wsMaxPingFailures          = 3

	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// WSConfig is the WebSocket gateway's origin and heartbeat policy.
type WSConfig struct {
	// OriginRequired rejects upgrades without an Origin header.
	OriginRequired bool
	AllowedOrigins []string
	// InsecureSkipVerify disables websocket.Accept's own origin check (dev only).
	InsecureSkipVerify bool

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// DefaultWSConfig allows non-browser clients and localhost browser origins.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		OriginRequired:    false,
		AllowedOrigins:    strings.Split(wsDefaultAllowedOrigins, ","),
		HeartbeatInterval: wsDefaultHeartbeatInterval,
		HeartbeatTimeout:  wsDefaultHeartbeatTimeout,
	}
}

// WSGateway serves the chat protocol over WebSocket, one envelope per message.
// Sessions run the same state machine as TCP clients and share the Hub.
type WSGateway struct {
	log *slog.Logger
	hub *Hub
	cfg WSConfig

	// Derived for websocket.Accept origin checks.
	originPatterns []string
}

// NewWSGateway constructs a gateway.
func NewWSGateway(log *slog.Logger, hub *Hub, cfg WSConfig) *WSGateway {
	if log == nil {
		log = hub.log
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = wsDefaultHeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = wsDefaultHeartbeatTimeout
	}
	return &WSGateway{
		log:            log,
		hub:            hub,
		cfg:            cfg,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and runs a chat session until it ends.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.InsecureSkipVerify,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err, "remote", r.RemoteAddr)
		return
	}

	if sp := c.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = c.Close(websocket.StatusPolicyViolation, "subprotocol "+v1.Subprotocol+" required")
		return
	}

	c.SetReadLimit(int64(g.hub.cfg.MaxFrameBytes))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.heartbeat(ctx, c, cancel)

	if err := g.hub.Serve(ctx, newWSConn(c, r.RemoteAddr)); err != nil {
		g.log.Info("ws.session.reject", "remote", r.RemoteAddr, "err", err)
	}
}

// heartbeat pings the peer; after wsMaxPingFailures consecutive failures the
// connection is dropped, which ends the session's read loop.
func (g *WSGateway) heartbeat(ctx context.Context, c *websocket.Conn, cancel context.CancelFunc) {
	t := time.NewTicker(g.cfg.HeartbeatInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := c.Ping(hbCtx)
			hbCancel()

			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				g.log.Info("ws.ping.fail", "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					cancel()
					_ = c.CloseNow()
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*":
			return nil
		case origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns turns the allowlist into websocket.Accept host patterns
// so both origin checks agree.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
