// Package app wires the lobby server runtime: config, logging, the credential
// store, the chat listener and the admin HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lobby/cmd/identity"
	"lobby/cmd/internal/chat"
)

// App is the lobby server runtime. It owns the store, the TCP listener, the
// admin HTTP server and the database pool when one is configured.
type App struct {
	cfg Config
	log Logger

	store identity.Store
	pool  *pgxpool.Pool

	metrics  *prometheus.Registry
	hub      *chat.Hub
	listener *chat.Listener
	ws       *chat.WSGateway

	accepting atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once

	mu       sync.Mutex
	httpAddr net.Addr
}

// Option configures New.
type Option func(*newOptions)

type newOptions struct {
	store identity.Store
}

// WithStore makes New use store instead of opening one from cfg.
// The App takes ownership and closes it on shutdown.
func WithStore(store identity.Store) Option {
	return func(o *newOptions) { o.store = store }
}

// New validates cfg, opens the credential store, clears online flags left by a
// previous run and wires the chat hub. Nothing listens until Run.
func New(ctx context.Context, cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	var o newOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	store, pool := o.store, (*pgxpool.Pool)(nil)
	if store == nil {
		var err error
		store, pool, err = openStore(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
	}

	if err := resetOnline(ctx, store, log); err != nil {
		closeStore(store, pool)
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := chat.NewHub(log, store, cfg.Chat, chat.WithMetrics(chat.NewMetrics(reg)))

	return &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		pool:     pool,
		metrics:  reg,
		hub:      hub,
		listener: chat.NewListener(cfg.TCPAddr, hub, log),
		ws:       chat.NewWSGateway(log, hub, cfg.WS),
		ready:    make(chan struct{}),
	}, nil
}

// openStore picks Postgres when a database URL is configured, else the JSON file.
func openStore(ctx context.Context, cfg Config, log Logger) (identity.Store, *pgxpool.Pool, error) {
	opts := []identity.Option{identity.WithPasswordConfig(cfg.Passwords)}

	if cfg.DatabaseURL == "" {
		fs, err := identity.OpenFileStore(cfg.UsersFile, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("load credentials: %w", err)
		}
		log.Info("store.file", "path", fs.Path(), "password_scheme", string(cfg.Passwords.Scheme))
		return fs, nil, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	ps, err := identity.NewPostgresStore(pool, append(opts, identity.WithSchema(cfg.DBSchema))...)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := ps.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("store.postgres", "schema", cfg.DBSchema, "password_scheme", string(cfg.Passwords.Scheme))
	return ps, pool, nil
}

// resetOnline clears online flags left by a previous run. A failed write is
// logged: the in-memory reset already happened and the next write retries it.
func resetOnline(ctx context.Context, store identity.Store, log Logger) error {
	n, err := store.ForceLogoutAll(ctx)
	switch {
	case err == nil:
		log.Info("store.reset_online", "count", n)
		return nil
	case identity.IsPersistence(err):
		log.Warn("store.reset_online", "count", n, "err", err)
		return nil
	default:
		return fmt.Errorf("reset online flags: %w", err)
	}
}

func closeStore(store identity.Store, pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = store.Close(ctx)
	if pool != nil {
		pool.Close()
	}
}

// Ready is closed once both listeners are bound.
func (a *App) Ready() <-chan struct{} { return a.ready }

// TCPAddr returns the bound chat address (nil before Ready).
func (a *App) TCPAddr() net.Addr { return a.listener.Addr() }

// HTTPAddr returns the bound admin address (nil before Ready or when disabled).
func (a *App) HTTPAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.httpAddr
}

// Hub exposes the chat hub (tests and diagnostics).
func (a *App) Hub() *chat.Hub { return a.hub }

// Run binds the chat listener and the admin server, then blocks until ctx is
// cancelled or a server fails. Either way it shuts everything down: sessions
// are notified and closed, online users logged out, the store closed.
func (a *App) Run(ctx context.Context) error {
	if err := a.listener.Listen(); err != nil {
		closeStore(a.store, a.pool)
		return err
	}

	var (
		srv    *http.Server
		httpLn net.Listener
	)
	if a.cfg.HTTPAddr != "" {
		ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
		if err != nil {
			_ = a.listener.Shutdown(context.Background())
			closeStore(a.store, a.pool)
			return fmt.Errorf("listen %s: %w", a.cfg.HTTPAddr, err)
		}
		httpLn = ln

		mux := http.NewServeMux()
		registerHTTP(mux, httpDeps{
			log:      a.log,
			cfg:      a.cfg,
			pool:     a.pool,
			gatherer: a.metrics,
			ws:       a.ws,
			ready:    a.accepting.Load,
		})
		srv = &http.Server{
			Handler:           WithSecurityHeaders(WithRequestLogging(mux, a.log)),
			ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
			IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
			MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		}

		a.mu.Lock()
		a.httpAddr = ln.Addr()
		a.mu.Unlock()
	}

	errCh := make(chan error, 2)
	go func() {
		if err := a.listener.Serve(ctx); err != nil {
			errCh <- err
		}
	}()
	if srv != nil {
		go func() {
			if err := srv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http: %w", err)
			}
		}()
	}

	a.accepting.Store(true)
	a.readyOnce.Do(func() { close(a.ready) })
	a.log.Info("server.start",
		"tcp_addr", a.listener.Addr().String(),
		"http_addr", addrOrEmpty(a.HTTPAddr()),
		"duplicate_login", string(a.hub.Config().DuplicateLogin),
		"db_enabled", a.pool != nil,
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	return errors.Join(runErr, a.shutdown(srv))
}

func (a *App) shutdown(srv *http.Server) error {
	a.accepting.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	var errs []error
	if err := a.listener.Shutdown(ctx); err != nil {
		a.log.Error("listener.shutdown.fail", "err", err)
		errs = append(errs, err)
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Error("http.shutdown.fail", "err", err)
			errs = append(errs, err)
		}
	}
	if err := a.store.Close(ctx); err != nil {
		a.log.Error("store.close.fail", "err", err)
		errs = append(errs, err)
	}
	if a.pool != nil {
		a.pool.Close()
	}

	a.log.Info("server.stopped")
	return errors.Join(errs...)
}

func addrOrEmpty(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
