package app

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lobby/cmd/internal/chat"
)

// httpDeps are the collaborators behind the admin routes.
type httpDeps struct {
	log      Logger
	cfg      Config
	pool     *pgxpool.Pool
	gatherer prometheus.Gatherer
	ws       *chat.WSGateway
	ready    func() bool
}

func registerHTTP(mux *http.ServeMux, d httpDeps) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.ready != nil && !d.ready() {
			http.Error(w, "not accepting", http.StatusServiceUnavailable)
			return
		}
		if d.cfg.ReadinessRequireDB && d.pool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		if d.pool != nil {
			if err := PingDB(r.Context(), d.pool, 2*time.Second); err != nil {
				d.log.Info("readyz.db.not_ready", "err", err)
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if d.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{
			ErrorLog: slogErrorLog{d.log},
		}))
	}

	if d.ws != nil {
		mux.Handle("/ws", d.ws)
	}
}

// slogErrorLog adapts slog to promhttp.Logger.
type slogErrorLog struct{ log Logger }

func (l slogErrorLog) Println(v ...any) {
	l.log.Error("metrics.gather.fail", "err", v)
}
