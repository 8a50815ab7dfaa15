package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the chat server's Prometheus collectors.
type Metrics struct {
	SessionsAccepted  *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
	UsersOnline       prometheus.Gauge
	EnvelopesReceived *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	Takeovers         prometheus.Counter
	AuthFailures      *prometheus.CounterVec
	SessionsClosed    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobby",
			Name:      "sessions_accepted_total",
			Help:      "Client connections accepted, by transport.",
		}, []string{"transport"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "lobby",
			Name:      "sessions_active",
			Help:      "Live client connections, authenticated or not.",
		}),
		UsersOnline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "lobby",
			Name:      "users_online",
			Help:      "Usernames bound in the registry.",
		}),
		EnvelopesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobby",
			Name:      "envelopes_received_total",
			Help:      "Inbound envelopes, by type (\"invalid\" for undecodable frames).",
		}, []string{"type"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobby",
			Name:      "broadcast_deliveries_total",
			Help:      "Broadcast enqueue attempts, by result.",
		}, []string{"result"}),
		Takeovers: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lobby",
			Name:      "login_takeovers_total",
			Help:      "Logins that displaced a live session for the same username.",
		}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobby",
			Name:      "auth_failures_total",
			Help:      "Rejected register/login requests, by operation.",
		}, []string{"op"}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobby",
			Name:      "sessions_closed_total",
			Help:      "Ended sessions, by reason.",
		}, []string{"reason"}),
	}
}
