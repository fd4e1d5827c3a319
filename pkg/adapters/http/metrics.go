package http

import (
	"context"
	"net/http"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts chat activity on its own registry.
type Metrics struct {
	registry *prometheus.Registry
	sessions prometheus.Gauge
	started  prometheus.Counter
	messages *prometheus.CounterVec
	uploads  prometheus.Counter
}

// NewMetrics creates and registers the chat collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatflow_sessions_active",
			Help: "Number of open chat sessions",
		}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatflow_sessions_total",
			Help: "Total number of chat sessions opened",
		}),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatflow_messages_total",
				Help: "Total number of chat messages",
			},
			[]string{"direction", "kind"},
		),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatflow_uploads_total",
			Help: "Total number of files announced over chat",
		}),
	}
	m.registry.MustRegister(m.sessions, m.started, m.messages, m.uploads)
	return m
}

// Hooks returns lifecycle callbacks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(ctx context.Context, ev *domain.ChatEvent) {
			m.started.Inc()
			m.sessions.Inc()
		},
		OnSessionEnd: func(ctx context.Context, ev *domain.ChatEvent) {
			m.sessions.Dec()
		},
		OnMessage: func(ctx context.Context, ev *domain.ChatEvent) {
			direction := "in"
			if ev.Type == domain.EventMessageOut {
				direction = "out"
			}
			m.messages.WithLabelValues(direction, ev.Kind).Inc()
		},
		OnUpload: func(ctx context.Context, ev *domain.ChatEvent) {
			m.uploads.Inc()
		},
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
