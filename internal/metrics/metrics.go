// Package metrics holds the prometheus collectors of the matching service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "optin"

// Notification kinds
const (
	KindMatched  = "matched"
	KindReminder = "reminder"
)

// Metrics groups the collectors updated by services
type Metrics struct {
	registry *prometheus.Registry

	MatchesCreated    prometheus.Counter
	MatchesDeleted    prometheus.Counter
	OptInsExpired     prometheus.Counter
	ReconcileErrors   prometheus.Counter
	NotificationsSent *prometheus.CounterVec
	NotificationsLost *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MatchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_created_total",
			Help:      "Matches inserted by reconciliation.",
		}),
		MatchesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_deleted_total",
			Help:      "Matches deleted by reconciliation or the sweep.",
		}),
		OptInsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opt_ins_expired_total",
			Help:      "Opt-ins flipped to expired by the sweep.",
		}),
		ReconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_errors_total",
			Help:      "Group reconciliations that failed.",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notifications a channel delivered, by kind and channel.",
		}, []string{"kind", "channel"}),
		NotificationsLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Notifications a channel failed to deliver, by kind and channel.",
		}, []string{"kind", "channel"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiry sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MatchesCreated,
		m.MatchesDeleted,
		m.OptInsExpired,
		m.ReconcileErrors,
		m.NotificationsSent,
		m.NotificationsLost,
		m.SweepDuration,
	)
	return m
}

// Handler exposes the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
