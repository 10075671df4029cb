// Package metrics defines and registers all custom Prometheus metrics for the
// survey portal. It is the single source of truth for metric names, labels, and
// help strings.
//
// Metrics are registered with the default Prometheus registry at package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionActionsTotal counts session actions by outcome.
// Labels:
//   - action: "login", "register", "logout", "refresh", "restore"
//   - result: "ok", "validation", "rejected", "upstream", "error"
var SessionActionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_actions_total",
		Help:      "Total number of session actions, by action and result.",
	},
	[]string{"action", "result"},
)

// SessionsActive tracks the number of live server-side sessions.
var SessionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Current number of live server-side browser sessions.",
	},
)

// RefreshSchedulersArmed tracks refresh schedulers with a live timer.
var RefreshSchedulersArmed = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "refresh_schedulers_armed",
		Help:      "Current number of armed token refresh schedulers.",
	},
)

// ── Authorization metrics ─────────────────────────────────────────────────────

// AuthRejectionsTotal counts requests rejected by the authorization chain.
// Labels:
//   - stage: "credential", "tenant", "capability"
//   - reason: e.g. "missing", "invalid", "upstream", "inactive", "no_tenant"
var AuthRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_rejections_total",
		Help:      "Total number of requests rejected by the authorization middleware.",
	},
	[]string{"stage", "reason"},
)

// ── Issuer metrics ────────────────────────────────────────────────────────────

// IssuerRequestDuration measures calls to the upstream issuer.
// Labels:
//   - operation: "login", "register", "refresh", "validate", "me", "logout"
//   - outcome: "ok", "rejected", "upstream"
var IssuerRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "issuer_request_duration_seconds",
		Help:      "Duration of requests to the upstream credential issuer.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation", "outcome"},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// AuditEventsDroppedTotal counts audit events discarded because a worker queue was full.
var AuditEventsDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_dropped_total",
		Help:      "Total number of session audit events dropped due to back-pressure.",
	},
)
