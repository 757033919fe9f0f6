// Package metrics defines the Prometheus metrics emitted by the API access
// layer. Metrics register with the default registry on package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shopbook"

// ── Request pipeline ──────────────────────────────────────────────────────────

// RequestsTotal counts completed HTTP attempts.
// Labels:
//   - method: HTTP method
//   - code: status class ("2xx", "4xx", "5xx") or "network" when no response arrived
var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Total number of API request attempts, by method and status class.",
	},
	[]string{"method", "code"},
)

// RequestDuration measures a single attempt from send to response headers.
var RequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Duration of API request attempts.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method"},
)

// RefreshTotal counts token refresh outcomes.
// Label:
//   - result: "success", "failed", "no_refresh_token", "reused" (another request already refreshed)
var RefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "Total number of access token refresh decisions, by result.",
	},
	[]string{"result"},
)

// ForcedLogoutsTotal counts irrecoverable authentication failures.
var ForcedLogoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "forced_logouts_total",
		Help:      "Total number of forced logouts after a failed refresh.",
	},
)

// TenantSuspensionsTotal counts 403 "Subscription expired" responses.
var TenantSuspensionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenant_suspensions_total",
		Help:      "Total number of responses signalling a suspended tenant.",
	},
)

// ── Booking ───────────────────────────────────────────────────────────────────

// BookingsTotal counts booking submission outcomes.
// Label:
//   - result: "created", "conflict", "failed", "superseded", "rejected"
var BookingsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_submissions_total",
		Help:      "Total number of booking submissions, by result.",
	},
	[]string{"result"},
)

// ── Dev server ────────────────────────────────────────────────────────────────

// DevServerRequestsTotal counts requests served by the local dev backend.
// Labels:
//   - route: chi route pattern
//   - code: HTTP status code
var DevServerRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "devserver_requests_total",
		Help:      "Total number of requests served by the dev server, by route and status.",
	},
	[]string{"route", "code"},
)
