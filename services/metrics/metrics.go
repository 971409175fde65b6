// Package metrics declares the prometheus collectors of the application. They register on the
// default registry, served under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "codesens"

// HTTP
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// RateLimited counts the requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Total requests rejected by the rate limiter",
		},
	)
)

// Catalog cache
var (
	CacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Cache operations by operation (get, set, invalidate) and result",
		},
		[]string{"operation", "result"},
	)
)

// Email
var (
	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Emails handed to a backend by backend and status",
		},
		[]string{"backend", "status"},
	)

	// EmailCircuitState is 0 when closed, 1 when half-open and 2 when open.
	EmailCircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "email_circuit_breaker_state",
			Help:      "Email API circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// Mentoring call rooms
var (
	CallRoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_rooms_active",
			Help:      "Call rooms with at least one connected peer",
		},
	)

	CallPeersCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_peers_current",
			Help:      "Peers currently connected to a call room",
		},
	)

	CallPeersRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_peers_rejected_total",
			Help:      "Peers refused or dropped by reason (room_full, slow, idle)",
		},
		[]string{"reason"},
	)

	CallMessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_messages_relayed_total",
			Help:      "Signaling envelopes relayed by type",
		},
		[]string{"type"},
	)
)
