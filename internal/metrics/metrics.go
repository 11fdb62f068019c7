// SPDX-License-Identifier: MIT

// Package metrics defines the appliance's domain Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolSize tracks the number of occupied license slots (active or not).
	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "licd_sessions_total",
		Help: "Number of occupied license session slots",
	})

	// SessionsActive tracks sessions currently flagged active.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "licd_sessions_active",
		Help: "Number of active license sessions",
	})

	// StatementsUsed mirrors the process-wide statement quota counter.
	StatementsUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "licd_statements_used",
		Help: "Statements consumed against the license quota",
	})

	// AdmissionRejections counts requests refused by the admission gate.
	AdmissionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licd_admission_rejections_total",
		Help: "Requests rejected by the license admission middleware",
	}, []string{"reason"})

	// DiscoveryQueries counts UDP discovery queries answered.
	DiscoveryQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licd_discovery_queries_total",
		Help: "UDP discovery queries answered, by service kind",
	}, []string{"service"})

	// Announcements counts mDNS service announcements (initial and periodic).
	Announcements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "licd_mdns_announcements_total",
		Help: "mDNS service announcements performed",
	})
)
