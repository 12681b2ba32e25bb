// Package metrics holds the prometheus collectors exported by pledgeledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pledgeledger"

var (
	// RateLookups counts resolved exchange rates by the fallback step that produced them.
	RateLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_lookups_total",
		Help:      "Resolved exchange-rate lookups by resolution source.",
	}, []string{"source"})

	// RateLookupFailures counts lookups that found no applicable rate.
	RateLookupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_lookup_failures_total",
		Help:      "Exchange-rate lookups that found no applicable rate.",
	})

	// Compensations counts rollback runs by outcome (clean or inconsistent).
	Compensations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compensations_total",
		Help:      "Compensating rollbacks by outcome.",
	}, []string{"outcome"})

	// Recomputations counts balance recomputations by kind (pledge or plan).
	Recomputations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recomputations_total",
		Help:      "Balance recomputations by kind.",
	}, []string{"kind"})

	// RPCRequests counts transport calls by procedure and result code.
	RPCRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_requests_total",
		Help:      "RPC requests by procedure and result code.",
	}, []string{"procedure", "code"})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		RateLookups,
		RateLookupFailures,
		Compensations,
		Recomputations,
		RPCRequests,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
