package delay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tracker",
	Subsystem: "invocation_delays",
	Name:      "cache_requests_total",
	Help:      "Invocation delay cache lookups by result.",
}, []string{"src_chain_id", "dest_chain_id", "result"})
