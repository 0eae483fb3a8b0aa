package ethclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "rpc",
		Name:      "request_results_total",
	}, []string{"chain_id", "url", "query", "status"})

	RequestDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20},
	}, []string{"chain_id", "url", "query"})
)

func ObserveError(chainID uint64, url, query string, err error) {
	id := strconv.FormatUint(chainID, 10)
	if err == nil {
		RequestResults.WithLabelValues(id, url, query, "ok").Inc()
		return
	}
	var rpcErr rpc.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		RequestResults.WithLabelValues(id, url, query, "timeout").Inc()
	case errors.As(err, &rpcErr):
		RequestResults.WithLabelValues(id, url, query, fmt.Sprintf("error-%d", rpcErr.ErrorCode())).Inc()
	default:
		RequestResults.WithLabelValues(id, url, query, "error").Inc()
	}
}

func ObserveDuration(chainID uint64, url, query string) func() time.Duration {
	return prometheus.NewTimer(RequestDurations.WithLabelValues(strconv.FormatUint(chainID, 10), url, query)).ObserveDuration
}
