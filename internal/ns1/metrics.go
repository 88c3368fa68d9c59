package ns1

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics, registered on the default registerer; whatever embeds the
// library decides whether and where to serve them.
var (
	apiCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ns1sync",
		Name:      "api_calls_total",
		Help:      "Remote API calls issued, by call name.",
	}, []string{"call"})

	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ns1sync",
		Name:      "cache_hits_total",
		Help:      "Gateway cache hits, by cache.",
	}, []string{"cache"})

	rateLimitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ns1sync",
		Name:      "rate_limit_retries_total",
		Help:      "Calls retried after a rate-limit backoff sleep.",
	})
)
