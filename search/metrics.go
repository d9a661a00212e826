package search

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics counts feed queries and searches. A nil *Metrics records nothing.
type Metrics struct {
	QueriesTotal   *prometheus.CounterVec
	SearchesTotal  *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec
	ResultsTotal   prometheus.Counter
}

// NewMetrics creates the search metrics and registers them with reg when reg
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vuln_search",
				Name:      "feed_queries_total",
				Help:      "Total number of vulnerability feed queries",
			},
			[]string{"outcome"},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vuln_search",
				Name:      "searches_total",
				Help:      "Total number of searches",
			},
			[]string{"strategy", "outcome"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "vuln_search",
				Name:      "search_duration_seconds",
				Help:      "Duration of searches in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		ResultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vuln_search",
				Name:      "results_total",
				Help:      "Total number of vulnerabilities returned to callers",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.QueriesTotal, m.SearchesTotal, m.SearchDuration, m.ResultsTotal)
	}
	return m
}

func (m *Metrics) observeQuery(err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) observeSearch(strategy string, n int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(strategy, outcome(err)).Inc()
	m.SearchDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	m.ResultsTotal.Add(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}
