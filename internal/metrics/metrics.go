// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpstreamRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "episodevault",
		Name:      "upstream_retries_total",
		Help:      "Retried outbound calls, by resilience policy.",
	}, []string{"policy"})

	AntiBotCooldowns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "episodevault",
		Name:      "antibot_cooldowns_total",
		Help:      "Cooldowns taken after an anti-bot 403, by resilience policy.",
	}, []string{"policy"})

	SessionLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "episodevault",
		Name:      "session_logins_total",
		Help:      "Anonymous login attempts, by result.",
	}, []string{"result"})

	LockContention = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "episodevault",
		Name:      "scrape_lock_contention_total",
		Help:      "TryAcquire calls that found the key already held.",
	})

	Scrapes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "episodevault",
		Name:      "scrapes_total",
		Help:      "Scrape runs, by kind and status.",
	}, []string{"kind", "status"})

	ScrapeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "episodevault",
		Name:      "scrape_duration_seconds",
		Help:      "Wall time of scrape runs, by kind.",
		Buckets:   []float64{0.5, 1, 5, 15, 60, 180, 600, 1800},
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(UpstreamRetries, AntiBotCooldowns, SessionLogins, LockContention, Scrapes, ScrapeDuration)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
