package http

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fyrsmithlabs/verifyd/internal/session"
)

var statuses = []session.Status{
	session.StatusPreFlight,
	session.StatusTesting,
	session.StatusBlocked,
	session.StatusCompleted,
	session.StatusEnded,
}

// sessionCollector reports live sessions by status at scrape time.
type sessionCollector struct {
	registry *session.Registry
	live     *prometheus.Desc
}

func newSessionCollector(registry *session.Registry) *sessionCollector {
	return &sessionCollector{
		registry: registry,
		live: prometheus.NewDesc(
			"verifyd_sessions_live",
			"Sessions held in memory, by status.",
			[]string{"status"}, nil,
		),
	}
}

func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.live
}

func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	counts := c.registry.CountByStatus()
	for _, st := range statuses {
		ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(counts[st]), string(st))
	}
}
