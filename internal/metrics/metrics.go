package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "escrow"

var (
	// Registry holds the escrow engine's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	ledgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Ledger transactions written, by type.",
		},
		[]string{"type"},
	)

	ledgerAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "amount_vnd_total",
			Help:      "Absolute VND moved through the ledger, by transaction type.",
		},
		[]string{"type"},
	)

	ledgerConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "version_conflicts_total",
			Help:      "Wallet writes rejected by the version check.",
		},
	)

	releaseAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "release_attempts_total",
			Help:      "Release attempts by outcome (released, not_ready, error).",
		},
		[]string{"outcome"},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cancellation",
			Name:      "requests_total",
			Help:      "Cancellations by refund tier.",
		},
		[]string{"tier"},
	)

	compensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compensation",
			Name:      "records_total",
			Help:      "Compensation records by trigger and status change.",
		},
		[]string{"trigger", "status"},
	)

	disputes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispute",
			Name:      "transitions_total",
			Help:      "Dispute ticket transitions by target status.",
		},
		[]string{"status"},
	)

	riskChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "order_checks_total",
			Help:      "Order risk checks by result.",
		},
		[]string{"passed", "level"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs.",
		},
		[]string{"job", "success"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Duration of background job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		ledgerEntries,
		ledgerAmount,
		ledgerConflicts,
		releaseAttempts,
		cancellations,
		compensations,
		disputes,
		riskChecks,
		jobRuns,
		jobDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ObserveHTTP(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func RecordLedgerEntry(txType string, amount int64) {
	if amount < 0 {
		amount = -amount
	}
	ledgerEntries.WithLabelValues(txType).Inc()
	ledgerAmount.WithLabelValues(txType).Add(float64(amount))
}

func RecordLedgerConflict() { ledgerConflicts.Inc() }

func RecordRelease(outcome string) { releaseAttempts.WithLabelValues(outcome).Inc() }

func RecordCancellation(tier string) { cancellations.WithLabelValues(tier).Inc() }

func RecordCompensation(trigger, status string) {
	compensations.WithLabelValues(trigger, status).Inc()
}

func RecordDisputeTransition(status string) { disputes.WithLabelValues(status).Inc() }

func RecordRiskCheck(passed bool, level string) {
	riskChecks.WithLabelValues(strconv.FormatBool(passed), level).Inc()
}

func RecordJob(job string, success bool, d time.Duration) {
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
