package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "wastefee_"

	resultSuccess  = "success"
	resultError    = "error"
	resultRejected = "rejected"
	resultReplayed = "replayed"
)

var (
	registerOnce sync.Once

	sessionTotal   *prometheus.CounterVec
	sessionLatency *prometheus.HistogramVec
	creditAmount   prometheus.Counter

	settlementTotal   *prometheus.CounterVec
	settlementLatency *prometheus.HistogramVec
	settledAmount     prometheus.Counter

	surplusTotal *prometheus.CounterVec

	lockWait     prometheus.Histogram
	lockTimeouts prometheus.Counter

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	eventForwardTotal *prometheus.CounterVec
	idempotencyTotal  *prometheus.CounterVec
	simulationTotal   *prometheus.CounterVec
)

// Init registers ledger metrics and, when db is set, DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
		sessionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "session_complete_total",
				Help: "Total completed saving sessions by result",
			},
			[]string{"result"},
		)
		sessionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "session_complete_latency_seconds",
				Help:    "Session completion latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		creditAmount = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "credited_amount_total",
				Help: "Total currency credited to wallets",
			},
		)

		settlementTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_total",
				Help: "Total settlement attempts by result",
			},
			[]string{"result"},
		)
		settlementLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_latency_seconds",
				Help:    "Settlement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settledAmount = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "settled_amount_total",
				Help: "Total currency remitted to municipalities",
			},
		)

		surplusTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "surplus_resolved_total",
				Help: "Total surplus resolutions by action and result",
			},
			[]string{"action", "result"},
		)

		lockWait = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "wallet_lock_wait_seconds",
				Help:    "Time spent waiting for a wallet lock",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)
		lockTimeouts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "wallet_lock_timeouts_total",
				Help: "Wallet lock acquisitions that gave up",
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total document exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Document export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		eventForwardTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "event_forward_total",
				Help: "Ledger events forwarded to the broker by result",
			},
			[]string{"subject", "result"},
		)
		idempotencyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "idempotency_total",
				Help: "Idempotent requests by outcome",
			},
			[]string{"result"},
		)
		simulationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "simulation_total",
				Help: "Scenario simulations by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			sessionTotal,
			sessionLatency,
			creditAmount,
			settlementTotal,
			settlementLatency,
			settledAmount,
			surplusTotal,
			lockWait,
			lockTimeouts,
			exportTotal,
			exportLatency,
			eventForwardTotal,
			idempotencyTotal,
			simulationTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSession records session completion latency and result.
func ObserveSession(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if sessionTotal != nil {
		sessionTotal.WithLabelValues(result).Inc()
	}
	if sessionLatency != nil {
		sessionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddCredited adds a credited amount.
func AddCredited(amount float64) {
	if amount <= 0 {
		return
	}
	if creditAmount != nil {
		creditAmount.Add(amount)
	}
}

// ObserveSettlement records settlement latency and result.
func ObserveSettlement(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settlementTotal != nil {
		settlementTotal.WithLabelValues(result).Inc()
	}
	if settlementLatency != nil {
		settlementLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddSettled adds a remitted amount.
func AddSettled(amount float64) {
	if amount <= 0 {
		return
	}
	if settledAmount != nil {
		settledAmount.Add(amount)
	}
}

// IncSurplus counts a surplus resolution.
func IncSurplus(action, result string) {
	if action == "" {
		action = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if surplusTotal != nil {
		surplusTotal.WithLabelValues(action, result).Inc()
	}
}

// ObserveLockWait records how long a wallet lock took to acquire.
func ObserveLockWait(wait time.Duration) {
	if lockWait != nil {
		lockWait.Observe(wait.Seconds())
	}
}

// IncLockTimeout counts an abandoned wallet lock acquisition.
func IncLockTimeout() {
	if lockTimeouts != nil {
		lockTimeouts.Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncEventForward counts a broker publish.
func IncEventForward(subject, result string) {
	if subject == "" {
		subject = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if eventForwardTotal != nil {
		eventForwardTotal.WithLabelValues(subject, result).Inc()
	}
}

// IncIdempotency counts an idempotency-key outcome.
func IncIdempotency(result string) {
	if result == "" {
		result = resultSuccess
	}
	if idempotencyTotal != nil {
		idempotencyTotal.WithLabelValues(result).Inc()
	}
}

// IncSimulation counts a scenario simulation.
func IncSimulation(result string) {
	if result == "" {
		result = resultSuccess
	}
	if simulationTotal != nil {
		simulationTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultRejected = resultRejected
	ResultReplayed = resultReplayed
)
