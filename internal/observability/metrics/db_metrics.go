package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func registerDBMetrics(db *sql.DB, logger *zap.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "wallets_with_balance",
			Help: "Wallets holding an unsettled balance",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM wallets WHERE balance > 0")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "wallets_with_surplus",
			Help: "Wallets whose total paid exceeds the annual target",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM wallets WHERE total_paid > annual_target")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_open_connections",
			Help: "Open database connections",
		},
		func() float64 {
			return float64(db.Stats().OpenConnections)
		},
	))
}

func queryCount(db *sql.DB, logger *zap.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		logger.Warn("metrics query failed", zap.Error(err))
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
