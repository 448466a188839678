package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for ledger operations
// 在庫台帳操作のPrometheusメトリクス

var (
	// allocationsTotal counts successful allocation plans
	// 成功した引当計画の件数
	allocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yakkyoku",
		Subsystem: "ledger",
		Name:      "allocations_total",
		Help:      "Number of successfully planned allocations",
	})

	// shortagesTotal counts allocation requests that exceeded available stock
	// 在庫不足となった引当要求の件数
	shortagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yakkyoku",
		Subsystem: "ledger",
		Name:      "shortages_total",
		Help:      "Number of allocation requests rejected for insufficient stock",
	})

	// batchesReceivedTotal counts batches added via AddBatch
	// AddBatchで入荷したバッチの件数
	batchesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yakkyoku",
		Subsystem: "ledger",
		Name:      "batches_received_total",
		Help:      "Number of batches received into stock",
	})

	// reduceDuration observes end-to-end ReduceStock latency
	// ReduceStockの処理時間
	reduceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "yakkyoku",
		Subsystem: "ledger",
		Name:      "reduce_stock_duration_seconds",
		Help:      "Latency of ReduceStock operations",
		Buckets:   prometheus.DefBuckets,
	})

	// lowStockAlertsTotal counts low stock alerts raised
	// 発生した低在庫アラートの件数
	lowStockAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yakkyoku",
		Subsystem: "ledger",
		Name:      "low_stock_alerts_total",
		Help:      "Number of low stock alerts raised",
	})
)
