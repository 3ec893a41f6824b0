// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// Reconciler、Supabaseクライアント、ミドルウェア、ダッシュボードから利用する。
type MetricsCollector interface {
	RecordReconcile(outcome string)
	RecordStaleDiscard()
	SetActiveReconcilers(n int)
	ObserveUpstreamRequest(operation string, status int, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordEntryValidation(result string)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	reconcile         *prometheus.CounterVec
	staleDiscards     prometheus.Counter
	activeReconcilers prometheus.Gauge
	upstreamLatency   *prometheus.HistogramVec
	httpStatus        *prometheus.CounterVec
	entryValidations  *prometheus.CounterVec
	sessionsCleaned   prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkspot_reconcile_total",
			Help: "セッションとプロフィールの整合結果別の回数",
		}, []string{"outcome"}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parkspot_reconcile_stale_discards_total",
			Help: "古い世代のため破棄された整合結果の数",
		}),
		activeReconcilers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parkspot_active_reconcilers",
			Help: "保持中のReconcilerの数",
		}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parkspot_upstream_request_duration_seconds",
			Help:    "Supabase呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status_code"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkspot_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		entryValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkspot_entry_validations_total",
			Help: "入場検証の結果別の回数",
		}, []string{"result"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parkspot_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.reconcile,
		c.staleDiscards,
		c.activeReconcilers,
		c.upstreamLatency,
		c.httpStatus,
		c.entryValidations,
		c.sessionsCleaned,
	)

	return c
}

// RecordReconcile は整合結果を記録する。
func (c *Collector) RecordReconcile(outcome string) {
	c.reconcile.WithLabelValues(outcome).Inc()
}

// RecordStaleDiscard は破棄された整合結果を記録する。
func (c *Collector) RecordStaleDiscard() {
	c.staleDiscards.Inc()
}

// SetActiveReconcilers は保持中のReconciler数を記録する。
func (c *Collector) SetActiveReconcilers(n int) {
	c.activeReconcilers.Set(float64(n))
}

// ObserveUpstreamRequest はSupabase呼び出しのレイテンシを記録する。
// 通信エラーでレスポンスがない場合、statusは0となる。
func (c *Collector) ObserveUpstreamRequest(operation string, status int, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(operation, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordEntryValidation は入場検証の結果を記録する。
func (c *Collector) RecordEntryValidation(result string) {
	c.entryValidations.WithLabelValues(result).Inc()
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
