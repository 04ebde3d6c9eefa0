// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// Webhookハンドラーやプロビジョナーから利用する。
type MetricsCollector interface {
	RecordWebhookEvent(result string)
	RecordVerificationFailure(reason string)
	RecordProvisioned()
	RecordApplyLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	webhookEvents      *prometheus.CounterVec
	verificationFails  *prometheus.CounterVec
	provisionedMirrors prometheus.Counter
	applyLatency       prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idmirror_webhook_events_total",
			Help: "処理結果別のWebhookイベント数",
		}, []string{"result"}),
		verificationFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idmirror_verification_failures_total",
			Help: "理由別のWebhook署名検証失敗数",
		}, []string{"reason"}),
		provisionedMirrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "idmirror_provisioned_mirrors_total",
			Help: "オンデマンドプロビジョニングで作成されたミラーの合計数",
		}),
		applyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "idmirror_apply_latency_seconds",
			Help:    "イベント適用のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.webhookEvents,
		c.verificationFails,
		c.provisionedMirrors,
		c.applyLatency,
	)

	return c
}

// RecordWebhookEvent は処理結果（applied/stale/ignored）別にイベントを記録する。
func (c *Collector) RecordWebhookEvent(result string) {
	c.webhookEvents.WithLabelValues(result).Inc()
}

// RecordVerificationFailure は署名検証失敗を理由別に記録する。
func (c *Collector) RecordVerificationFailure(reason string) {
	c.verificationFails.WithLabelValues(reason).Inc()
}

// RecordProvisioned はオンデマンドプロビジョニングを記録する。
func (c *Collector) RecordProvisioned() {
	c.provisionedMirrors.Inc()
}

// RecordApplyLatency はイベント適用のレイテンシを記録する。
func (c *Collector) RecordApplyLatency(duration time.Duration) {
	c.applyLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
