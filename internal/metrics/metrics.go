// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// プローバー、リライター、同期パイプライン、リダイレクトから利用する。
type Recorder interface {
	RecordProbeAttempt(authStyle string, statusCode int, ok bool, duration time.Duration)
	RecordSyncRun(source string, err error)
	RecordDealsUpserted(count int)
	RecordRewriteFallback(reason string)
	RecordClick()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	probeAttempts *prometheus.CounterVec
	probeLatency  prometheus.Histogram
	syncRuns      *prometheus.CounterVec
	dealsUpserted prometheus.Counter
	rewriteFalls  *prometheus.CounterVec
	clicks        prometheus.Counter
}

var _ Recorder = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		probeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lootsy_probe_attempts_total",
			Help: "アフィリエイトAPIへのプローブ試行数",
		}, []string{"auth_style", "status_code", "result"}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lootsy_probe_latency_seconds",
			Help:    "プローブ1回あたりのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lootsy_sync_runs_total",
			Help: "同期パイプラインの実行数",
		}, []string{"source", "result"}),
		dealsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lootsy_deals_upserted_total",
			Help: "アップサートされたディールの合計数",
		}),
		rewriteFalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lootsy_rewrite_fallback_total",
			Help: "キーワード分類へフォールバックしたリライト数",
		}, []string{"reason"}),
		clicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lootsy_clicks_total",
			Help: "リダイレクトされたクリック数",
		}),
	}

	reg.MustRegister(
		c.probeAttempts,
		c.probeLatency,
		c.syncRuns,
		c.dealsUpserted,
		c.rewriteFalls,
		c.clicks,
	)

	return c
}

// RecordProbeAttempt はプローブ試行を記録する。ネットワークエラー時のstatusCodeは0。
func (c *Collector) RecordProbeAttempt(authStyle string, statusCode int, ok bool, duration time.Duration) {
	result := "fail"
	if ok {
		result = "ok"
	}
	c.probeAttempts.WithLabelValues(authStyle, strconv.Itoa(statusCode), result).Inc()
	c.probeLatency.Observe(duration.Seconds())
}

// RecordSyncRun は同期パイプラインの実行結果を記録する。
func (c *Collector) RecordSyncRun(source string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	if source == "" {
		source = "none"
	}
	c.syncRuns.WithLabelValues(source, result).Inc()
}

// RecordDealsUpserted はアップサートされたディール数を記録する。
func (c *Collector) RecordDealsUpserted(count int) {
	c.dealsUpserted.Add(float64(count))
}

// RecordRewriteFallback はリライトのフォールバックを記録する。
func (c *Collector) RecordRewriteFallback(reason string) {
	c.rewriteFalls.WithLabelValues(reason).Inc()
}

// RecordClick はクリックを記録する。
func (c *Collector) RecordClick() {
	c.clicks.Inc()
}

// Nop は何も記録しないRecorder。
type Nop struct{}

func (Nop) RecordProbeAttempt(string, int, bool, time.Duration) {}
func (Nop) RecordSyncRun(string, error)                         {}
func (Nop) RecordDealsUpserted(int)                             {}
func (Nop) RecordRewriteFallback(string)                        {}
func (Nop) RecordClick()                                        {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
