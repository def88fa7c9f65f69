// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// フェッチクライアントとディスカバリーパイプラインから利用する。
type MetricsCollector interface {
	RecordSourceHealth(status string)
	RecordCandidates(sourceType string, count int)
	RecordDisposition(reason string)
	RecordQueueWrites(kind string, count int)
	RecordDuplicate(kind string)
	RecordFetch(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordDetailFetch(outcome string)
	RecordRunDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sources      *prometheus.CounterVec
	candidates   *prometheus.CounterVec
	dispositions *prometheus.CounterVec
	queueWrites  *prometheus.CounterVec
	duplicates   *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	httpStatus   *prometheus.CounterVec
	fetchLatency prometheus.Histogram
	detail       *prometheus.CounterVec
	runDuration  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_sources_total",
			Help: "ヘルス状態別の処理済みソース数",
		}, []string{"status"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_candidates_total",
			Help: "ソース種別別の解析済み候補数",
		}, []string{"source_type"}),
		dispositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_dispositions_total",
			Help: "分類理由別の判定数",
		}, []string{"reason"}),
		queueWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_queue_writes_total",
			Help: "種類別（new/backfill）のInbox書き込み数",
		}, []string{"kind"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_duplicates_total",
			Help: "一致先別（live/queue）の重複候補数",
		}, []string{"kind"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_fetches_total",
			Help: "結果別のHTTPフェッチ数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "discovery_fetch_latency_seconds",
			Help:    "HTTPフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		detail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_detail_fetches_total",
			Help: "結果別の詳細ページ取得数",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "discovery_run_duration_seconds",
			Help:    "ディスカバリー実行全体の所要時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	reg.MustRegister(
		c.sources,
		c.candidates,
		c.dispositions,
		c.queueWrites,
		c.duplicates,
		c.fetches,
		c.httpStatus,
		c.fetchLatency,
		c.detail,
		c.runDuration,
	)

	return c
}

// RecordSourceHealth はソースのヘルス状態を記録する。
func (c *Collector) RecordSourceHealth(status string) {
	c.sources.WithLabelValues(status).Inc()
}

// RecordCandidates は解析済み候補数を記録する。
func (c *Collector) RecordCandidates(sourceType string, count int) {
	c.candidates.WithLabelValues(sourceType).Add(float64(count))
}

// RecordDisposition は分類結果を記録する。
func (c *Collector) RecordDisposition(reason string) {
	c.dispositions.WithLabelValues(reason).Inc()
}

// RecordQueueWrites はInboxへの書き込み数を記録する。
func (c *Collector) RecordQueueWrites(kind string, count int) {
	c.queueWrites.WithLabelValues(kind).Add(float64(count))
}

// RecordDuplicate は重複と判定された候補を記録する。
func (c *Collector) RecordDuplicate(kind string) {
	c.duplicates.WithLabelValues(kind).Inc()
}

// RecordFetch はフェッチ結果を記録する。
func (c *Collector) RecordFetch(outcome string) {
	c.fetches.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordDetailFetch は詳細ページ取得の結果を記録する。
func (c *Collector) RecordDetailFetch(outcome string) {
	c.detail.WithLabelValues(outcome).Inc()
}

// RecordRunDuration は実行全体の所要時間を記録する。
func (c *Collector) RecordRunDuration(duration time.Duration) {
	c.runDuration.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordSourceHealth(string) {}
func (Nop) RecordCandidates(string, int) {}
func (Nop) RecordDisposition(string) {}
func (Nop) RecordQueueWrites(string, int) {}
func (Nop) RecordDuplicate(string) {}
func (Nop) RecordFetch(string) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordFetchLatency(time.Duration) {}
func (Nop) RecordDetailFetch(string) {}
func (Nop) RecordRunDuration(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// WriteTextfile はバッチ実行後のメトリクスをnode_exporterのtextfile形式で書き出す。
func WriteTextfile(gatherer prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("メトリクスファイルの書き出しに失敗: %w", err)
	}
	return nil
}
