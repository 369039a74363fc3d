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
// 取り込みパイプライン、復習、ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordIngestion(kind, outcome string)
	RecordRecognitionLatency(kind string, duration time.Duration)
	RecordRecognitionFailure(kind, reason string)
	RecordUploadedBytes(size int64)
	RecordReview(correct bool)
	RecordCleanup(job string, removed int)
	RecordHTTPStatus(statusCode int)
}

// 取り込み結果のラベル値。
const (
	OutcomeAnonymous     = "anonymous"
	OutcomeSaved         = "saved"
	OutcomeQuotaExceeded = "quota_exceeded"
	OutcomeStorageError  = "storage_error"
	OutcomeFailed        = "failed"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	ingestions         *prometheus.CounterVec
	recognitionLatency *prometheus.HistogramVec
	recognitionFail    *prometheus.CounterVec
	uploadedBytes      prometheus.Counter
	reviews            *prometheus.CounterVec
	cleanupRemoved     *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocalearn_ingestions_total",
			Help: "種別・結果別の取り込み件数",
		}, []string{"kind", "outcome"}),
		recognitionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vocalearn_recognition_latency_seconds",
			Help:    "音声認識・発音評価のレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"kind"}),
		recognitionFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocalearn_recognition_fail_total",
			Help: "理由別の音声認識失敗数",
		}, []string{"kind", "reason"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vocalearn_uploaded_bytes_total",
			Help: "保存した音声の合計バイト数",
		}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocalearn_reviews_total",
			Help: "正誤別の復習記録数",
		}, []string{"correct"}),
		cleanupRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocalearn_cleanup_removed_total",
			Help: "クリーンアップジョブが処理した件数",
		}, []string{"job"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocalearn_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.ingestions,
		c.recognitionLatency,
		c.recognitionFail,
		c.uploadedBytes,
		c.reviews,
		c.cleanupRemoved,
		c.httpStatus,
	)

	return c
}

// RecordIngestion は取り込み1件の結果を記録する。
func (c *Collector) RecordIngestion(kind, outcome string) {
	c.ingestions.WithLabelValues(kind, outcome).Inc()
}

// RecordRecognitionLatency は認識セッションの所要時間を記録する。
func (c *Collector) RecordRecognitionLatency(kind string, duration time.Duration) {
	c.recognitionLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordRecognitionFailure は認識失敗を記録する。
func (c *Collector) RecordRecognitionFailure(kind, reason string) {
	c.recognitionFail.WithLabelValues(kind, reason).Inc()
}

// RecordUploadedBytes は保存した音声のサイズを記録する。
func (c *Collector) RecordUploadedBytes(size int64) {
	c.uploadedBytes.Add(float64(size))
}

// RecordReview は復習記録を記録する。
func (c *Collector) RecordReview(correct bool) {
	c.reviews.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

// RecordCleanup はクリーンアップジョブの処理件数を記録する。
func (c *Collector) RecordCleanup(job string, removed int) {
	c.cleanupRemoved.WithLabelValues(job).Add(float64(removed))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordIngestion(string, string) {}
func (Nop) RecordRecognitionLatency(string, time.Duration) {}
func (Nop) RecordRecognitionFailure(string, string) {}
func (Nop) RecordUploadedBytes(int64) {}
func (Nop) RecordReview(bool) {}
func (Nop) RecordCleanup(string, int) {}
func (Nop) RecordHTTPStatus(int) {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
