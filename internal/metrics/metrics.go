// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 受講登録の経路
const (
	EnrollmentSourceAuto   = "auto"
	EnrollmentSourceManual = "manual"
)

// ログインの種別
const (
	LoginKindEmployee = "employee"
	LoginKindAdmin    = "admin"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアとハンドラー層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordLogin(kind string, success bool)
	RecordRegistration()
	RecordEnrollments(source string, count int)
	RecordTokenRejection(reason string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	logins          *prometheus.CounterVec
	registrations   prometheus.Counter
	enrollments     *prometheus.CounterVec
	tokenRejections *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_http_requests_total",
			Help: "ルート・メソッド・ステータス別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "learnhub_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_logins_total",
			Help: "ログイン試行数",
		}, []string{"kind", "result"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "learnhub_registrations_total",
			Help: "従業員登録の合計数",
		}),
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_enrollments_total",
			Help: "経路別の受講登録数",
		}, []string{"source"}),
		tokenRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_token_rejections_total",
			Help: "認証ゲートで拒否されたリクエスト数",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.logins,
		c.registrations,
		c.enrollments,
		c.tokenRejections,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの結果と処理時間を記録する。
// routeにはchiのルートパターンを渡し、IDによるラベル爆発を避ける。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(kind string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(kind, result).Inc()
}

// RecordRegistration は従業員登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordEnrollments は受講登録数を記録する。
func (c *Collector) RecordEnrollments(source string, count int) {
	if count <= 0 {
		return
	}
	c.enrollments.WithLabelValues(source).Add(float64(count))
}

// RecordTokenRejection は認証ゲートでの拒否理由を記録する。
func (c *Collector) RecordTokenRejection(reason string) {
	c.tokenRejections.WithLabelValues(reason).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordHTTPRequest(string, string, int, time.Duration) {}
func (NopCollector) RecordLogin(string, bool)                             {}
func (NopCollector) RecordRegistration()                                  {}
func (NopCollector) RecordEnrollments(string, int)                        {}
func (NopCollector) RecordTokenRejection(string)                          {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
