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
// ハンドラーや上流APIクライアントから利用する。
type MetricsCollector interface {
	RecordLogin(method, outcome string)
	RecordHandshake(result string)
	RecordLinkDecision(result string)
	RecordUpstreamRequest(operation string, statusCode int, duration time.Duration)
	RecordBreakerState(name string, state BreakerState)
	RecordSessionsCleaned(count int64)
}

// BreakerState はサーキットブレーカーの状態をゲージ値として表す。
type BreakerState float64

const (
	BreakerClosed   BreakerState = 0
	BreakerHalfOpen BreakerState = 1
	BreakerOpen     BreakerState = 2
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins          *prometheus.CounterVec
	handshakes      *prometheus.CounterVec
	linkDecisions   *prometheus.CounterVec
	upstreamStatus  *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "myftc_login_total",
			Help: "ログイン試行の合計数（方法・結果別）",
		}, []string{"method", "outcome"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "myftc_oauth_handshake_total",
			Help: "Wechat認可コールバックの検証結果別の合計数",
		}, []string{"result"}),
		linkDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "myftc_link_decision_total",
			Help: "アカウント連携判定の結果別の合計数",
		}, []string{"result"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "myftc_upstream_requests_total",
			Help: "上流API呼び出しの操作・ステータスコード別の合計数",
		}, []string{"operation", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "myftc_upstream_latency_seconds",
			Help:    "上流API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "myftc_circuit_breaker_state",
			Help: "サーキットブレーカーの状態（0=closed, 1=half-open, 2=open）",
		}, []string{"name"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "myftc_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.handshakes,
		c.linkDecisions,
		c.upstreamStatus,
		c.upstreamLatency,
		c.breakerState,
		c.sessionsCleaned,
	)

	return c
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(method, outcome string) {
	c.logins.WithLabelValues(method, outcome).Inc()
}

// RecordHandshake はWechat認可コールバックの検証結果を記録する。
func (c *Collector) RecordHandshake(result string) {
	c.handshakes.WithLabelValues(result).Inc()
}

// RecordLinkDecision はアカウント連携判定の結果を記録する。
func (c *Collector) RecordLinkDecision(result string) {
	c.linkDecisions.WithLabelValues(result).Inc()
}

// RecordUpstreamRequest は上流API呼び出しを記録する。
// 通信エラーでレスポンスがない場合、statusCodeは0。
func (c *Collector) RecordUpstreamRequest(operation string, statusCode int, duration time.Duration) {
	c.upstreamStatus.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBreakerState はサーキットブレーカーの状態を記録する。
func (c *Collector) RecordBreakerState(name string, state BreakerState) {
	c.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
