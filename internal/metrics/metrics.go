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
// 認証ゲート、リアルタイム通知、ハンドラー層から利用する。
type MetricsCollector interface {
	RecordSignIn(outcome string)
	RecordGateDecision(outcome string)
	RecordGateTransition(kind string)
	RecordProfileFetchLatency(duration time.Duration)
	SetActiveGateStores(n int)
	RecordRealtimeNotification(event string)
	SetNewOrderBadge(count int)
	RecordHTTPStatus(statusCode int)
	RecordDeriveLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn              *prometheus.CounterVec
	gateDecision        *prometheus.CounterVec
	gateTransition      *prometheus.CounterVec
	profileFetchLatency prometheus.Histogram
	activeGateStores    prometheus.Gauge
	realtimeNotify      *prometheus.CounterVec
	newOrderBadge       prometheus.Gauge
	httpStatus          *prometheus.CounterVec
	deriveLatency       prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_sign_in_total",
			Help: "サインイン試行の結果別の合計数",
		}, []string{"outcome"}),
		gateDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_gate_decisions_total",
			Help: "認証ゲートの判定結果別の合計数",
		}, []string{"outcome"}),
		gateTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_gate_transitions_total",
			Help: "認証状態の遷移種別ごとの合計数",
		}, []string{"kind"}),
		profileFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "servicedesk_profile_fetch_latency_seconds",
			Help:    "プロフィール取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		activeGateStores: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "servicedesk_gate_active_sessions",
			Help: "メモリ上に保持している認証状態の数",
		}),
		realtimeNotify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_realtime_notifications_total",
			Help: "受信した変更通知のイベント種別ごとの合計数",
		}, []string{"event"}),
		newOrderBadge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "servicedesk_new_orders",
			Help: "ステータスNewのサービスオーダー件数（最新の再集計値）",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		deriveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "servicedesk_customer_view_derive_seconds",
			Help:    "顧客一覧の派生ビュー計算時間（秒）",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.gateDecision,
		c.gateTransition,
		c.profileFetchLatency,
		c.activeGateStores,
		c.realtimeNotify,
		c.newOrderBadge,
		c.httpStatus,
		c.deriveLatency,
	)

	return c
}

// RecordSignIn はサインイン結果を記録する。
func (c *Collector) RecordSignIn(outcome string) {
	c.signIn.WithLabelValues(outcome).Inc()
}

// RecordGateDecision はゲート判定結果を記録する。
func (c *Collector) RecordGateDecision(outcome string) {
	c.gateDecision.WithLabelValues(outcome).Inc()
}

// RecordGateTransition は認証状態の遷移を記録する。
func (c *Collector) RecordGateTransition(kind string) {
	c.gateTransition.WithLabelValues(kind).Inc()
}

// RecordProfileFetchLatency はプロフィール取得のレイテンシを記録する。
func (c *Collector) RecordProfileFetchLatency(duration time.Duration) {
	c.profileFetchLatency.Observe(duration.Seconds())
}

// SetActiveGateStores は保持中の認証状態数を設定する。
func (c *Collector) SetActiveGateStores(n int) {
	c.activeGateStores.Set(float64(n))
}

// RecordRealtimeNotification は変更通知の受信を記録する。
func (c *Collector) RecordRealtimeNotification(event string) {
	c.realtimeNotify.WithLabelValues(event).Inc()
}

// SetNewOrderBadge はバッジ件数を設定する。
func (c *Collector) SetNewOrderBadge(count int) {
	c.newOrderBadge.Set(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordDeriveLatency は派生ビュー計算時間を記録する。
func (c *Collector) RecordDeriveLatency(duration time.Duration) {
	c.deriveLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
