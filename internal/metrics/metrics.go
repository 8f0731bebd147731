// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は認証ブリッジのPrometheusメトリクスを収集する。
// auth.Recorderインターフェースを実装する。
type Collector struct {
	loginSuccess      prometheus.Counter
	loginFail         prometheus.Counter
	registrations     prometheus.Counter
	staleTokenCleared prometheus.Counter
	tokenRetries      prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steamgate_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steamgate_login_fail_total",
			Help: "ログイン失敗（未登録識別子）の合計数",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steamgate_registrations_total",
			Help: "アカウント登録の合計数",
		}),
		staleTokenCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steamgate_stale_tokens_cleared_total",
			Help: "セッション解決時に掃除された失効トークンの合計数",
		}),
		tokenRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steamgate_token_retries_total",
			Help: "一意制約衝突によるトークン再生成の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.registrations,
		c.staleTokenCleared,
		c.tokenRetries,
		c.httpStatus,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFail.Inc()
}

// RecordRegistration はアカウント登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordStaleTokenCleared は失効トークンの掃除を記録する。
func (c *Collector) RecordStaleTokenCleared() {
	c.staleTokenCleared.Inc()
}

// RecordTokenRetry はトークン再生成を記録する。
func (c *Collector) RecordTokenRetry() {
	c.tokenRetries.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
