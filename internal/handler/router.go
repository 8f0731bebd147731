package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mivir/steamgate/internal/auth"
	"github.com/mivir/steamgate/internal/metrics"
	"github.com/mivir/steamgate/internal/middleware"
)

// HealthChecker はヘルスチェックのための疎通確認インターフェース。
// *sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	HealthChecker     HealthChecker
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder
	Gatherer          prometheus.Gatherer

	// セッション解決
	AccountResolver middleware.AccountResolver

	// 認証ブリッジ
	BridgeService BridgeServiceInterface
	Provider      auth.IdentityProvider
	AuthConfig    AuthHandlerConfig
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成した
// chi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics
//
// ログインフロー（/auth/steam/*）はIP単位のレート制限、
// 認証必須ルート（/auth/revoke）はセッション解決とアカウント単位の
// レート制限を追加で通す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}

	authHandler := NewAuthHandler(deps.BridgeService, deps.Provider, deps.AuthConfig)
	carriers := NewCarrierFactory(deps.AuthConfig.Carrier)

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.AuthConfig.Carrier.CookieSecure,
		CookieDomain: deps.AuthConfig.Carrier.CookieDomain,
	}

	// --- 運用エンドポイント ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証ルート ---

	r.Route("/auth", func(r chi.Router) {
		// CSRFトークン取得（フロントエンドが状態変更リクエスト前に呼ぶ）
		r.Method(http.MethodGet, "/csrf", middleware.NewCSRFTokenHandler(csrfConfig))

		// Steam OpenIDフロー（未認証のためIP単位でレート制限）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.LoginMiddleware())
			r.Get("/steam/login", authHandler.Login)
			r.Get("/steam/callback", authHandler.Callback)
		})

		// セッション管理（状態変更はCSRF検証を通す）
		r.With(middleware.NewCSRFMiddleware(csrfConfig)).Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)

		// 全端末ログアウト（認証必須）
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.AccountResolver, middleware.CarrierFactory(carriers)))
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(middleware.NewCSRFMiddleware(csrfConfig))
			r.Post("/revoke", authHandler.Revoke)
		})
	})

	return r
}
