// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mivir/steamgate/internal/auth"
	"github.com/mivir/steamgate/internal/middleware"
	"github.com/mivir/steamgate/internal/model"
)

// BridgeServiceInterface は認証ハンドラーが必要とするブリッジ操作のインターフェース。
type BridgeServiceInterface interface {
	ResolveCurrentAccount(ctx context.Context, sess auth.Carrier, cookie auth.CookieCarrier) (string, error)
	Login(ctx context.Context, externalID string, sess auth.Carrier, cookie auth.CookieCarrier) (string, error)
	Register(ctx context.Context, externalID string) (string, error)
	Logout(sess auth.Carrier, cookie auth.CookieCarrier)
	RevokeEverywhere(ctx context.Context, accountID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL string
	Carrier CarrierConfig
	// StayLoggedMaxAge はログイン維持設定Cookieの有効期間（秒）。
	StayLoggedMaxAge int
}

// AuthHandler はSteam OpenID認証関連のHTTPハンドラー。
type AuthHandler struct {
	bridge   BridgeServiceInterface
	provider auth.IdentityProvider
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(bridge BridgeServiceInterface, provider auth.IdentityProvider, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		bridge:   bridge,
		provider: provider,
		config:   config,
	}
}

// carriers はリクエストごとのキャリアの組を構築する。
func (h *AuthHandler) carriers(w http.ResponseWriter, r *http.Request) (auth.Carrier, auth.CookieCarrier) {
	return newSessionCarrier(w, r, h.config.Carrier), newCookieCarrier(w, r, h.config.Carrier)
}

// Login はSteam OpenIDフローを開始する。
// GET /auth/steam/login?stay=1
//
// stay=1が指定された場合はログイン維持設定Cookieを立てる。
// 以後のトークンリフレッシュで永続Cookie側も更新されるようになる。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stay") == "1" {
		http.SetCookie(w, &http.Cookie{
			Name:     stayLoggedCookieName,
			Value:    "1",
			Path:     "/",
			Domain:   h.config.Carrier.CookieDomain,
			MaxAge:   h.config.StayLoggedMaxAge,
			HttpOnly: true,
			Secure:   h.config.Carrier.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	} else {
		// 維持設定はフローの開始ごとに明示する。前回の設定は持ち越さない
		http.SetCookie(w, &http.Cookie{
			Name:     stayLoggedCookieName,
			Value:    "",
			Path:     "/",
			Domain:   h.config.Carrier.CookieDomain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.config.Carrier.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	returnURL := h.config.BaseURL + "/auth/steam/callback"
	http.Redirect(w, r, h.provider.GetLoginURL(returnURL), http.StatusTemporaryRedirect)
}

// Callback はSteam OpenIDのコールバックを処理する。
// GET /auth/steam/callback?openid.mode=id_res&...
//
// プロバイダーの検証に成功した識別子でログインする。未登録の識別子は
// その場で登録してからログインする。成功・失敗どちらでもフロントエンドへ
// リダイレクトする（検証失敗はログインしていない状態に戻るだけ）。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	steamID, err := h.provider.VerifyCallback(r.Context(), r.URL.Query())
	if err != nil {
		if errors.Is(err, model.ErrIdentityNotVerified) {
			slog.Warn("steam identity verification rejected")
			http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
			return
		}
		slog.Error("steam callback verification failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	sess, cookie := h.carriers(w, r)

	_, err = h.bridge.Login(r.Context(), steamID, sess, cookie)
	if errors.Is(err, model.ErrAccountNotFound) {
		// 初回ログイン: 登録してからログインし直す
		if _, regErr := h.bridge.Register(r.Context(), steamID); regErr != nil && !errors.Is(regErr, model.ErrDuplicateIdentifier) {
			slog.Error("registration failed", slog.String("error", regErr.Error()))
			middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.ErrRegistrationFailed)
			return
		}
		_, err = h.bridge.Login(r.Context(), steamID, sess, cookie)
	}
	if err != nil {
		slog.Error("login failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はこのブラウザのログイン状態を解除する。
// POST /auth/logout
//
// キャリア上のトークンを除去するだけで、保存済みトークン自体は失効しない。
// 他の端末のログインは維持される。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, cookie := h.carriers(w, r)
	h.bridge.Logout(sess, cookie)
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Me は現在ログイン中のアカウント情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, cookie := h.carriers(w, r)

	accountID, err := h.bridge.ResolveCurrentAccount(r.Context(), sess, cookie)
	if err != nil {
		slog.Error("failed to resolve current account", slog.String("error", err.Error()))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if accountID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id": accountID,
	})
}

// Revoke は全端末のログインを失効させる。
// POST /auth/revoke
//
// セッションミドルウェアを通過した認証済みリクエストでのみ使用できる。
// 保存済みトークンを破棄したうえで、このブラウザのキャリアも掃除する。
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.bridge.RevokeEverywhere(r.Context(), accountID); err != nil {
		slog.Error("failed to revoke login token", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	sess, cookie := h.carriers(w, r)
	h.bridge.Logout(sess, cookie)

	w.WriteHeader(http.StatusNoContent)
}
