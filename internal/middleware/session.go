// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mivir/steamgate/internal/auth"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// accountIDContextKey はリクエストコンテキストにアカウントIDを格納するためのキー。
var accountIDContextKey = contextKey("account_id")

// AccountResolver は現在のセッションをアカウントIDに解決するインターフェース。
// auth.Serviceの部分集合として定義する。
type AccountResolver interface {
	ResolveCurrentAccount(ctx context.Context, sess auth.Carrier, cookie auth.CookieCarrier) (string, error)
}

// CarrierFactory はHTTPリクエスト/レスポンスからキャリアの組を構築する。
// handler層のHTTPキャリア実装を注入する。
type CarrierFactory func(w http.ResponseWriter, r *http.Request) (auth.Carrier, auth.CookieCarrier)

// NewSessionMiddleware はキャリアからセッショントークンを読み取り、
// 所有アカウントを解決するミドルウェアを返す。
// 解決できたアカウントIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
// 失効トークンの掃除とトークンのリフレッシュはブリッジ側で行われる。
func NewSessionMiddleware(resolver AccountResolver, carriers CarrierFactory) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, cookie := carriers(w, r)

			accountID, err := resolver.ResolveCurrentAccount(r.Context(), sess, cookie)
			if err != nil {
				slog.Error("failed to resolve current account",
					slog.String("error", err.Error()),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if accountID == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), accountIDContextKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountIDFromContext はリクエストコンテキストからアカウントIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func AccountIDFromContext(ctx context.Context) (string, error) {
	accountID, ok := ctx.Value(accountIDContextKey).(string)
	if !ok || accountID == "" {
		return "", fmt.Errorf("account ID not found in context")
	}
	return accountID, nil
}

// ContextWithAccountID はコンテキストにアカウントIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDContextKey, accountID)
}
