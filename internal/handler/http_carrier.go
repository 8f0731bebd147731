package handler

import (
	"net/http"

	"github.com/mivir/steamgate/internal/auth"
)

// stayLoggedCookieName はログイン維持設定を保持するCookieの名前。
const stayLoggedCookieName = "stay_logged"

// CarrierConfig はHTTPキャリアのCookie属性設定。
type CarrierConfig struct {
	CookieDomain string
	CookieSecure bool
	// CookieMaxAge は永続Cookie側の有効期間（秒）。
	CookieMaxAge int
}

// httpCarrier はHTTPリクエスト/レスポンスのCookieを使ったキャリア実装。
//
// セッションキャリアはMax-Ageなし（ブラウザセッション限り）のCookie、
// 永続CookieキャリアはMax-Age付きのCookieとして書き込む。
// 同一リクエスト内でのPut/Forgetは保留中の書き込みとして記録し、
// 後続のGetから見えるようにする（リクエストCookieより優先）。
type httpCarrier struct {
	r      *http.Request
	w      http.ResponseWriter
	config CarrierConfig

	// persistent がtrueの場合はMax-Age付きCookieとして書き込む
	persistent bool

	// pending は同一リクエスト内の書き込み。nilはForgetの墓標を表す。
	pending map[string]*string
}

// newSessionCarrier はブラウザセッション限りのCookieを使うキャリアを生成する。
func newSessionCarrier(w http.ResponseWriter, r *http.Request, config CarrierConfig) *httpCarrier {
	return &httpCarrier{r: r, w: w, config: config, pending: make(map[string]*string)}
}

// newCookieCarrier は永続Cookieを使うキャリアを生成する。
func newCookieCarrier(w http.ResponseWriter, r *http.Request, config CarrierConfig) *httpCarrier {
	return &httpCarrier{r: r, w: w, config: config, persistent: true, pending: make(map[string]*string)}
}

// cookieName はキャリア系統ごとに名前空間を分ける。
// セッション側と永続側が同じ論理名を別のCookieとして保持するため。
func (c *httpCarrier) cookieName(name string) string {
	if c.persistent {
		return name
	}
	return name + "_sess"
}

// Get は指定名の値を返す。同一リクエスト内の書き込みが最優先。
func (c *httpCarrier) Get(name string) string {
	if v, ok := c.pending[name]; ok {
		if v == nil {
			return ""
		}
		return *v
	}

	cookie, err := c.r.Cookie(c.cookieName(name))
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Put は指定名に値を書き込み、Set-Cookieヘッダーを発行する。
func (c *httpCarrier) Put(name, value string) {
	c.pending[name] = &value

	cookie := &http.Cookie{
		Name:     c.cookieName(name),
		Value:    value,
		Path:     "/",
		Domain:   c.config.CookieDomain,
		HttpOnly: true,
		Secure:   c.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if c.persistent {
		cookie.MaxAge = c.config.CookieMaxAge
	}
	http.SetCookie(c.w, cookie)
}

// Forget は指定名の値を削除し、期限切れのSet-Cookieヘッダーを発行する。
func (c *httpCarrier) Forget(name string) {
	c.pending[name] = nil

	http.SetCookie(c.w, &http.Cookie{
		Name:     c.cookieName(name),
		Value:    "",
		Path:     "/",
		Domain:   c.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// StayLoggedIn はログイン維持設定Cookieの有無を返す。
func (c *httpCarrier) StayLoggedIn() bool {
	cookie, err := c.r.Cookie(stayLoggedCookieName)
	return err == nil && cookie.Value != ""
}

// NewCarrierFactory はリクエストごとにセッション/永続Cookieキャリアの組を
// 構築するファクトリを返す。ミドルウェアとハンドラーで共用する。
func NewCarrierFactory(config CarrierConfig) func(w http.ResponseWriter, r *http.Request) (auth.Carrier, auth.CookieCarrier) {
	return func(w http.ResponseWriter, r *http.Request) (auth.Carrier, auth.CookieCarrier) {
		return newSessionCarrier(w, r, config), newCookieCarrier(w, r, config)
	}
}

// compile-time interface checks
var (
	_ auth.Carrier       = (*httpCarrier)(nil)
	_ auth.CookieCarrier = (*httpCarrier)(nil)
)
