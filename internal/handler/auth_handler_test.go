package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mivir/steamgate/internal/auth"
	"github.com/mivir/steamgate/internal/middleware"
	"github.com/mivir/steamgate/internal/model"
)

// --- モック定義 ---

type mockBridgeService struct {
	resolveFn  func(ctx context.Context, sess auth.Carrier, cookie auth.CookieCarrier) (string, error)
	loginFn    func(ctx context.Context, externalID string, sess auth.Carrier, cookie auth.CookieCarrier) (string, error)
	registerFn func(ctx context.Context, externalID string) (string, error)
	logoutFn   func(sess auth.Carrier, cookie auth.CookieCarrier)
	revokeFn   func(ctx context.Context, accountID string) error
}

func (m *mockBridgeService) ResolveCurrentAccount(ctx context.Context, sess auth.Carrier, cookie auth.CookieCarrier) (string, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, sess, cookie)
	}
	return "", nil
}

func (m *mockBridgeService) Login(ctx context.Context, externalID string, sess auth.Carrier, cookie auth.CookieCarrier) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, externalID, sess, cookie)
	}
	return "", nil
}

func (m *mockBridgeService) Register(ctx context.Context, externalID string) (string, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, externalID)
	}
	return "", nil
}

func (m *mockBridgeService) Logout(sess auth.Carrier, cookie auth.CookieCarrier) {
	if m.logoutFn != nil {
		m.logoutFn(sess, cookie)
	}
}

func (m *mockBridgeService) RevokeEverywhere(ctx context.Context, accountID string) error {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, accountID)
	}
	return nil
}

type mockProvider struct {
	getLoginURLFn    func(returnURL string) string
	verifyCallbackFn func(ctx context.Context, query url.Values) (string, error)
}

func (m *mockProvider) GetLoginURL(returnURL string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(returnURL)
	}
	return ""
}

func (m *mockProvider) VerifyCallback(ctx context.Context, query url.Values) (string, error) {
	if m.verifyCallbackFn != nil {
		return m.verifyCallbackFn(ctx, query)
	}
	return "", nil
}

// compile-time interface checks
var (
	_ BridgeServiceInterface = (*mockBridgeService)(nil)
	_ auth.IdentityProvider  = (*mockProvider)(nil)
)

func testConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		BaseURL:          "http://localhost:3000",
		Carrier:          CarrierConfig{CookieMaxAge: 2592000},
		StayLoggedMaxAge: 2592000,
	}
}

// findCookie はレスポンスのSet-Cookieから指定名の最後のCookieを返す。
func findCookie(resp *http.Response, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

// --- テスト ---

func TestAuthHandler_Login_RedirectsToSteam(t *testing.T) {
	provider := &mockProvider{
		getLoginURLFn: func(returnURL string) string {
			return "https://steamcommunity.com/openid/login?openid.return_to=" + url.QueryEscape(returnURL)
		},
	}
	h := NewAuthHandler(&mockBridgeService{}, provider, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/steam/login", nil)
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	location := resp.Header.Get("Location")
	if !strings.Contains(location, "steamcommunity.com") {
		t.Errorf("Location = %q, should contain steam openid URL", location)
	}
	if !strings.Contains(location, url.QueryEscape("http://localhost:3000/auth/steam/callback")) {
		t.Errorf("Location = %q, should contain return URL", location)
	}
}

func TestAuthHandler_Login_StayFlag_SetsPreferenceCookie(t *testing.T) {
	h := NewAuthHandler(&mockBridgeService{}, &mockProvider{}, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/steam/login?stay=1", nil)
	w := httptest.NewRecorder()

	h.Login(w, req)

	cookie := findCookie(w.Result(), stayLoggedCookieName)
	if cookie == nil {
		t.Fatal("expected stay_logged cookie to be set")
	}
	if cookie.Value != "1" {
		t.Errorf("stay_logged = %q, want %q", cookie.Value, "1")
	}
	if cookie.MaxAge <= 0 {
		t.Errorf("stay_logged MaxAge = %d, want positive", cookie.MaxAge)
	}
}

func TestAuthHandler_Login_WithoutStayFlag_ClearsPreferenceCookie(t *testing.T) {
	h := NewAuthHandler(&mockBridgeService{}, &mockProvider{}, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/steam/login", nil)
	req.AddCookie(&http.Cookie{Name: stayLoggedCookieName, Value: "1"})
	w := httptest.NewRecorder()

	h.Login(w, req)

	cookie := findCookie(w.Result(), stayLoggedCookieName)
	if cookie == nil {
		t.Fatal("expected stay_logged cookie to be cleared")
	}
	if cookie.MaxAge != -1 {
		t.Errorf("stay_logged MaxAge = %d, want -1", cookie.MaxAge)
	}
}

func TestAuthHandler_Callback_KnownAccount_LogsInAndRedirects(t *testing.T) {
	provider := &mockProvider{
		verifyCallbackFn: func(ctx context.Context, query url.Values) (string, error) {
			return "76561197960287930", nil
		},
	}
	var loggedIn string
	bridge := &mockBridgeService{
		loginFn: func(ctx context.Context, externalID string, sess auth.Carrier, cookie auth.CookieCarrier) (string, error) {
			loggedIn = externalID
			sess.Put("login_token", "tok123")
			cookie.Put("login_token", "tok123")
			return "account-1", nil
		},
	}
	h := NewAuthHandler(bridge, provider, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/steam/callback?openid.mode=id_res", nil)
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if resp.Header.Get("Location") != "http://localhost:3000" {
		t.Errorf("Location = %q, want base URL", resp.Header.Get("Location"))
	}
	if loggedIn != "76561197960287930" {
		t.Errorf("logged in externalID = %q, want steam64", loggedIn)
	}

	// セッション側・永続側の両方のCookieが設定されること
	if c := findCookie(resp, "login_token_sess"); c == nil || c.Value != "tok123" {
		t.Error("expected session-scoped login_token cookie")
	}
	if c := findCookie(resp, "login_token"); c == nil || c.Value != "tok123" {
		t.Error("expected persistent login_token cookie")
	}
}

func TestAuthHandler_Callback_UnknownAccount_RegistersThenLogsIn(t *testing.T) {
	provider := &mockProvider{
		verifyCallbackFn: func(ctx context.Context, query url.Values) (string, error) {
			return "76561197960287930", nil
		},
	}
	registered := false
	loginCalls := 0
	bridge := &mockBridgeService{
		loginFn: func(ctx context.Context, externalID string, sess auth.Carrier, cookie auth.CookieCarrier) (string, error) {
			loginCalls++
			if !registered {
				return "", model.ErrAccountNotFound
			}
			return "account-new", nil
		},
		registerFn: func(ctx context.Context, externalID string) (string, error) {
			registered = true
			return "account-new", nil
		},
	}
	h := NewAuthHandler(bridge, provider, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/steam/callback?openid.mode=id_res", nil)
	w := httptest.NewRecorder()

	h.Callback(w, req)

	if w.Result().StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want redirect", w.Result().StatusCode)
	}
	if !registered {
		t.Error("expected account to be registered")
	}
	if loginCalls != 2 {
		t.Errorf("login calls = %d, want 2", loginCalls)
	}
}

func TestAuthHandler_Callback_VerificationRejected_RedirectsWithoutLogin(t *testing.T) {
	provider := &mockProvider{
		verifyCallbackFn: func(ctx context.Context, query url.Values) (string, error) {
			return "", model.ErrIdentityNotVerified
		},
	}
	loginCalled := false
	bridge := &mockBridgeService{
		loginFn: func(ctx context.Context, externalID string, sess auth.Carrier, cookie auth.CookieCarrier) (string, error) {
			loginCalled = true
			return "", nil
		},
	}
	h := NewAuthHandler(bridge, provider, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/steam/callback?openid.mode=id_res", nil)
	w := httptest.NewRecorder()

	h.Callback(w, req)

	if w.Result().StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want redirect", w.Result().StatusCode)
	}
	if loginCalled {
		t.Error("login should not be attempted for rejected identity")
	}
}

func TestAuthHandler_Callback_ProviderError_Returns500(t *testing.T) {
	provider := &mockProvider{
		verifyCallbackFn: func(ctx context.Context, query url.Values) (string, error) {
			return "", errors.New("provider unreachable")
		},
	}
	h := NewAuthHandler(&mockBridgeService{}, provider, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/steam/callback?openid.mode=id_res", nil)
	w := httptest.NewRecorder()

	h.Callback(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Result().StatusCode)
	}
}

func TestAuthHandler_Logout_ClearsCarriersAndRedirects(t *testing.T) {
	logoutCalled := false
	bridge := &mockBridgeService{
		logoutFn: func(sess auth.Carrier, cookie auth.CookieCarrier) {
			logoutCalled = true
			sess.Forget("login_token")
			cookie.Forget("login_token")
		},
	}
	h := NewAuthHandler(bridge, &mockProvider{}, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "login_token_sess", Value: "tok"})
	req.AddCookie(&http.Cookie{Name: "login_token", Value: "tok"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want redirect", resp.StatusCode)
	}
	if !logoutCalled {
		t.Error("expected bridge logout to be called")
	}

	// 両方のCookieが期限切れになること
	if c := findCookie(resp, "login_token_sess"); c == nil || c.MaxAge != -1 {
		t.Error("expected session cookie to be expired")
	}
	if c := findCookie(resp, "login_token"); c == nil || c.MaxAge != -1 {
		t.Error("expected persistent cookie to be expired")
	}
}

func TestAuthHandler_Me_Authenticated_ReturnsAccountID(t *testing.T) {
	bridge := &mockBridgeService{
		resolveFn: func(ctx context.Context, sess auth.Carrier, cookie auth.CookieCarrier) (string, error) {
			return "account-42", nil
		},
	}
	h := NewAuthHandler(bridge, &mockProvider{}, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["id"] != "account-42" {
		t.Errorf("id = %q, want %q", body["id"], "account-42")
	}
}

func TestAuthHandler_Me_NotAuthenticated_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockBridgeService{}, &mockProvider{}, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestAuthHandler_Revoke_RevokesAndClearsCarriers(t *testing.T) {
	var revokedID string
	logoutCalled := false
	bridge := &mockBridgeService{
		revokeFn: func(ctx context.Context, accountID string) error {
			revokedID = accountID
			return nil
		},
		logoutFn: func(sess auth.Carrier, cookie auth.CookieCarrier) {
			logoutCalled = true
		},
	}
	h := NewAuthHandler(bridge, &mockProvider{}, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/revoke", nil)
	req = req.WithContext(middleware.ContextWithAccountID(req.Context(), "account-7"))
	w := httptest.NewRecorder()

	h.Revoke(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Result().StatusCode)
	}
	if revokedID != "account-7" {
		t.Errorf("revoked account = %q, want %q", revokedID, "account-7")
	}
	if !logoutCalled {
		t.Error("expected carriers to be cleared after revoke")
	}
}

func TestAuthHandler_Revoke_WithoutSession_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockBridgeService{}, &mockProvider{}, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/revoke", nil)
	w := httptest.NewRecorder()

	h.Revoke(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestAuthHandler_Revoke_StorageError_Returns500(t *testing.T) {
	bridge := &mockBridgeService{
		revokeFn: func(ctx context.Context, accountID string) error {
			return errors.New("db down")
		},
	}
	h := NewAuthHandler(bridge, &mockProvider{}, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/revoke", nil)
	req = req.WithContext(middleware.ContextWithAccountID(req.Context(), "account-7"))
	w := httptest.NewRecorder()

	h.Revoke(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Result().StatusCode)
	}
}
