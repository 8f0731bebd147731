package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPCarrier_Get_ReadsRequestCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "login_token_sess", Value: "sess-value"})
	req.AddCookie(&http.Cookie{Name: "login_token", Value: "persist-value"})
	w := httptest.NewRecorder()

	sess := newSessionCarrier(w, req, CarrierConfig{})
	cookie := newCookieCarrier(w, req, CarrierConfig{})

	if got := sess.Get("login_token"); got != "sess-value" {
		t.Errorf("session Get = %q, want %q", got, "sess-value")
	}
	if got := cookie.Get("login_token"); got != "persist-value" {
		t.Errorf("cookie Get = %q, want %q", got, "persist-value")
	}
}

func TestHTTPCarrier_Put_VisibleToSameRequestGet(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	sess := newSessionCarrier(w, req, CarrierConfig{})
	sess.Put("login_token", "fresh")

	if got := sess.Get("login_token"); got != "fresh" {
		t.Errorf("Get after Put = %q, want %q", got, "fresh")
	}
}

func TestHTTPCarrier_Put_SessionCookieHasNoMaxAge(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	sess := newSessionCarrier(w, req, CarrierConfig{})
	sess.Put("login_token", "v")

	cookie := findCookie(w.Result(), "login_token_sess")
	if cookie == nil {
		t.Fatal("expected login_token_sess cookie")
	}
	if cookie.MaxAge != 0 {
		t.Errorf("session cookie MaxAge = %d, want 0 (browser session)", cookie.MaxAge)
	}
	if !cookie.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Error("cookie should be SameSite=Lax")
	}
}

func TestHTTPCarrier_Put_PersistentCookieHasMaxAge(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	cc := newCookieCarrier(w, req, CarrierConfig{CookieMaxAge: 2592000})
	cc.Put("login_token", "v")

	cookie := findCookie(w.Result(), "login_token")
	if cookie == nil {
		t.Fatal("expected login_token cookie")
	}
	if cookie.MaxAge != 2592000 {
		t.Errorf("persistent cookie MaxAge = %d, want 2592000", cookie.MaxAge)
	}
}

func TestHTTPCarrier_Forget_TombstonesAndExpires(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "login_token_sess", Value: "stale"})
	w := httptest.NewRecorder()

	sess := newSessionCarrier(w, req, CarrierConfig{})
	sess.Forget("login_token")

	// 同一リクエスト内のGetはリクエストCookieより墓標を優先する
	if got := sess.Get("login_token"); got != "" {
		t.Errorf("Get after Forget = %q, want empty", got)
	}

	cookie := findCookie(w.Result(), "login_token_sess")
	if cookie == nil {
		t.Fatal("expected expired cookie")
	}
	if cookie.MaxAge != -1 {
		t.Errorf("expired cookie MaxAge = %d, want -1", cookie.MaxAge)
	}
}

func TestHTTPCarrier_StayLoggedIn(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	cc := newCookieCarrier(w, req, CarrierConfig{})
	if cc.StayLoggedIn() {
		t.Error("StayLoggedIn should be false without preference cookie")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(&http.Cookie{Name: stayLoggedCookieName, Value: "1"})
	cc2 := newCookieCarrier(httptest.NewRecorder(), req2, CarrierConfig{})
	if !cc2.StayLoggedIn() {
		t.Error("StayLoggedIn should be true with preference cookie")
	}
}

func TestHTTPCarrier_SecureFlagPropagates(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	sess := newSessionCarrier(w, req, CarrierConfig{CookieSecure: true})
	sess.Put("login_token", "v")

	cookie := findCookie(w.Result(), "login_token_sess")
	if cookie == nil || !cookie.Secure {
		t.Error("expected Secure cookie")
	}
}
