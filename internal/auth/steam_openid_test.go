package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mivir/steamgate/internal/model"
)

// GetLoginURLが必要なOpenIDパラメータをすべて含むことを検証
func TestSteamOpenIDProvider_GetLoginURL(t *testing.T) {
	p := NewSteamOpenIDProvider(SteamOpenIDConfig{Realm: "https://example.com"})

	loginURL := p.GetLoginURL("https://example.com/auth/steam/callback")

	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("failed to parse login URL: %v", err)
	}
	if !strings.HasPrefix(loginURL, defaultSteamOpenIDURL) {
		t.Errorf("login URL should target the Steam endpoint, got %q", loginURL)
	}

	q := parsed.Query()
	if q.Get("openid.mode") != "checkid_setup" {
		t.Errorf("openid.mode = %q, want checkid_setup", q.Get("openid.mode"))
	}
	if q.Get("openid.return_to") != "https://example.com/auth/steam/callback" {
		t.Errorf("openid.return_to = %q", q.Get("openid.return_to"))
	}
	if q.Get("openid.realm") != "https://example.com" {
		t.Errorf("openid.realm = %q", q.Get("openid.realm"))
	}
	if q.Get("openid.ns") != openIDNamespace {
		t.Errorf("openid.ns = %q", q.Get("openid.ns"))
	}
}

// callbackQuery は検証テスト用の典型的なコールバッククエリを生成する。
func callbackQuery(steamID string) url.Values {
	return url.Values{
		"openid.mode":       {"id_res"},
		"openid.ns":         {openIDNamespace},
		"openid.claimed_id": {"https://steamcommunity.com/openid/id/" + steamID},
		"openid.sig":        {"dummy-signature"},
	}
}

// プロバイダーがis_valid:trueを返した場合にSteam64 IDが抽出されることを検証
func TestSteamOpenIDProvider_VerifyCallback_Valid(t *testing.T) {
	var receivedMode string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		receivedMode = r.PostFormValue("openid.mode")
		w.Write([]byte("ns:" + openIDNamespace + "\nis_valid:true\n"))
	}))
	defer server.Close()

	p := NewSteamOpenIDProvider(SteamOpenIDConfig{
		Realm:       "https://example.com",
		EndpointURL: server.URL,
	})

	steamID, err := p.VerifyCallback(context.Background(), callbackQuery("76561198000000001"))
	if err != nil {
		t.Fatalf("VerifyCallback() error = %v", err)
	}
	if steamID != "76561198000000001" {
		t.Errorf("VerifyCallback() = %q, want %q", steamID, "76561198000000001")
	}
	if receivedMode != "check_authentication" {
		t.Errorf("verification request mode = %q, want check_authentication", receivedMode)
	}
}

// プロバイダーがis_valid:falseを返した場合にErrIdentityNotVerifiedになることを検証
func TestSteamOpenIDProvider_VerifyCallback_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ns:" + openIDNamespace + "\nis_valid:false\n"))
	}))
	defer server.Close()

	p := NewSteamOpenIDProvider(SteamOpenIDConfig{
		Realm:       "https://example.com",
		EndpointURL: server.URL,
	})

	_, err := p.VerifyCallback(context.Background(), callbackQuery("76561198000000001"))
	if !errors.Is(err, model.ErrIdentityNotVerified) {
		t.Fatalf("VerifyCallback() error = %v, want ErrIdentityNotVerified", err)
	}
}

// id_res以外のモードのコールバックが拒否されることを検証
func TestSteamOpenIDProvider_VerifyCallback_WrongMode(t *testing.T) {
	p := NewSteamOpenIDProvider(SteamOpenIDConfig{Realm: "https://example.com"})

	query := callbackQuery("76561198000000001")
	query.Set("openid.mode", "cancel")

	if _, err := p.VerifyCallback(context.Background(), query); err == nil {
		t.Fatal("expected error for openid.mode=cancel")
	}
}

// プロバイダーのHTTPエラーが検証失敗になることを検証
func TestSteamOpenIDProvider_VerifyCallback_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewSteamOpenIDProvider(SteamOpenIDConfig{
		Realm:       "https://example.com",
		EndpointURL: server.URL,
	})

	if _, err := p.VerifyCallback(context.Background(), callbackQuery("76561198000000001")); err == nil {
		t.Fatal("expected error for provider 503")
	}
}

// claimed_idからのSteam64 ID抽出を検証
func TestExtractSteam64(t *testing.T) {
	tests := []struct {
		name      string
		claimedID string
		want      string
	}{
		{"標準形式", "https://steamcommunity.com/openid/id/76561198000000001", "76561198000000001"},
		{"http形式", "http://steamcommunity.com/openid/id/76561197960287930", "76561197960287930"},
		{"空文字列", "", ""},
		{"数字以外を含む末尾", "https://steamcommunity.com/openid/id/abc123", ""},
		{"末尾スラッシュ", "https://steamcommunity.com/openid/id/", ""},
		{"スラッシュなしの数字列", "76561198000000001", "76561198000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSteam64(tt.claimedID); got != tt.want {
				t.Errorf("ExtractSteam64(%q) = %q, want %q", tt.claimedID, got, tt.want)
			}
		})
	}
}
