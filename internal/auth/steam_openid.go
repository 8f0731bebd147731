package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mivir/steamgate/internal/model"
)

const (
	defaultSteamOpenIDURL  = "https://steamcommunity.com/openid/login"
	openIDNamespace        = "http://specs.openid.net/auth/2.0"
	openIDIdentifierSelect = "http://specs.openid.net/auth/2.0/identifier_select"
)

// IdentityProvider は外部IDプロバイダーのインターフェース。
// プロトコルの詳細（OpenID等）はこの境界の内側に閉じ込め、
// ブリッジ本体は検証済み識別子の文字列だけを受け取る。
type IdentityProvider interface {
	// GetLoginURL はプロバイダーの認証ページへのリダイレクトURLを生成する。
	GetLoginURL(returnURL string) string
	// VerifyCallback はプロバイダーから戻ってきたコールバックのクエリを検証し、
	// 検証済みの外部識別子を返す。検証に失敗した場合はmodel.ErrIdentityNotVerifiedを返す。
	VerifyCallback(ctx context.Context, query url.Values) (string, error)
}

// SteamOpenIDConfig はSteam OpenIDプロバイダーの設定。
type SteamOpenIDConfig struct {
	// Realm は信頼ルートとしてプロバイダーに提示するサイトのURL。
	Realm string

	// テスト用にオーバーライド可能なエンドポイント
	EndpointURL string

	// HTTPClient は検証リクエストに使用するクライアント。nilの場合はタイムアウト付き既定値。
	HTTPClient *http.Client
}

// SteamOpenIDProvider はSteamのOpenID 2.0エンドポイントによる認証を提供する。
// アサーションの検証はプロバイダー自身のcheck_authenticationに委譲し、
// このアダプタはリダイレクトURLの構築と判定結果の中継のみを行う。
type SteamOpenIDProvider struct {
	config SteamOpenIDConfig
}

// NewSteamOpenIDProvider はSteamOpenIDProviderを生成する。
func NewSteamOpenIDProvider(config SteamOpenIDConfig) *SteamOpenIDProvider {
	if config.EndpointURL == "" {
		config.EndpointURL = defaultSteamOpenIDURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SteamOpenIDProvider{config: config}
}

// GetLoginURL はSteamの認証ページへのリダイレクトURLを生成する。
// 認証後、ユーザーはreturnURLに戻される。
func (p *SteamOpenIDProvider) GetLoginURL(returnURL string) string {
	params := url.Values{
		"openid.ns":         {openIDNamespace},
		"openid.mode":       {"checkid_setup"},
		"openid.return_to":  {returnURL},
		"openid.realm":      {p.config.Realm},
		"openid.identity":   {openIDIdentifierSelect},
		"openid.claimed_id": {openIDIdentifierSelect},
	}
	return p.config.EndpointURL + "?" + params.Encode()
}

// VerifyCallback はコールバッククエリをcheck_authenticationモードで
// プロバイダーに送り返し、is_valid:true の場合のみclaimed_idから
// Steam64 IDを抽出して返す。
func (p *SteamOpenIDProvider) VerifyCallback(ctx context.Context, query url.Values) (string, error) {
	if query.Get("openid.mode") != "id_res" {
		return "", fmt.Errorf("unexpected openid.mode %q", query.Get("openid.mode"))
	}

	// 受け取ったパラメータをそのまま返送し、modeだけ差し替える
	data := url.Values{}
	for key, values := range query {
		if strings.HasPrefix(key, "openid.") {
			data[key] = values
		}
	}
	data.Set("openid.mode", "check_authentication")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.EndpointURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read verification response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("verification failed with status %d: %s", resp.StatusCode, string(body))
	}

	if !strings.Contains(string(body), "is_valid:true") {
		return "", model.ErrIdentityNotVerified
	}

	steamID := ExtractSteam64(query.Get("openid.claimed_id"))
	if steamID == "" {
		return "", fmt.Errorf("claimed_id missing steam id: %w", model.ErrIdentityNotVerified)
	}

	return steamID, nil
}

// ExtractSteam64 はclaimed_id（例: "https://steamcommunity.com/openid/id/76561198000000000"）
// から末尾のSteam64 IDを取り出す。数字列でない場合は空文字列を返す。
func ExtractSteam64(claimedID string) string {
	if claimedID == "" {
		return ""
	}
	idx := strings.LastIndex(claimedID, "/")
	id := claimedID[idx+1:]
	if id == "" {
		return ""
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return id
}

// compile-time interface check
var _ IdentityProvider = (*SteamOpenIDProvider)(nil)
