// Package auth は外部IDプロバイダーの識別子とローカルアカウントを仲介する
// 認証ブリッジを提供する。パスワードは扱わない。認証そのもの（識別子の検証）は
// 外部プロバイダーに委ね、このパッケージは検証済み識別子を永続的で失効可能な
// ローカルセッションに変換することだけを責務とする。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mivir/steamgate/internal/model"
	"github.com/mivir/steamgate/internal/repository"
)

// トークンの一意制約衝突時にログインを再試行する上限。
// 衝突は同時ログインのレースでのみ起こる。2連続で起こることは実用上ない。
const maxLoginTokenRetries = 3

// Recorder は認証イベントのメトリクス記録インターフェース。
// metrics.Collectorが実装する。nilの場合は記録しない。
type Recorder interface {
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordRegistration()
	RecordStaleTokenCleared()
	RecordTokenRetry()
}

// ServiceConfig は認証ブリッジの設定。
type ServiceConfig struct {
	// TokenName はキャリア上でログイントークンを保持するキー名。
	TokenName string
}

// Service は認証ブリッジ本体。検証済みの外部識別子をローカルアカウントの
// セッションに変換し、キャリア上のトークンを所有アカウントへ逆引きする。
// プロセス内に可変状態を持たず、全操作はストアとキャリアに対する
// 短命な読み書きの列として同期的に実行される。
type Service struct {
	accounts repository.AccountRepository
	tokens   *TokenGenerator
	recorder Recorder
	config   ServiceConfig
}

// NewService はServiceを生成する。recorderはnil可。
func NewService(accounts repository.AccountRepository, tokens *TokenGenerator, recorder Recorder, config ServiceConfig) *Service {
	if config.TokenName == "" {
		config.TokenName = "login_token"
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		recorder: recorder,
		config:   config,
	}
}

// TokenName はキャリア上のトークンキー名を返す。
func (s *Service) TokenName() string {
	return s.config.TokenName
}

// ResolveCurrentAccount はキャリアからトークンを読み取り、現在ログイン中の
// アカウントIDを返す。未ログインは空文字列で表す。エラーではない。
//
// 読み取りはセッションキャリア優先、なければ永続Cookieキャリア。
// トークンに対応するアカウントが存在しない場合（失効済み）は両キャリアから
// トークンを除去して未ログインを返す。有効なトークンはセッションキャリアに
// 再書き込みし、ログイン維持フラグが立っている場合のみ永続Cookie側も
// リフレッシュする。いずれの副作用も冪等。
func (s *Service) ResolveCurrentAccount(ctx context.Context, sess Carrier, cookie CookieCarrier) (string, error) {
	token := sess.Get(s.config.TokenName)
	if token == "" {
		token = cookie.Get(s.config.TokenName)
	}
	if token == "" {
		return "", nil
	}

	account, err := s.accounts.FindByLoginToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to resolve login token: %w", err)
	}

	// 失効済みトークン: 両キャリアを掃除して未ログイン扱いにする
	if account == nil {
		sess.Forget(s.config.TokenName)
		cookie.Forget(s.config.TokenName)
		if s.recorder != nil {
			s.recorder.RecordStaleTokenCleared()
		}
		slog.Info("stale login token cleared")
		return "", nil
	}

	sess.Put(s.config.TokenName, token)
	if cookie.StayLoggedIn() {
		cookie.Put(s.config.TokenName, token)
	}

	return account.ID, nil
}

// Login は検証済みの外部識別子でログインし、アカウントIDを返す。
// 識別子の検証は呼び出し側の責務であり、この操作は入力を信頼する。
//
// アカウントが未登録の場合はmodel.ErrAccountNotFoundを返す。暗黙の登録は
// 行わない。登録は呼び出し側が明示的にRegisterを呼ぶこと。
// トークン未発行のアカウントには初回ログイン時にトークンを生成して永続化する
// （遅延プロビジョニング）。結果のトークンは両キャリアへ無条件に書き込む。
func (s *Service) Login(ctx context.Context, externalID string, sess Carrier, cookie CookieCarrier) (string, error) {
	if externalID == "" {
		return "", fmt.Errorf("external identifier is required")
	}

	account, err := s.accounts.FindByExternalID(ctx, externalID)
	if err != nil {
		return "", fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		if s.recorder != nil {
			s.recorder.RecordLoginFailure()
		}
		return "", model.ErrAccountNotFound
	}

	var token string
	if account.HasLoginToken() {
		token = *account.LoginToken
	} else {
		token, err = s.provisionToken(ctx, account.ID)
		if err != nil {
			return "", err
		}
	}

	sess.Put(s.config.TokenName, token)
	cookie.Put(s.config.TokenName, token)

	if s.recorder != nil {
		s.recorder.RecordLoginSuccess()
	}
	slog.Info("account logged in", slog.String("account_id", account.ID))

	return account.ID, nil
}

// Register は外部識別子で新規アカウントを作成し、アカウントIDを返す。
// 既存の識別子に対してはmodel.ErrDuplicateIdentifierを返す。upsertはしない。
// 作成直後のアカウントはトークンを持たない。トークンは初回ログインで発行される。
//
// 存在チェックと挿入はアトミックではないため、同時登録のレースは
// ストレージ層の一意制約違反として顕在化し、同じくErrDuplicateIdentifierになる。
func (s *Service) Register(ctx context.Context, externalID string) (string, error) {
	if externalID == "" {
		return "", fmt.Errorf("external identifier is required")
	}

	existing, err := s.accounts.FindByExternalID(ctx, externalID)
	if err != nil {
		return "", fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		return "", model.ErrDuplicateIdentifier
	}

	now := time.Now()
	account := &model.Account{
		ID:         uuid.New().String(),
		ExternalID: externalID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, model.ErrDuplicateIdentifier) {
			// 存在チェック後に他のリクエストが先に挿入したケース
			return "", model.ErrDuplicateIdentifier
		}
		slog.Error("account insert failed", slog.String("error", err.Error()))
		return "", model.ErrRegistrationFailed
	}

	if s.recorder != nil {
		s.recorder.RecordRegistration()
	}
	slog.Info("account registered", slog.String("account_id", account.ID))

	return account.ID, nil
}

// Logout は両キャリアからトークンを除去する。
// アカウント側のトークンは変更しないため、同じトークンを保持する他端末の
// セッションは有効なまま残る。アクティブなセッションがない状態で呼んでも
// エラーにはならない（冪等）。
func (s *Service) Logout(sess Carrier, cookie CookieCarrier) {
	sess.Forget(s.config.TokenName)
	cookie.Forget(s.config.TokenName)
}

// RevokeEverywhere はアカウントのログイントークンを失効させる。
// 旧トークンを保持しているすべてのキャリアは以後の解決で失効扱いとなり、
// 全端末からログアウトされる。次回ログインで新しいトークンが発行される。
func (s *Service) RevokeEverywhere(ctx context.Context, accountID string) error {
	if err := s.accounts.ClearLoginToken(ctx, accountID); err != nil {
		return fmt.Errorf("failed to revoke login token: %w", err)
	}
	slog.Info("login token revoked everywhere", slog.String("account_id", accountID))
	return nil
}

// provisionToken は初回ログイン時のトークン発行を行う。
// 生成時点の一意性はTokenGeneratorが確認するが、同時に進行する別ログインとの
// レースはUPDATE時の一意制約違反として現れるため、その場合は再生成して試し直す。
func (s *Service) provisionToken(ctx context.Context, accountID string) (string, error) {
	for attempt := 0; attempt < maxLoginTokenRetries; attempt++ {
		token, err := s.tokens.Generate(ctx)
		if err != nil {
			return "", err
		}

		err = s.accounts.UpdateLoginToken(ctx, accountID, token)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, model.ErrTokenConflict) {
			return "", fmt.Errorf("failed to persist login token: %w", err)
		}

		if s.recorder != nil {
			s.recorder.RecordTokenRetry()
		}
		slog.Warn("login token collision, regenerating",
			slog.String("account_id", accountID),
			slog.Int("attempt", attempt+1),
		)
	}
	return "", model.ErrTokenConflict
}
