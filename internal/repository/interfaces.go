// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/mivir/steamgate/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
// external_idとlogin_tokenの一意性はストレージ層の制約で保証される。
// アプリケーション層の存在チェックと挿入はアトミックではないため、
// 同時リクエストのレースはここで一意制約違反として顕在化する。
type AccountRepository interface {
	// FindByExternalID は外部識別子でアカウントを検索する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.Account, error)

	// FindByLoginToken はログイントークンでアカウントを検索する。見つからない場合はnilを返す。
	FindByLoginToken(ctx context.Context, token string) (*model.Account, error)

	// Create はアカウントを作成する。LoginTokenはnilのまま挿入される。
	// external_idの一意制約違反の場合はmodel.ErrDuplicateIdentifierを返す。
	Create(ctx context.Context, account *model.Account) error

	// UpdateLoginToken はアカウントのログイントークンを設定する。
	// login_tokenの一意制約違反の場合はmodel.ErrTokenConflictを返す。
	UpdateLoginToken(ctx context.Context, accountID, token string) error

	// ClearLoginToken はアカウントのログイントークンをNULLにする。
	// 全端末からのログアウト（トークン失効）に使用する。
	ClearLoginToken(ctx context.Context, accountID string) error
}
