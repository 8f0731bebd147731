// Package model はドメインモデルを定義する。
package model

import "time"

// Account は外部IDプロバイダーの識別子と1対1で紐付くローカルアカウントを表す。
// ExternalIDは登録後に変更されない（フェデレーテッド認証のキー、例: Steam64 ID）。
// LoginTokenは初回ログイン時に遅延生成され、全端末ログアウト時にクリアされる。
type Account struct {
	ID         string
	ExternalID string
	LoginToken *string // 未ログインのアカウントはnil
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasLoginToken はアカウントに有効なログイントークンが設定されているかを返す。
func (a *Account) HasLoginToken() bool {
	return a.LoginToken != nil && *a.LoginToken != ""
}
