// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	ErrCodeDuplicateIdentifier = "DUPLICATE_IDENTIFIER"
	ErrCodeRegistrationFailed  = "REGISTRATION_FAILED"
	ErrCodeTokenConflict       = "TOKEN_CONFLICT"
	ErrCodeIdentityNotVerified = "IDENTITY_NOT_VERIFIED"
)

// 認証フローの定義済みエラー。
// 呼び出し側が分岐する定常的な結果（例: 未登録→登録へ誘導）のため、
// errors.Isで判定できるパッケージ変数として公開する。
var (
	// ErrAccountNotFound は識別子に対応するアカウントが存在しないことを示す。
	// ログイン時に返された場合、呼び出し側は登録フローへ誘導する。
	ErrAccountNotFound = &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  "指定された識別子のアカウントが見つかりません。",
		Category: "auth",
		Action:   "アカウント登録を行ってください。",
	}

	// ErrDuplicateIdentifier は同じ識別子のアカウントが既に存在することを示す。
	// 登録は新規作成専用であり、既存アカウントの上書きは行わない。
	ErrDuplicateIdentifier = &APIError{
		Code:     ErrCodeDuplicateIdentifier,
		Message:  "この識別子は既に登録されています。",
		Category: "auth",
		Action:   "登録済みのアカウントでログインしてください。",
	}

	// ErrRegistrationFailed はストレージ層の失敗によりアカウント作成に失敗したことを示す。
	ErrRegistrationFailed = &APIError{
		Code:     ErrCodeRegistrationFailed,
		Message:  "アカウントの登録中にサーバーエラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}

	// ErrTokenConflict はログイントークンの一意制約違反を示す。
	// 同時ログインのレースでのみ発生し、トークンを再生成してリトライする。
	ErrTokenConflict = &APIError{
		Code:     ErrCodeTokenConflict,
		Message:  "ログイントークンが衝突しました。",
		Category: "system",
		Action:   "再度ログインしてください。",
	}

	// ErrIdentityNotVerified はIDプロバイダーが識別子を検証できなかったことを示す。
	ErrIdentityNotVerified = &APIError{
		Code:     ErrCodeIdentityNotVerified,
		Message:  "外部IDプロバイダーによる認証に失敗しました。",
		Category: "auth",
		Action:   "再度ログインをお試しください。",
	}
)
