// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, webhook, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeVerificationFailed = "VERIFICATION_FAILED"
	ErrCodeCredentialInvalid  = "CREDENTIAL_INVALID"
	ErrCodeIdentityDeleted    = "IDENTITY_DELETED"
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeMirrorNotFound     = "MIRROR_NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// NewVerificationFailedError はWebhook署名検証失敗エラーを生成する。
// セキュリティ関連イベントとしてログに記録され、再試行されることはない。
func NewVerificationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeVerificationFailed,
		Message:  fmt.Sprintf("Webhookの検証に失敗しました: %s", reason),
		Category: "webhook",
		Action:   "署名シークレットとプロバイダーの設定を確認してください。",
	}
}

// NewCredentialInvalidError は認証情報の検証失敗エラーを生成する。
func NewCredentialInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCredentialInvalid,
		Message:  "認証情報が無効です。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewIdentityDeletedError は削除済みアイデンティティへのアクセスエラーを生成する。
// 認証失敗とは区別される（認証には成功したがアイデンティティが無効）。
func NewIdentityDeletedError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityDeleted,
		Message:  "このアカウントは既に削除されています。",
		Category: "auth",
		Action:   "新しいアカウントを作成してください。",
	}
}

// NewPermissionDeniedError は権限不足エラーを生成する。
func NewPermissionDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  "この操作を実行する権限がありません。",
		Category: "auth",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewInternalError は内部サーバーエラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternalError,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewMirrorNotFoundError はミラーが見つからない場合のエラーを生成する。
func NewMirrorNotFoundError(externalID string) *APIError {
	return &APIError{
		Code:     ErrCodeMirrorNotFound,
		Message:  fmt.Sprintf("指定されたアイデンティティが見つかりません: %s", externalID),
		Category: "validation",
		Action:   "アイデンティティIDを確認してください。",
	}
}
