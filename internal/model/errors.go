// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, deal, sync, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeDealNotFound     = "DEAL_NOT_FOUND"
	ErrCodeMissingDealID    = "MISSING_DEAL_ID"
	ErrCodeLinkUnavailable  = "LINK_UNAVAILABLE"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeSyncFailed       = "SYNC_FAILED"
	ErrCodeInvalidFilter    = "INVALID_FILTER"
	ErrCodeDebugDisabled    = "DEBUG_DISABLED"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewDealNotFoundError はディール未検出エラーを生成する。
func NewDealNotFoundError(dealID string) *APIError {
	return &APIError{
		Code:     ErrCodeDealNotFound,
		Message:  fmt.Sprintf("deal not found: %s", dealID),
		Category: "deal",
		Action:   "ディールIDを確認してください。",
	}
}

// NewMissingDealIDError はディールIDが指定されていない場合のエラーを生成する。
func NewMissingDealIDError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingDealID,
		Message:  "missing id",
		Category: "validation",
		Action:   "クエリパラメータ id にディールIDを指定してください。",
	}
}

// NewLinkUnavailableError はディールに有効な遷移先URLがない場合のエラーを生成する。
func NewLinkUnavailableError(dealID string) *APIError {
	return &APIError{
		Code:     ErrCodeLinkUnavailable,
		Message:  fmt.Sprintf("deal has no outbound link: %s", dealID),
		Category: "deal",
		Action:   "次回の同期後に再度お試しください。",
	}
}

// NewValidationFailedError は書き込み前のスキーマ検証失敗エラーを生成する。
func NewValidationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("validation failed: %s", reason),
		Category: "sync",
		Action:   "マッピングと正規化の結果を確認してください。バッチ全体の書き込みは中止されました。",
	}
}

// NewSyncFailedError は同期処理の失敗エラーを生成する。
func NewSyncFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailed,
		Message:  fmt.Sprintf("sync failed: %s", reason),
		Category: "sync",
		Action:   "しばらく待ってから再度同期を実行してください。",
	}
}

// NewInvalidFilterError は無効な絞り込み条件エラーを生成する。
func NewInvalidFilterError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("invalid filter: %s", reason),
		Category: "validation",
		Action:   "検索語は200文字以内で指定してください。",
	}
}

// NewDebugDisabledError はデバッグエンドポイントが無効化されている場合のエラーを生成する。
func NewDebugDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeDebugDisabled,
		Message:  "debug endpoints are disabled",
		Category: "system",
		Action:   "DEBUG_ENDPOINTS=true を設定してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "too many requests",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数が経過してから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録し、メッセージには含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "internal error",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
