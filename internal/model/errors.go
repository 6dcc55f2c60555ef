// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, authorization, validation, data, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeEmailNotConfirmed    = "EMAIL_NOT_CONFIRMED"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeSessionExpired       = "SESSION_EXPIRED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeProfilePending       = "PROFILE_PENDING"
	ErrCodeProfileUnavailable   = "PROFILE_UNAVAILABLE"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidStatus        = "INVALID_STATUS"
	ErrCodeSelfDeletion         = "SELF_DELETION"
	ErrCodeCustomerNotFound     = "CUSTOMER_NOT_FOUND"
	ErrCodeServiceOrderNotFound = "SERVICE_ORDER_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeEmailAlreadyExists   = "EMAIL_ALREADY_EXISTS"
	ErrCodeDataFetchFailed      = "DATA_FETCH_FAILED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewInvalidCredentialsError はメールアドレスまたはパスワードの誤りを表すエラーを生成する。
// どちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewEmailNotConfirmedError はメールアドレス未確認アカウントのログインエラーを生成する。
func NewEmailNotConfirmedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotConfirmed,
		Message:  "メールアドレスの確認が完了していません。",
		Category: "auth",
		Action:   "確認メールのリンクを開いてから再度ログインしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSessionExpiredError はセッション失効エラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れています。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この画面を表示する権限がありません。",
		Category: "authorization",
		Action:   "担当画面に戻ってください。",
	}
}

// NewProfileUnavailableError はプロフィール取得が失敗して確定した状態を表すエラーを生成する。
// 再ログインするかStoreが破棄されるまで再取得しないため、待っても解消しない。
func NewProfileUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileUnavailable,
		Message:  "ユーザー情報を取得できませんでした。",
		Category: "system",
		Action:   "再度ログインしてください。",
	}
}

// NewProfilePendingError はプロフィール未解決のため判定できない状態を表すエラーを生成する。
func NewProfilePendingError() *APIError {
	return &APIError{
		Code:     ErrCodeProfilePending,
		Message:  "ユーザー情報を読み込み中です。",
		Category: "authorization",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容に誤りがあります（%s）: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を修正してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidStatusError は未定義のサービスオーダーステータスが指定された場合のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "New、In-Progress、Done、Cancelled、Awaiting-Parts のいずれかを指定してください。",
	}
}

// NewSelfDeletionError は管理者が自分自身を削除しようとした場合のエラーを生成する。
func NewSelfDeletionError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfDeletion,
		Message:  "自分自身のアカウントは削除できません。",
		Category: "validation",
		Action:   "別の管理者に削除を依頼してください。",
	}
}

// NewCustomerNotFoundError は顧客が見つからない場合のエラーを生成する。
func NewCustomerNotFoundError(customerID string) *APIError {
	return &APIError{
		Code:     ErrCodeCustomerNotFound,
		Message:  fmt.Sprintf("指定された顧客が見つかりません: %s", customerID),
		Category: "data",
		Action:   "顧客一覧を再読み込みしてください。",
	}
}

// NewServiceOrderNotFoundError はサービスオーダーが見つからない場合のエラーを生成する。
func NewServiceOrderNotFoundError(orderID string) *APIError {
	return &APIError{
		Code:     ErrCodeServiceOrderNotFound,
		Message:  fmt.Sprintf("指定されたサービスオーダーが見つかりません: %s", orderID),
		Category: "data",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "data",
		Action:   "ユーザー一覧を再読み込みしてください。",
	}
}

// NewEmailAlreadyExistsError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyExistsError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyExists,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスを指定してください。",
	}
}

// NewDataFetchFailedError はデータ取得失敗エラーを生成する。
// 原因となったエラーメッセージをそのまま末尾に付与する。
func NewDataFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeDataFetchFailed,
		Message:  fmt.Sprintf("データの取得に失敗しました: %s", reason),
		Category: "data",
		Action:   "画面を開き直して再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
