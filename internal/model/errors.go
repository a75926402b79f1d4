// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, course, enrollment, employee, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeTokenMissing        = "TOKEN_MISSING"
	ErrCodeTokenInvalid        = "TOKEN_INVALID"
	ErrCodeTokenExpired        = "TOKEN_EXPIRED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeEmailAlreadyExists  = "EMAIL_ALREADY_EXISTS"
	ErrCodeCourseTitleExists   = "COURSE_TITLE_EXISTS"
	ErrCodeAlreadyEnrolled     = "ALREADY_ENROLLED"
	ErrCodeEmployeeNotFound    = "EMPLOYEE_NOT_FOUND"
	ErrCodeCourseNotFound      = "COURSE_NOT_FOUND"
	ErrCodeEnrollmentNotFound  = "ENROLLMENT_NOT_FOUND"
	ErrCodeInvalidProgress     = "INVALID_PROGRESS"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternalServerError = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストの形式が正しくありません。",
		Category: "validation",
		Action:   "JSON形式でリクエストを送信してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewTokenMissingError は認証トークンが無い場合のエラーを生成する。
func NewTokenMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenMissing,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewTokenInvalidError は署名不正・形式不正なトークンのエラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "認証トークンが無効です。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewTokenExpiredError は有効期限切れトークンのエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレス不明とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailAlreadyExistsError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyExists,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "employee",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewCourseTitleExistsError はコース名重複エラーを生成する。
func NewCourseTitleExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeCourseTitleExists,
		Message:  "同じタイトルのコースが既に存在します。",
		Category: "course",
		Action:   "別のタイトルを指定してください。",
	}
}

// NewAlreadyEnrolledError は受講登録済みエラーを生成する。
func NewAlreadyEnrolledError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyEnrolled,
		Message:  "このコースには既に受講登録しています。",
		Category: "enrollment",
		Action:   "受講中のコース一覧を確認してください。",
	}
}

// NewEmployeeNotFoundError は従業員が見つからない場合のエラーを生成する。
func NewEmployeeNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeEmployeeNotFound,
		Message:  "従業員が見つかりません。",
		Category: "employee",
		Action:   "従業員IDを確認してください。",
	}
}

// NewCourseNotFoundError はコースが見つからない場合のエラーを生成する。
func NewCourseNotFoundError(courseID string) *APIError {
	return &APIError{
		Code:     ErrCodeCourseNotFound,
		Message:  fmt.Sprintf("指定されたコースが見つかりません: %s", courseID),
		Category: "course",
		Action:   "コースIDを確認してください。",
	}
}

// NewEnrollmentNotFoundError は受講登録が存在しない場合のエラーを生成する。
func NewEnrollmentNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeEnrollmentNotFound,
		Message:  "このコースには受講登録していません。",
		Category: "enrollment",
		Action:   "先にコースへ受講登録してください。",
	}
}

// NewInvalidProgressError は進捗値が範囲外の場合のエラーを生成する。
func NewInvalidProgressError(progress float64) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProgress,
		Message:  fmt.Sprintf("無効な進捗値です: %g", progress),
		Category: "validation",
		Action:   "進捗は0から100の範囲で指定してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエスト数が上限を超えました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternalServerError,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
