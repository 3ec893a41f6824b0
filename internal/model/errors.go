// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, spot, booking, payment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmailNotConfirmed   = "EMAIL_NOT_CONFIRMED"
	ErrCodeSignInFailed        = "SIGN_IN_FAILED"
	ErrCodeSignUpFailed        = "SIGN_UP_FAILED"
	ErrCodeNoActiveSession     = "NO_ACTIVE_SESSION"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInvalidProfile      = "INVALID_PROFILE"
	ErrCodeInvalidID           = "INVALID_ID"
	ErrCodeSpotNotFound        = "SPOT_NOT_FOUND"
	ErrCodeBookingNotFound     = "BOOKING_NOT_FOUND"
	ErrCodeEntryRejected       = "ENTRY_REJECTED"
	ErrCodeInvalidPayment      = "INVALID_PAYMENT_METHOD"
	ErrCodePaymentNotFound     = "PAYMENT_METHOD_NOT_FOUND"
	ErrCodeInvalidImage        = "INVALID_IMAGE"
	ErrCodeImageImportBlocked  = "IMAGE_IMPORT_BLOCKED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRFFailed          = "CSRF_VALIDATION_FAILED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewEmailNotConfirmedError はメール未確認のままサインインしようとした場合のエラーを生成する。
func NewEmailNotConfirmedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotConfirmed,
		Message:  "Please check your email and click the confirmation link before signing in. Check your spam folder if you don't see the email.",
		Category: "auth",
		Action:   "確認メールが届いていない場合は確認メールを再送信してください。",
	}
}

// NewSignInFailedError はサインイン失敗エラーを生成する。
// messageには認証サービスが返したメッセージをそのまま渡す。
func NewSignInFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeSignInFailed,
		Message:  message,
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認して再度お試しください。",
	}
}

// NewSignUpFailedError はサインアップ失敗エラーを生成する。
func NewSignUpFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeSignUpFailed,
		Message:  message,
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewNoActiveSessionError はセッションがない状態で操作しようとした場合のエラーを生成する。
func NewNoActiveSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoActiveSession,
		Message:  "No user logged in",
		Category: "auth",
		Action:   "ログインしてください。",
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

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "オーナーまたは管理者アカウントでログインしてください。",
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidProfileError はプロフィール更新内容が不正な場合のエラーを生成する。
func NewInvalidProfileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProfile,
		Message:  fmt.Sprintf("プロフィールの内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidIDError はIDの形式が不正な場合のエラーを生成する。
func NewInvalidIDError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  fmt.Sprintf("IDの形式が不正です: %s", id),
		Category: "validation",
		Action:   "URLを確認してください。",
	}
}

// NewSpotNotFoundError は駐車場が見つからない場合のエラーを生成する。
func NewSpotNotFoundError(spotID string) *APIError {
	return &APIError{
		Code:     ErrCodeSpotNotFound,
		Message:  fmt.Sprintf("Parking spot not found: %s", spotID),
		Category: "spot",
		Action:   "検索画面に戻って駐車場を選び直してください。",
	}
}

// NewBookingNotFoundError は予約が見つからない場合のエラーを生成する。
func NewBookingNotFoundError(bookingID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookingNotFound,
		Message:  fmt.Sprintf("予約が見つかりません: %s", bookingID),
		Category: "booking",
		Action:   "QRコードを読み取り直すか、予約番号を確認してください。",
	}
}

// NewEntryRejectedError は入場検証で予約が受け付けられない場合のエラーを生成する。
func NewEntryRejectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryRejected,
		Message:  fmt.Sprintf("入場を許可できません: %s", reason),
		Category: "booking",
		Action:   "予約の日時とステータスを確認してください。",
	}
}

// NewInvalidPaymentMethodError は支払い方法の設定内容が不正な場合のエラーを生成する。
func NewInvalidPaymentMethodError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayment,
		Message:  fmt.Sprintf("支払い方法の設定が不正です: %s", reason),
		Category: "payment",
		Action:   "入力内容を確認してください。",
	}
}

// NewPaymentMethodNotFoundError は支払い方法が見つからない場合のエラーを生成する。
func NewPaymentMethodNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodePaymentNotFound,
		Message:  fmt.Sprintf("支払い方法が見つかりません: %s", id),
		Category: "payment",
		Action:   "支払い方法の一覧を再読み込みしてください。",
	}
}

// NewInvalidImageError はアップロード画像が不正な場合のエラーを生成する。
func NewInvalidImageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  fmt.Sprintf("画像が不正です: %s", reason),
		Category: "validation",
		Action:   "PNGまたはJPEG形式の2MB以下の画像を選択してください。",
	}
}

// NewImageImportBlockedError はSSRFポリシーにより画像の取り込みがブロックされた場合のエラーを生成する。
func NewImageImportBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeImageImportBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトの画像URLを入力してください。",
	}
}

// NewUpstreamUnavailableError は外部サービスの呼び出しに失敗した場合のエラーを生成する。
// 画面側はActionを再試行ボタンの文言として表示する。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  "データの取得に失敗しました。",
		Category: "system",
		Action:   "再試行してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数が経過してから再度お試しください。",
	}
}

// NewCSRFFailedError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
