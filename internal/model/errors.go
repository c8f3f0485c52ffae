package model

import "fmt"

// APIError はページに表示するエラーの統一フォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, account, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAccountNotFound   = "ACCOUNT_NOT_FOUND"
	ErrCodeLinkTargetMissing = "LINK_TARGET_MISSING"
	ErrCodeEmailRequired     = "EMAIL_ACCOUNT_REQUIRED"
	ErrCodeWechatSession     = "WECHAT_SESSION_NOT_LINKABLE"
	ErrCodeTokenInvalid      = "TOKEN_INVALID"
	ErrCodePlanNotFound      = "PLAN_NOT_FOUND"
	ErrCodeInvalidAuthorize  = "INVALID_AUTHORIZE_REQUEST"
	ErrCodeCSRF              = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimit         = "RATE_LIMIT_EXCEEDED"
	ErrCodeUpstream          = "UPSTREAM_ERROR"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewNotFoundError はページが見つからない場合のエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "页面不存在。",
		Category: "system",
		Action:   "请返回首页。",
	}
}

// NewAccountNotFoundError は上流APIでアカウントが見つからない場合のエラーを生成する。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  "账号不存在。",
		Category: "account",
		Action:   "请重新登录。",
	}
}

// NewLinkTargetMissingError は連携対象がセッションに存在しない場合のエラーを生成する。
// 連携確認ページは有効なハンドシェイク結果なしには到達できない。
func NewLinkTargetMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeLinkTargetMissing,
		Message:  "没有待绑定的账号。",
		Category: "account",
		Action:   "请重新发起微信授权。",
	}
}

// NewEmailAccountRequiredError はメールアカウントが必要な操作をWechatのみのアカウントで
// 実行しようとした場合のエラーを生成する。
func NewEmailAccountRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailRequired,
		Message:  "该功能需要邮箱账号。",
		Category: "account",
		Action:   "请先绑定邮箱。",
	}
}

// NewWechatSessionNotLinkableError はWechatでログイン中のセッションに
// 再度Wechatを連携しようとした場合のエラーを生成する。
func NewWechatSessionNotLinkableError() *APIError {
	return &APIError{
		Code:     ErrCodeWechatSession,
		Message:  "微信登录的账号无法再次绑定微信。",
		Category: "account",
		Action:   "请使用邮箱登录后再绑定微信。",
	}
}

// NewTokenInvalidError はメール内リンクのトークンが無効な場合のエラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "链接无效或已过期。",
		Category: "validation",
		Action:   "请重新获取邮件。",
	}
}

// NewPlanNotFoundError は指定された料金プランが存在しない場合のエラーを生成する。
func NewPlanNotFoundError(tier Tier, cycle Cycle) *APIError {
	return &APIError{
		Code:     ErrCodePlanNotFound,
		Message:  fmt.Sprintf("订阅方案不存在: %s/%s", tier, cycle),
		Category: "validation",
		Action:   "请从订阅页面重新选择。",
	}
}

// NewInvalidAuthorizeError はサードパーティの認可リクエストが不正な場合のエラーを生成する。
func NewInvalidAuthorizeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAuthorize,
		Message:  fmt.Sprintf("授权请求无效: %s", reason),
		Category: "auth",
		Action:   "请联系应用开发者。",
	}
}

// NewCSRFError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "页面已过期。",
		Category: "auth",
		Action:   "请刷新页面后重新提交。",
	}
}

// NewRateLimitError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimit,
		Message:  "请求过于频繁。",
		Category: "system",
		Action:   "请稍后再试。",
	}
}

// NewUpstreamError は上流APIの未分類エラーを生成する。
// 上流のメッセージをそのまま表示する。
func NewUpstreamError(message string) *APIError {
	if message == "" {
		message = "服务器错误。"
	}
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  message,
		Category: "system",
		Action:   "请稍后再试。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部错误。",
		Category: "system",
		Action:   "请稍后再试。",
	}
}
