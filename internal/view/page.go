package view

import "github.com/hitoshi/myftc/internal/model"

// Page はすべてのテンプレートに渡すビューモデル。
// FormとDataの具体的な型はテンプレートごとに決まる。
type Page struct {
	Title     string
	Account   *model.Account
	CSRFToken string
	Flash     string
	Error     string
	Errors    map[string]string
	Form      any
	Data      any
}

// ErrorData はエラーページの内容。
type ErrorData struct {
	Status int
	Action string
}

// MergeData は連携確認ページの内容。
// Successがtrueの場合は他のフィールドを使わない。
type MergeData struct {
	Success  bool
	Ftc      model.Account
	Wx       model.Account
	Denied   string
	TargetID string
}

// UnbindData は連携解除ページの内容。
type UnbindData struct {
	Membership model.Membership
	// ForcedFtc はメール側チャネルの会員権でアンカーがftcに固定される場合にtrue。
	ForcedFtc bool
	// ChooseAnchor は会員権があり保持する側の選択が必要な場合にtrue。
	ChooseAnchor bool
}

// MembershipData は会員情報ページの内容。
type MembershipData struct {
	Membership    model.Membership
	Active        bool
	RemainingDays int
}

// PayData は決済方法選択ページの内容。
type PayData struct {
	Product model.Product
	Plan    model.Plan
}

// PaymentData はWechat Pay QRコードページの内容。
type PaymentData struct {
	Plan   model.Plan
	Intent model.PaymentIntent
}

// PasswordResetData はパスワード再設定ページの内容。
type PasswordResetData struct {
	Email string
}
