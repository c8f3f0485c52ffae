package validation

import (
	"strings"

	"github.com/hitoshi/myftc/internal/model"
	"github.com/hitoshi/myftc/internal/security"
)

// LoginForm はメールログインの入力。
type LoginForm struct {
	Email    string `form:"email" validate:"required,email,max=64"`
	Password string `form:"password" validate:"required,max=64"`
}

func (f *LoginForm) clean(*security.TextSanitizer) {
	f.Email = normalizeEmail(f.Email)
}

// Credentials はログイン入力を上流APIの資格情報に変換する。
func (f LoginForm) Credentials() model.Credentials {
	return model.Credentials{Email: f.Email, Password: f.Password}
}

// SignupForm は新規登録の入力。
type SignupForm struct {
	Email           string `form:"email" validate:"required,email,max=64"`
	Password        string `form:"password" validate:"required,min=8,max=64"`
	ConfirmPassword string `form:"confirmPassword" validate:"required,eqfield=Password"`
}

func (f *SignupForm) clean(*security.TextSanitizer) {
	f.Email = normalizeEmail(f.Email)
}

// Credentials は登録入力を上流APIの資格情報に変換する。
func (f SignupForm) Credentials() model.Credentials {
	return model.Credentials{Email: f.Email, Password: f.Password}
}

// EmailForm はメールアドレスのみの入力（パスワード再設定依頼、メール変更、連携先確認）。
type EmailForm struct {
	Email string `form:"email" validate:"required,email,max=64"`
}

func (f *EmailForm) clean(*security.TextSanitizer) {
	f.Email = normalizeEmail(f.Email)
}

// PasswordResetForm はトークンによるパスワード再設定の入力。
type PasswordResetForm struct {
	Password        string `form:"password" validate:"required,min=8,max=64"`
	ConfirmPassword string `form:"confirmPassword" validate:"required,eqfield=Password"`
}

// PasswordUpdateForm はログイン中のパスワード変更の入力。
type PasswordUpdateForm struct {
	OldPassword     string `form:"oldPassword" validate:"required,max=64"`
	Password        string `form:"password" validate:"required,min=8,max=64"`
	ConfirmPassword string `form:"confirmPassword" validate:"required,eqfield=Password"`
}

// UserNameForm はユーザー名変更の入力。
type UserNameForm struct {
	UserName string `form:"userName" validate:"required,max=64"`
}

func (f *UserNameForm) clean(s *security.TextSanitizer) {
	f.UserName = s.Sanitize(f.UserName)
}

// AddressForm は郵送先住所の入力。
type AddressForm struct {
	Country  string `form:"country" validate:"max=32"`
	Province string `form:"province" validate:"max=32"`
	City     string `form:"city" validate:"max=32"`
	District string `form:"district" validate:"max=64"`
	Street   string `form:"street" validate:"max=128"`
	Postcode string `form:"postcode" validate:"omitempty,numeric,max=16"`
}

func (f *AddressForm) clean(s *security.TextSanitizer) {
	f.Country = s.Sanitize(f.Country)
	f.Province = s.Sanitize(f.Province)
	f.City = s.Sanitize(f.City)
	f.District = s.Sanitize(f.District)
	f.Street = s.Sanitize(f.Street)
	f.Postcode = strings.TrimSpace(f.Postcode)
}

// Address は入力を住所モデルに変換する。
func (f AddressForm) Address() model.Address {
	return model.Address{
		Country:  f.Country,
		Province: f.Province,
		City:     f.City,
		District: f.District,
		Street:   f.Street,
		Postcode: f.Postcode,
	}
}

// AddressFormOf は住所モデルから入力フォームの初期値を作る。
func AddressFormOf(a model.Address) AddressForm {
	return AddressForm{
		Country:  a.Country,
		Province: a.Province,
		City:     a.City,
		District: a.District,
		Street:   a.Street,
		Postcode: a.Postcode,
	}
}

// MergeForm は連携確認の入力。targetIdは確認画面が埋め込んだ相手アカウントID。
type MergeForm struct {
	TargetID string `form:"targetId" validate:"required"`
}

func (f *MergeForm) clean(*security.TextSanitizer) {
	f.TargetID = strings.TrimSpace(f.TargetID)
}

// UnlinkForm は連携解除の入力。
// 値の妥当性は会員権の有無と購入チャネルで変わるため、linking.SelectUnlinkAnchorで判定する。
type UnlinkForm struct {
	Anchor string `form:"anchor"`
}

// PayForm は決済方法選択の入力。
type PayForm struct {
	PayMethod string `form:"payMethod" validate:"required,oneof=alipay wechat"`
}

// AuthorizeQuery はサードパーティOAuthクライアントの認可リクエスト。
type AuthorizeQuery struct {
	ResponseType string `form:"response_type" validate:"required,eq=code"`
	ClientID     string `form:"client_id" validate:"required,max=64"`
	RedirectURI  string `form:"redirect_uri" validate:"required,url"`
	State        string `form:"state" validate:"required,max=256"`
}

func (q *AuthorizeQuery) clean(*security.TextSanitizer) {
	q.ResponseType = strings.TrimSpace(q.ResponseType)
	q.ClientID = strings.TrimSpace(q.ClientID)
	q.RedirectURI = strings.TrimSpace(q.RedirectURI)
}

// Request は入力を認可リクエストモデルに変換する。
func (q AuthorizeQuery) Request() model.AuthorizeRequest {
	return model.AuthorizeRequest{
		ResponseType: q.ResponseType,
		ClientID:     q.ClientID,
		RedirectURI:  q.RedirectURI,
		State:        q.State,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
