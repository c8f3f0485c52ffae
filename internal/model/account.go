// Package model はドメインモデルを定義する。
package model

import "net/http"

// 上流APIへアカウントを特定するためのヘッダー名。
const (
	HeaderFtcID   = "X-User-Id"
	HeaderUnionID = "X-Union-Id"
)

// LoginMethod は現在のセッションがどちらのIDで認証されたかを表す。
type LoginMethod string

const (
	LoginMethodEmail  LoginMethod = "email"
	LoginMethodWechat LoginMethod = "wechat"
)

// Wechat はWechat側の表示用属性。
type Wechat struct {
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Account は上流APIが返す読者アカウントを表す。
// メール登録のID（FtcID）とWechatのUnionIDの2つのIDを持ちうる。
// 空文字列は「存在しない」を意味する。
type Account struct {
	FtcID       string      `json:"id,omitempty"`
	UnionID     string      `json:"unionId,omitempty"`
	StripeID    string      `json:"stripeId,omitempty"`
	Email       string      `json:"email,omitempty"`
	IsVerified  bool        `json:"isVerified"`
	UserName    string      `json:"userName,omitempty"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
	Wechat      Wechat      `json:"wechat"`
	LoginMethod LoginMethod `json:"loginMethod,omitempty"`
	Membership  Membership  `json:"membership"`
}

// IsLinked はメールIDとWechat IDの両方を持つかどうかを返す。
func (a Account) IsLinked() bool {
	return a.FtcID != "" && a.UnionID != ""
}

// IsWxOnly はWechat IDのみを持つかどうかを返す。
func (a Account) IsWxOnly() bool {
	return a.UnionID != "" && a.FtcID == ""
}

// IsFtcOnly はメールIDのみを持つかどうかを返す。
func (a Account) IsFtcOnly() bool {
	return a.FtcID != "" && a.UnionID == ""
}

// IsEqual は2つのアカウントが同じメールIDを共有するかどうかを返す。
// どちらかがメールIDを持たない場合は等しくないとみなす。
func (a Account) IsEqual(other Account) bool {
	return a.FtcID != "" && a.FtcID == other.FtcID
}

// IsValid は認証済みアカウントとして整合しているかどうかを返す。
// 少なくとも1つのIDを持ち、LoginMethodが保持しているIDと一致する必要がある。
func (a Account) IsValid() bool {
	switch a.LoginMethod {
	case LoginMethodEmail:
		return a.FtcID != ""
	case LoginMethodWechat:
		return a.UnionID != ""
	default:
		return false
	}
}

// IdentityHeaders は上流API呼び出し時の相関キーとして、
// アカウントが保持しているIDのヘッダーを返す。
func (a Account) IdentityHeaders() http.Header {
	h := http.Header{}
	if a.FtcID != "" {
		h.Set(HeaderFtcID, a.FtcID)
	}
	if a.UnionID != "" {
		h.Set(HeaderUnionID, a.UnionID)
	}
	return h
}

// DisplayName は画面表示用の名前を返す。
func (a Account) DisplayName() string {
	switch {
	case a.UserName != "":
		return a.UserName
	case a.Wechat.Nickname != "":
		return a.Wechat.Nickname
	default:
		return a.Email
	}
}

// WithEmail はメールアドレスを変更したコピーを返す。
// 新しいアドレスは未認証として扱う。
func (a Account) WithEmail(email string) Account {
	a.Email = email
	a.IsVerified = false
	return a
}

// WithUserName はユーザー名を変更したコピーを返す。
func (a Account) WithUserName(name string) Account {
	a.UserName = name
	return a
}

// WithLoginMethod はログイン方法を設定したコピーを返す。
func (a Account) WithLoginMethod(m LoginMethod) Account {
	a.LoginMethod = m
	return a
}

// Credentials はメールアドレスとパスワードによるログイン・登録の入力値。
type Credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DeviceToken string `json:"deviceToken,omitempty"`
}

// ClientHeaders はブラウザ側の情報を上流APIへ伝えるためのヘッダー値。
type ClientHeaders struct {
	ClientType string
	Version    string
	UserIP     string
	UserAgent  string
}

// Header はClientHeadersをHTTPヘッダーに変換する。
func (c ClientHeaders) Header() http.Header {
	h := http.Header{}
	h.Set("X-Client-Type", c.ClientType)
	h.Set("X-Client-Version", c.Version)
	if c.UserIP != "" {
		h.Set("X-User-Ip", c.UserIP)
	}
	if c.UserAgent != "" {
		h.Set("X-User-Agent", c.UserAgent)
	}
	return h
}

// Address は郵送先住所を表す。
type Address struct {
	Country  string `json:"country,omitempty"`
	Province string `json:"province,omitempty"`
	City     string `json:"city,omitempty"`
	District string `json:"district,omitempty"`
	Street   string `json:"street,omitempty"`
	Postcode string `json:"postcode,omitempty"`
}
