package model

import (
	"net/url"
	"time"
)

// OAuthUsage はWechat認可の目的を表す。
type OAuthUsage string

const (
	// OAuthUsageLogin は新規セッションのログインに使う。
	OAuthUsageLogin OAuthUsage = "login"
	// OAuthUsageLink はログイン済みアカウントへのWechat連携に使う。
	OAuthUsageLink OAuthUsage = "link"
)

// OAuthSession は進行中のWechat認可を1件追跡する。
// コールバック1回分のみ有効で、消費後はセッションから削除される。
type OAuthSession struct {
	State   string     `json:"state"`
	Created int64      `json:"created"` // unix秒
	Usage   OAuthUsage `json:"usage"`
}

// WxSession は上流APIが認可コードと引き換えに返すWechatログイン情報。
type WxSession struct {
	ID        string    `json:"sessionId"`
	UnionID   string    `json:"unionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuthorizeRequest はサードパーティOAuthクライアントからの認可リクエスト。
// 未ログインの場合はセッションに保存し、ログイン後に再開する。
type AuthorizeRequest struct {
	ResponseType string `json:"response_type" validate:"required,eq=code"`
	ClientID     string `json:"client_id" validate:"required,max=64"`
	RedirectURI  string `json:"redirect_uri" validate:"required,url"`
	State        string `json:"state" validate:"required,max=256"`
}

// Query は認可エンドポイントへ戻るためのクエリ文字列を返す。
func (r AuthorizeRequest) Query() url.Values {
	return url.Values{
		"response_type": {r.ResponseType},
		"client_id":     {r.ClientID},
		"redirect_uri":  {r.RedirectURI},
		"state":         {r.State},
	}
}

// SessionRecord は永続化されたセッションの1行を表す。
// Dataはエンコード済みのセッション状態。
type SessionRecord struct {
	ID        string
	Data      []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}
