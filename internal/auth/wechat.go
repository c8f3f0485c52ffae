package auth

import (
	"net/url"
)

const (
	defaultWechatAuthURL = "https://open.weixin.qq.com/connect/qrconnect"
	wechatScope          = "snsapi_login"
)

// WechatConfig はWechatウェブ認可の設定。
type WechatConfig struct {
	AppID       string
	RedirectURL string

	// テスト用にオーバーライド可能なURL
	AuthURL string
}

// authorizeURL はWechatの認可URLを生成する。
// Wechatはフラグメント "#wechat_redirect" を要求する。
func (c WechatConfig) authorizeURL(state string) string {
	authURL := c.AuthURL
	if authURL == "" {
		authURL = defaultWechatAuthURL
	}
	params := url.Values{
		"appid":         {c.AppID},
		"redirect_uri":  {c.RedirectURL},
		"response_type": {"code"},
		"scope":         {wechatScope},
		"state":         {state},
	}
	return authURL + "?" + params.Encode() + "#wechat_redirect"
}
