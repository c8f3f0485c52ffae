package reader

import (
	"context"
	"net/http"

	"github.com/hitoshi/myftc/internal/model"
)

// ExchangeOAuthCode はWechatの認可コードを上流でログイン情報と交換する。
func (c *Client) ExchangeOAuthCode(ctx context.Context, code string, client model.ClientHeaders) (*model.WxSession, error) {
	var sess model.WxSession
	req := c.request(client.Header()).SetBody(map[string]string{"code": code})
	if _, err := c.call(ctx, "exchange_oauth_code", req, http.MethodPost, "/auth/wx/login", &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// CreateWxLinkedAccount はWechatアカウントに連携したメールアカウントを新規作成し、IDを返す。
func (c *Client) CreateWxLinkedAccount(ctx context.Context, creds model.Credentials, unionID string, client model.ClientHeaders) (string, error) {
	var id idResponse
	req := c.request(client.Header(), model.Account{UnionID: unionID}.IdentityHeaders()).SetBody(creds)
	if _, err := c.call(ctx, "create_wx_linked_account", req, http.MethodPost, "/auth/wx/signup", &id); err != nil {
		return "", err
	}
	return id.ID, nil
}

type linkParams struct {
	FtcID   string             `json:"ftcId"`
	UnionID string             `json:"unionId"`
	Anchor  model.UnlinkAnchor `json:"anchor,omitempty"`
}

// LinkAccounts はメールアカウントとWechatアカウントを連携する。
// 上流が連携を拒否した場合はUnprocessable（field: account/membership）を返す。
func (c *Client) LinkAccounts(ctx context.Context, ftcID, unionID string) error {
	req := c.request(model.Account{FtcID: ftcID, UnionID: unionID}.IdentityHeaders()).
		SetBody(linkParams{FtcID: ftcID, UnionID: unionID})
	_, err := c.call(ctx, "link_accounts", req, http.MethodPost, "/account/wx/link", nil)
	return err
}

// UnlinkAccounts は連携を解除する。anchorは会員権を保持する側。
func (c *Client) UnlinkAccounts(ctx context.Context, ftcID, unionID string, anchor model.UnlinkAnchor) error {
	req := c.request(model.Account{FtcID: ftcID, UnionID: unionID}.IdentityHeaders()).
		SetBody(linkParams{FtcID: ftcID, UnionID: unionID, Anchor: anchor})
	_, err := c.call(ctx, "unlink_accounts", req, http.MethodPost, "/account/wx/unlink", nil)
	return err
}
