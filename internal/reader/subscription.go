package reader

import (
	"context"
	"net/http"

	"github.com/hitoshi/myftc/internal/model"
)

// FetchPaywall は購読ページの商品一覧を取得する。
func (c *Client) FetchPaywall(ctx context.Context) (*model.Paywall, error) {
	var pw model.Paywall
	if _, err := c.call(ctx, "fetch_paywall", c.request(), http.MethodGet, "/paywall", &pw); err != nil {
		return nil, err
	}
	return &pw, nil
}

// CreateOrder は注文を作成し、決済の開始情報を返す。
func (c *Client) CreateOrder(ctx context.Context, a model.Account, plan model.Plan, method model.PayMethod, client model.ClientHeaders) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	req := c.request(client.Header(), a.IdentityHeaders()).
		SetPathParams(map[string]string{
			"method": string(method),
			"tier":   string(plan.Tier),
			"cycle":  string(plan.Cycle),
		})
	if _, err := c.call(ctx, "create_order", req, http.MethodPost, "/orders/{method}/{tier}/{cycle}", &intent); err != nil {
		return nil, err
	}
	if intent.PayMethod == "" {
		intent.PayMethod = method
	}
	return &intent, nil
}

// CreateOAuthCode はサードパーティクライアント向けの認可コードを発行する。
func (c *Client) CreateOAuthCode(ctx context.Context, authReq model.AuthorizeRequest, ftcID string) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	req := c.request(model.Account{FtcID: ftcID}.IdentityHeaders()).SetBody(authReq)
	if _, err := c.call(ctx, "create_oauth_code", req, http.MethodPost, "/oauth/code", &out); err != nil {
		return "", err
	}
	return out.Code, nil
}
