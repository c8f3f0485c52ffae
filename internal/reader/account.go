package reader

import (
	"context"
	"net/http"

	"github.com/hitoshi/myftc/internal/model"
)

type idResponse struct {
	ID string `json:"id"`
}

// FetchFtcAccount はメールアカウントIDでアカウントを取得する。
func (c *Client) FetchFtcAccount(ctx context.Context, ftcID string) (*model.Account, error) {
	var a model.Account
	req := c.request(model.Account{FtcID: ftcID}.IdentityHeaders())
	if _, err := c.call(ctx, "fetch_ftc_account", req, http.MethodGet, "/account", &a); err != nil {
		return nil, err
	}
	a.LoginMethod = model.LoginMethodEmail
	return &a, nil
}

// FetchWxAccount はWechatのUnionIDでアカウントを取得する。
func (c *Client) FetchWxAccount(ctx context.Context, unionID string) (*model.Account, error) {
	var a model.Account
	req := c.request(model.Account{UnionID: unionID}.IdentityHeaders())
	if _, err := c.call(ctx, "fetch_wx_account", req, http.MethodGet, "/account/wx", &a); err != nil {
		return nil, err
	}
	a.LoginMethod = model.LoginMethodWechat
	return &a, nil
}

// Refresh はログイン方法に応じてアカウントを再取得する。
// 取得結果のLoginMethodは元のアカウントのものを引き継ぐ。
func (c *Client) Refresh(ctx context.Context, a model.Account) (*model.Account, error) {
	var (
		fresh *model.Account
		err   error
	)
	if a.LoginMethod == model.LoginMethodWechat {
		fresh, err = c.FetchWxAccount(ctx, a.UnionID)
	} else {
		fresh, err = c.FetchFtcAccount(ctx, a.FtcID)
	}
	if err != nil {
		return nil, err
	}
	fresh.LoginMethod = a.LoginMethod
	return fresh, nil
}

// Authenticate はメールアドレスとパスワードで認証し、アカウントを返す。
// 資格情報が誤っている場合はNotFoundまたはForbiddenを返す。
func (c *Client) Authenticate(ctx context.Context, creds model.Credentials, client model.ClientHeaders) (*model.Account, error) {
	var id idResponse
	req := c.request(client.Header()).SetBody(creds)
	if _, err := c.call(ctx, "authenticate", req, http.MethodPost, "/auth/email/login", &id); err != nil {
		return nil, err
	}
	return c.FetchFtcAccount(ctx, id.ID)
}

// EmailExists はメールアドレスが登録済みかどうかを返す。
// 上流は登録済みなら204、未登録なら404を返す。
func (c *Client) EmailExists(ctx context.Context, email string) (bool, error) {
	req := c.request().SetQueryParam("v", email)
	_, err := c.call(ctx, "email_exists", req, http.MethodGet, "/auth/email/exists", nil)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateFtcAccount はメールアカウントを新規作成し、IDを返す。
func (c *Client) CreateFtcAccount(ctx context.Context, creds model.Credentials, client model.ClientHeaders) (string, error) {
	var id idResponse
	req := c.request(client.Header()).SetBody(creds)
	if _, err := c.call(ctx, "create_ftc_account", req, http.MethodPost, "/auth/email/signup", &id); err != nil {
		return "", err
	}
	return id.ID, nil
}

// UpdateEmail はメールアドレスを変更する。
func (c *Client) UpdateEmail(ctx context.Context, ftcID, email string) error {
	req := c.request(model.Account{FtcID: ftcID}.IdentityHeaders()).
		SetBody(map[string]string{"email": email})
	_, err := c.call(ctx, "update_email", req, http.MethodPatch, "/account/email", nil)
	return err
}

// UpdatePassword はパスワードを変更する。現在のパスワードが誤っている場合はForbiddenを返す。
func (c *Client) UpdatePassword(ctx context.Context, ftcID, oldPassword, newPassword string) error {
	req := c.request(model.Account{FtcID: ftcID}.IdentityHeaders()).
		SetBody(map[string]string{"oldPassword": oldPassword, "password": newPassword})
	_, err := c.call(ctx, "update_password", req, http.MethodPatch, "/account/password", nil)
	return err
}

// UpdateUserName はユーザー名を変更する。
func (c *Client) UpdateUserName(ctx context.Context, ftcID, userName string) error {
	req := c.request(model.Account{FtcID: ftcID}.IdentityHeaders()).
		SetBody(map[string]string{"userName": userName})
	_, err := c.call(ctx, "update_user_name", req, http.MethodPatch, "/account/name", nil)
	return err
}

// FetchAddress は郵送先住所を取得する。
func (c *Client) FetchAddress(ctx context.Context, ftcID string) (*model.Address, error) {
	var addr model.Address
	req := c.request(model.Account{FtcID: ftcID}.IdentityHeaders())
	if _, err := c.call(ctx, "fetch_address", req, http.MethodGet, "/account/address", &addr); err != nil {
		return nil, err
	}
	return &addr, nil
}

// UpdateAddress は郵送先住所を更新する。
func (c *Client) UpdateAddress(ctx context.Context, ftcID string, addr model.Address) error {
	req := c.request(model.Account{FtcID: ftcID}.IdentityHeaders()).SetBody(addr)
	_, err := c.call(ctx, "update_address", req, http.MethodPatch, "/account/address", nil)
	return err
}

// RequestVerification は認証メールの再送を依頼する。
func (c *Client) RequestVerification(ctx context.Context, ftcID string) error {
	req := c.request(model.Account{FtcID: ftcID}.IdentityHeaders())
	_, err := c.call(ctx, "request_verification", req, http.MethodPost, "/account/request-verification", nil)
	return err
}

// VerifyEmail はメール内リンクのトークンでメールアドレスを認証する。
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	req := c.request().SetPathParam("token", token)
	_, err := c.call(ctx, "verify_email", req, http.MethodPut, "/auth/email/verification/{token}", nil)
	return err
}

// RequestPasswordReset はパスワード再設定メールの送信を依頼する。
// 未登録のアドレスにはNotFoundを返す。
func (c *Client) RequestPasswordReset(ctx context.Context, email string, client model.ClientHeaders) error {
	req := c.request(client.Header()).SetBody(map[string]string{"email": email})
	_, err := c.call(ctx, "request_password_reset", req, http.MethodPost, "/auth/password-reset/letter", nil)
	return err
}

// VerifyPasswordResetToken はパスワード再設定トークンを検証し、対象のメールアドレスを返す。
func (c *Client) VerifyPasswordResetToken(ctx context.Context, token string) (string, error) {
	var out struct {
		Email string `json:"email"`
	}
	req := c.request().SetPathParam("token", token)
	if _, err := c.call(ctx, "verify_password_reset_token", req, http.MethodGet, "/auth/password-reset/tokens/{token}", &out); err != nil {
		return "", err
	}
	return out.Email, nil
}

// ResetPassword はトークンを使ってパスワードを再設定する。
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	req := c.request().SetBody(map[string]string{"token": token, "password": password})
	_, err := c.call(ctx, "reset_password", req, http.MethodPost, "/auth/password-reset", nil)
	return err
}
