package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/myftc/internal/model"
	"github.com/hitoshi/myftc/internal/reader"
	"github.com/hitoshi/myftc/internal/session"
	"github.com/hitoshi/myftc/internal/validation"
	"github.com/hitoshi/myftc/internal/view"
)

// AccountServiceInterface はアカウント設定ハンドラーが必要とする上流APIの操作。
type AccountServiceInterface interface {
	Refresh(ctx context.Context, a model.Account) (*model.Account, error)
	UpdateEmail(ctx context.Context, ftcID, email string) error
	UpdatePassword(ctx context.Context, ftcID, oldPassword, newPassword string) error
	UpdateUserName(ctx context.Context, ftcID, userName string) error
	FetchAddress(ctx context.Context, ftcID string) (*model.Address, error)
	UpdateAddress(ctx context.Context, ftcID string, addr model.Address) error
	RequestVerification(ctx context.Context, ftcID string) error
}

var _ AccountServiceInterface = (*reader.Client)(nil)

// AccountHandler はログイン中のアカウント設定・プロフィール・会員情報のHTTPハンドラー。
// すべてのルートはログイン必須。
type AccountHandler struct {
	*Presenter
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(p *Presenter, service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{Presenter: p, service: service}
}

// requireFtc はメールIDを持つアカウントを返す。
// Wechatのみのアカウントの場合は404を描画してfalseを返す。
func (h *AccountHandler) requireFtc(w http.ResponseWriter, r *http.Request) (*model.Account, bool) {
	acct := session.MustFromContext(r.Context()).Account()
	if acct == nil || acct.FtcID == "" {
		h.WriteError(w, r, http.StatusNotFound, model.NewEmailAccountRequiredError())
		return nil, false
	}
	return acct, true
}

// Show はアカウント設定ページを表示する。
// GET /account
func (h *AccountHandler) Show(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())
	pg := h.page(r, "账号安全")
	pg.Flash = h.flash(s, session.FlagLinked, session.FlagUnlinked, session.FlagSaved, session.FlagLetterSent, session.FlagVerified)
	h.render(w, http.StatusOK, "account", pg)
}

// UpdateEmail はメールアドレスを変更する。新しいアドレスは未確認になる。
// POST /account/email
func (h *AccountHandler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.requireFtc(w, r)
	if !ok {
		return
	}
	s := session.MustFromContext(r.Context())

	var form validation.EmailForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		h.renderForm(w, r, "account", "账号安全", form, errs)
		return
	}

	if err := h.service.UpdateEmail(r.Context(), acct.FtcID, form.Email); err != nil {
		h.accountFormFailure(w, r, "update_email", err, "email")
		return
	}

	s.SetAccount(acct.WithEmail(form.Email))
	s.SetFlag(session.FlagSaved)
	http.Redirect(w, r, accountPath, http.StatusFound)
}

// UpdatePassword はパスワードを変更する。
// POST /account/password
func (h *AccountHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.requireFtc(w, r)
	if !ok {
		return
	}
	s := session.MustFromContext(r.Context())

	var form validation.PasswordUpdateForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		h.renderForm(w, r, "account", "账号安全", nil, errs)
		return
	}

	if err := h.service.UpdatePassword(r.Context(), acct.FtcID, form.OldPassword, form.Password); err != nil {
		if reader.IsForbidden(err) {
			pg := h.page(r, "账号安全")
			pg.Errors = map[string]string{"oldPassword": h.messages.Text(view.MsgPasswordMismatched)}
			h.render(w, http.StatusBadRequest, "account", pg)
			return
		}
		h.accountFormFailure(w, r, "update_password", err, "password")
		return
	}

	s.SetFlag(session.FlagSaved)
	http.Redirect(w, r, accountPath, http.StatusFound)
}

// RequestVerification は確認メールを再送する。
// POST /account/request-verification
func (h *AccountHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.requireFtc(w, r)
	if !ok {
		return
	}
	s := session.MustFromContext(r.Context())

	if err := h.service.RequestVerification(r.Context(), acct.FtcID); err != nil {
		h.upstreamFailure(w, r, "request_verification", err)
		return
	}

	s.SetFlag(session.FlagLetterSent)
	http.Redirect(w, r, accountPath, http.StatusFound)
}

// accountFormFailure は422をアカウントページのフィールドエラーとして再表示し、
// それ以外はエラーページを描画する。
func (h *AccountHandler) accountFormFailure(w http.ResponseWriter, r *http.Request, op string, err error, fields ...string) {
	if _, ok := reader.AsUnprocessable(err); !ok {
		h.upstreamFailure(w, r, op, err)
		return
	}
	pg := h.page(r, "账号安全")
	pg.Errors, pg.Error = h.upstreamFieldError(err, fields...)
	h.render(w, http.StatusBadRequest, "account", pg)
}

// Profile はプロフィールページを表示する。
// GET /profile
func (h *AccountHandler) Profile(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())
	pg := h.page(r, "个人信息")
	pg.Flash = h.flash(s, session.FlagSaved)
	if acct := s.Account(); acct != nil {
		pg.Form = validation.UserNameForm{UserName: acct.UserName}
	}
	h.render(w, http.StatusOK, "profile", pg)
}

// UpdateUserName はユーザー名を変更する。
// POST /profile/name
func (h *AccountHandler) UpdateUserName(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.requireFtc(w, r)
	if !ok {
		return
	}
	s := session.MustFromContext(r.Context())

	var form validation.UserNameForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		h.renderForm(w, r, "profile", "个人信息", form, errs)
		return
	}

	if err := h.service.UpdateUserName(r.Context(), acct.FtcID, form.UserName); err != nil {
		if _, ok := reader.AsUnprocessable(err); !ok {
			h.upstreamFailure(w, r, "update_user_name", err)
			return
		}
		pg := h.page(r, "个人信息")
		pg.Form = form
		pg.Errors, pg.Error = h.upstreamFieldError(err, "userName")
		h.render(w, http.StatusBadRequest, "profile", pg)
		return
	}

	s.SetAccount(acct.WithUserName(form.UserName))
	s.SetFlag(session.FlagSaved)
	http.Redirect(w, r, profilePath, http.StatusFound)
}

// AddressForm は住所の編集フォームを表示する。
// GET /profile/address
func (h *AccountHandler) AddressForm(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.requireFtc(w, r)
	if !ok {
		return
	}

	addr, err := h.service.FetchAddress(r.Context(), acct.FtcID)
	if err != nil {
		h.upstreamFailure(w, r, "fetch_address", err)
		return
	}

	pg := h.page(r, "收货地址")
	pg.Form = validation.AddressFormOf(*addr)
	h.render(w, http.StatusOK, "address", pg)
}

// UpdateAddress は住所を保存する。
// POST /profile/address
func (h *AccountHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.requireFtc(w, r)
	if !ok {
		return
	}
	s := session.MustFromContext(r.Context())

	var form validation.AddressForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		h.renderForm(w, r, "address", "收货地址", form, errs)
		return
	}

	if err := h.service.UpdateAddress(r.Context(), acct.FtcID, form.Address()); err != nil {
		if _, ok := reader.AsUnprocessable(err); !ok {
			h.upstreamFailure(w, r, "update_address", err)
			return
		}
		pg := h.page(r, "收货地址")
		pg.Form = form
		pg.Errors, pg.Error = h.upstreamFieldError(err, "country", "province", "city", "district", "street", "postcode")
		h.render(w, http.StatusBadRequest, "address", pg)
		return
	}

	s.SetFlag(session.FlagSaved)
	http.Redirect(w, r, profilePath, http.StatusFound)
}

// Membership は最新の会員情報を取得して表示する。
// GET /membership
func (h *AccountHandler) Membership(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())

	fresh, err := h.service.Refresh(r.Context(), *s.Account())
	if err != nil {
		h.upstreamFailure(w, r, "refresh_account", err)
		return
	}
	s.SetAccount(*fresh)

	today := h.today()
	m := fresh.Membership
	pg := h.page(r, "我的会员")
	pg.Data = view.MembershipData{
		Membership:    m,
		Active:        m.IsActive(today),
		RemainingDays: m.RemainingDays(today),
	}
	h.render(w, http.StatusOK, "membership", pg)
}
