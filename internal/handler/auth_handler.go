package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/myftc/internal/auth"
	"github.com/hitoshi/myftc/internal/metrics"
	"github.com/hitoshi/myftc/internal/model"
	"github.com/hitoshi/myftc/internal/reader"
	"github.com/hitoshi/myftc/internal/session"
	"github.com/hitoshi/myftc/internal/validation"
	"github.com/hitoshi/myftc/internal/view"
)

// AuthServiceInterface は認証ハンドラーが必要とする上流APIの操作。
type AuthServiceInterface interface {
	Authenticate(ctx context.Context, creds model.Credentials, client model.ClientHeaders) (*model.Account, error)
	CreateFtcAccount(ctx context.Context, creds model.Credentials, client model.ClientHeaders) (string, error)
	FetchFtcAccount(ctx context.Context, ftcID string) (*model.Account, error)
	FetchWxAccount(ctx context.Context, unionID string) (*model.Account, error)
	ExchangeOAuthCode(ctx context.Context, code string, client model.ClientHeaders) (*model.WxSession, error)
	RequestPasswordReset(ctx context.Context, email string, client model.ClientHeaders) error
	VerifyPasswordResetToken(ctx context.Context, token string) (string, error)
	ResetPassword(ctx context.Context, token, password string) error
	VerifyEmail(ctx context.Context, token string) error
}

// Handshaker はWechat認可ハンドシェイクの生成と検証を行う。
type Handshaker interface {
	CreateHandshake(usage model.OAuthUsage) (*model.OAuthSession, string, error)
	ValidateCallback(params auth.CallbackParams, sess *model.OAuthSession) (string, error)
}

var (
	_ AuthServiceInterface = (*reader.Client)(nil)
	_ Handshaker           = (*auth.Tracker)(nil)
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	ClientVersion string
	// KeepHandshake がtrueの場合、コールバック後もハンドシェイクをセッションに残す（開発環境のみ）。
	KeepHandshake bool
}

// AuthHandler はログイン・登録・Wechat認可・パスワード再設定のHTTPハンドラー。
type AuthHandler struct {
	*Presenter
	service   AuthServiceInterface
	tracker   Handshaker
	collector metrics.MetricsCollector
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(p *Presenter, service AuthServiceInterface, tracker Handshaker, collector metrics.MetricsCollector, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		Presenter: p,
		service:   service,
		tracker:   tracker,
		collector: collector,
		config:    config,
	}
}

// LoginForm はログインフォームを表示する。
// GET /login
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())
	if s.LoggedIn() {
		http.Redirect(w, r, profilePath, http.StatusFound)
		return
	}

	pg := h.page(r, "登录")
	pg.Flash = h.flash(s, session.FlagPasswordReset)
	pg.Form = validation.LoginForm{}
	h.render(w, http.StatusOK, "login", pg)
}

// Login はメールアドレスとパスワードでログインする。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())

	var form validation.LoginForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		h.renderForm(w, r, "login", "登录", form, errs)
		return
	}

	acct, err := h.service.Authenticate(r.Context(), form.Credentials(), clientHeaders(r, h.config.ClientVersion))
	if err != nil {
		h.collector.RecordLogin(string(model.LoginMethodEmail), "failure")
		h.renderCredentialError(w, r, "login", "登录", form, err)
		return
	}

	h.collector.RecordLogin(string(model.LoginMethodEmail), "success")
	s.SetAccount(acct.WithLoginMethod(model.LoginMethodEmail))
	completeLogin(w, r, s)
}

// SignupForm は新規登録フォームを表示する。
// GET /signup
func (h *AuthHandler) SignupForm(w http.ResponseWriter, r *http.Request) {
	if session.MustFromContext(r.Context()).LoggedIn() {
		http.Redirect(w, r, profilePath, http.StatusFound)
		return
	}
	pg := h.page(r, "注册")
	pg.Form = validation.SignupForm{}
	h.render(w, http.StatusOK, "signup", pg)
}

// Signup はメールアカウントを作成してログインする。
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())

	var form validation.SignupForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		h.renderForm(w, r, "signup", "注册", form, errs)
		return
	}

	id, err := h.service.CreateFtcAccount(r.Context(), form.Credentials(), clientHeaders(r, h.config.ClientVersion))
	if err != nil {
		if _, ok := reader.AsUnprocessable(err); !ok {
			h.upstreamFailure(w, r, "create_ftc_account", err)
			return
		}
		pg := h.page(r, "注册")
		pg.Form = form
		pg.Errors, pg.Error = h.upstreamFieldError(err, "email", "password")
		h.render(w, http.StatusBadRequest, "signup", pg)
		return
	}

	acct, err := h.service.FetchFtcAccount(r.Context(), id)
	if err != nil {
		h.upstreamFailure(w, r, "fetch_ftc_account", err)
		return
	}

	h.collector.RecordLogin(string(model.LoginMethodEmail), "signup")
	s.SetAccount(acct.WithLoginMethod(model.LoginMethodEmail))
	completeLogin(w, r, s)
}

// Logout はセッションを破棄してログインページにリダイレクトする。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session.MustFromContext(r.Context()).Destroy()
	http.Redirect(w, r, loginPath, http.StatusFound)
}

// WechatLogin はWechat認可を開始する。
// ログイン中の場合は連携、そうでなければログインとして扱う。
// GET /login/wechat
func (h *AuthHandler) WechatLogin(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())

	usage := model.OAuthUsageLogin
	if s.LoggedIn() {
		usage = model.OAuthUsageLink
	}

	handshake, redirectURL, err := h.tracker.CreateHandshake(usage)
	if err != nil {
		slog.Error("failed to create oauth handshake", slog.String("error", err.Error()))
		h.WriteError(w, r, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	s.SetPendingOAuth(handshake)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// WechatCallback はWechat認可のコールバックを処理する。
// GET /login/wechat/callback?code=xxx&state=yyy
func (h *AuthHandler) WechatCallback(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())

	pending := s.PendingOAuth()
	if !h.config.KeepHandshake {
		s.ClearPendingOAuth()
	}

	q := r.URL.Query()
	code, err := h.tracker.ValidateCallback(auth.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
	}, pending)
	if err != nil {
		h.collector.RecordHandshake(handshakeResult(err))
		slog.Warn("oauth callback rejected", slog.String("error", err.Error()))
		h.renderCallbackError(w, r, s, h.messages.Handshake(err))
		return
	}
	h.collector.RecordHandshake("ok")

	wxSess, err := h.service.ExchangeOAuthCode(r.Context(), code, clientHeaders(r, h.config.ClientVersion))
	if err != nil {
		slog.Error("failed to exchange oauth code", slog.String("error", err.Error()))
		h.renderCallbackError(w, r, s, h.messages.Upstream(err))
		return
	}

	if pending.Usage == model.OAuthUsageLink {
		acct := s.Account()
		// Wechatでログイン中のセッションにWechatを連携することはできない
		if acct == nil || acct.LoginMethod == model.LoginMethodWechat {
			h.WriteError(w, r, http.StatusNotFound, model.NewWechatSessionNotLinkableError())
			return
		}
		s.SetPendingLinkTarget(wxSess.UnionID)
		http.Redirect(w, r, mergePath, http.StatusFound)
		return
	}

	acct, err := h.service.FetchWxAccount(r.Context(), wxSess.UnionID)
	if err != nil {
		h.collector.RecordLogin(string(model.LoginMethodWechat), "failure")
		h.upstreamFailure(w, r, "fetch_wx_account", err)
		return
	}

	h.collector.RecordLogin(string(model.LoginMethodWechat), "success")
	s.SetAccount(acct.WithLoginMethod(model.LoginMethodWechat))
	completeLogin(w, r, s)
}

// renderCallbackError は認可を始めたページをエラー付きで再表示する。
// ログイン中なら連携を始めたアカウントページ、そうでなければログインページ。
func (h *AuthHandler) renderCallbackError(w http.ResponseWriter, r *http.Request, s *session.State, msg string) {
	if s.LoggedIn() {
		pg := h.page(r, "账号安全")
		pg.Error = msg
		h.render(w, http.StatusBadRequest, "account", pg)
		return
	}
	pg := h.page(r, "登录")
	pg.Error = msg
	pg.Form = validation.LoginForm{}
	h.render(w, http.StatusBadRequest, "login", pg)
}

// handshakeResult はメトリクスのラベルに使う検証結果名を返す。
func handshakeResult(err error) string {
	var pmErr *auth.ParamMissingError
	switch {
	case errors.Is(err, auth.ErrSessionMissing):
		return "session_missing"
	case errors.As(err, &pmErr):
		return "param_missing"
	case errors.Is(err, auth.ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, auth.ErrHandshakeExpired):
		return "expired"
	default:
		return "error"
	}
}

// PasswordResetForm はパスワード再設定メールの送信フォームを表示する。
// GET /password-reset
func (h *AuthHandler) PasswordResetForm(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())
	pg := h.page(r, "找回密码")
	pg.Flash = h.flash(s, session.FlagLetterSent)
	pg.Form = validation.EmailForm{}
	h.render(w, http.StatusOK, "password_reset", pg)
}

// RequestPasswordReset はパスワード再設定メールを送信する。
// POST /password-reset
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())

	var form validation.EmailForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		h.renderForm(w, r, "password_reset", "找回密码", form, errs)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), form.Email, clientHeaders(r, h.config.ClientVersion)); err != nil {
		pg := h.page(r, "找回密码")
		pg.Form = form
		status := http.StatusBadRequest
		switch {
		case reader.IsNotFound(err):
			pg.Errors = map[string]string{"email": h.messages.Text(view.MsgEmailNotFound)}
		default:
			pg.Errors, pg.Error = h.upstreamFieldError(err, "email")
			if _, ok := reader.AsUnprocessable(err); !ok {
				status = http.StatusBadGateway
			}
		}
		h.render(w, status, "password_reset", pg)
		return
	}

	s.SetFlag(session.FlagLetterSent)
	http.Redirect(w, r, "/password-reset", http.StatusFound)
}

// ResetPasswordForm はメール内リンクのトークンを検証し、新しいパスワードの入力フォームを表示する。
// GET /password-reset/{token}
func (h *AuthHandler) ResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	email, err := h.service.VerifyPasswordResetToken(r.Context(), token)
	if err != nil {
		h.tokenFailure(w, r, "verify_password_reset_token", err)
		return
	}

	pg := h.page(r, "重置密码")
	pg.Form = validation.PasswordResetForm{}
	pg.Data = view.PasswordResetData{Email: email}
	h.render(w, http.StatusOK, "password_reset_token", pg)
}

// ResetPassword はトークンを使ってパスワードを再設定する。
// POST /password-reset/{token}
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())
	token := chi.URLParam(r, "token")

	var form validation.PasswordResetForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		h.renderForm(w, r, "password_reset_token", "重置密码", form, errs)
		return
	}

	if err := h.service.ResetPassword(r.Context(), token, form.Password); err != nil {
		if _, ok := reader.AsUnprocessable(err); ok {
			pg := h.page(r, "重置密码")
			pg.Errors, pg.Error = h.upstreamFieldError(err, "password")
			h.render(w, http.StatusBadRequest, "password_reset_token", pg)
			return
		}
		h.tokenFailure(w, r, "reset_password", err)
		return
	}

	s.SetFlag(session.FlagPasswordReset)
	http.Redirect(w, r, loginPath, http.StatusFound)
}

// VerifyEmail はメール内リンクのトークンでメールアドレスを確認する。
// GET /verify/email/{token}
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())
	token := chi.URLParam(r, "token")

	if err := h.service.VerifyEmail(r.Context(), token); err != nil {
		if reader.IsNotFound(err) {
			pg := h.page(r, "邮箱验证")
			pg.Error = h.messages.Text(view.MsgTokenInvalid)
			h.render(w, http.StatusNotFound, "verify_email", pg)
			return
		}
		h.upstreamFailure(w, r, "verify_email", err)
		return
	}

	acct := s.Account()
	if acct == nil || acct.FtcID == "" {
		pg := h.page(r, "邮箱验证")
		pg.Flash = h.messages.Flash(session.FlagVerified)
		h.render(w, http.StatusOK, "verify_email", pg)
		return
	}

	acct.IsVerified = true
	s.SetAccount(*acct)
	s.SetFlag(session.FlagVerified)
	http.Redirect(w, r, accountPath, http.StatusFound)
}

// tokenFailure はメール内リンクのトークンが使えない場合のエラーページを描画する。
func (h *AuthHandler) tokenFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	if reader.IsNotFound(err) {
		h.WriteError(w, r, http.StatusNotFound, model.NewTokenInvalidError())
		return
	}
	h.upstreamFailure(w, r, op, err)
}
