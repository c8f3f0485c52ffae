package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/myftc/internal/linking"
	"github.com/hitoshi/myftc/internal/metrics"
	"github.com/hitoshi/myftc/internal/model"
	"github.com/hitoshi/myftc/internal/reader"
	"github.com/hitoshi/myftc/internal/session"
	"github.com/hitoshi/myftc/internal/validation"
	"github.com/hitoshi/myftc/internal/view"
)

// LinkServiceInterface はアカウント連携ハンドラーが必要とする上流APIの操作。
type LinkServiceInterface interface {
	FetchFtcAccount(ctx context.Context, ftcID string) (*model.Account, error)
	FetchWxAccount(ctx context.Context, unionID string) (*model.Account, error)
	Refresh(ctx context.Context, a model.Account) (*model.Account, error)
	Authenticate(ctx context.Context, creds model.Credentials, client model.ClientHeaders) (*model.Account, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateWxLinkedAccount(ctx context.Context, creds model.Credentials, unionID string, client model.ClientHeaders) (string, error)
	LinkAccounts(ctx context.Context, ftcID, unionID string) error
	UnlinkAccounts(ctx context.Context, ftcID, unionID string, anchor model.UnlinkAnchor) error
}

var _ LinkServiceInterface = (*reader.Client)(nil)

// LinkHandler はメールアカウントとWechatアカウントの連携・解除のHTTPハンドラー。
// すべてのルートはログイン必須。
type LinkHandler struct {
	*Presenter
	service       LinkServiceInterface
	collector     metrics.MetricsCollector
	clientVersion string
}

// NewLinkHandler はLinkHandlerを生成する。
func NewLinkHandler(p *Presenter, service LinkServiceInterface, collector metrics.MetricsCollector, clientVersion string) *LinkHandler {
	return &LinkHandler{
		Presenter:     p,
		service:       service,
		collector:     collector,
		clientVersion: clientVersion,
	}
}

// MergeConfirm は連携確認ページを表示する。
// 連携直後（linkedフラグあり）は完了画面を表示する。
// GET /account/bind/merge
func (h *LinkHandler) MergeConfirm(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())

	if s.ConsumeFlag(session.FlagLinked) {
		pg := h.page(r, "绑定账号")
		pg.Flash = h.messages.Flash(session.FlagLinked)
		pg.Data = view.MergeData{Success: true}
		h.render(w, http.StatusOK, "bind_merge", pg)
		return
	}

	target := s.PendingLinkTarget()
	if target == "" {
		h.WriteError(w, r, http.StatusNotFound, model.NewLinkTargetMissingError())
		return
	}

	ftc, wx, err := h.resolvePair(r.Context(), *s.Account(), target)
	if err != nil {
		h.upstreamFailure(w, r, "resolve_link_pair", err)
		return
	}

	decision := linking.Evaluate(*ftc, *wx, h.today())
	data := view.MergeData{Ftc: *ftc, Wx: *wx, TargetID: target}
	if decision.Allowed {
		h.collector.RecordLinkDecision("allowed")
	} else {
		h.collector.RecordLinkDecision(string(decision.Reason))
		data.Denied = h.messages.LinkDenied(decision.Reason)
	}

	pg := h.page(r, "绑定账号")
	pg.Data = data
	h.render(w, http.StatusOK, "bind_merge", pg)
}

// Merge は連携を実行し、完了画面へリダイレクトする。
// POST /account/bind/merge
func (h *LinkHandler) Merge(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())

	var form validation.MergeForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}

	// 完了後の再送信ではセッションの連携対象が消えている
	target := s.PendingLinkTarget()
	if target == "" || validation.Validate(form) != nil || form.TargetID != target {
		h.WriteError(w, r, http.StatusNotFound, model.NewLinkTargetMissingError())
		return
	}

	acct := *s.Account()
	ftcID, unionID := linkPair(acct, target)
	if err := h.service.LinkAccounts(r.Context(), ftcID, unionID); err != nil {
		h.upstreamFailure(w, r, "link_accounts", err)
		return
	}

	slog.Info("accounts linked",
		slog.String("ftc_id", ftcID),
		slog.String("union_id", unionID),
	)
	s.ClearPendingLinkTarget()

	// 完了表示はセッションのアカウントを更新できた場合に限る
	fresh, err := h.service.Refresh(r.Context(), acct)
	if err != nil {
		h.upstreamFailure(w, r, "refresh_account", err)
		return
	}
	s.SetAccount(*fresh)
	s.SetFlag(session.FlagLinked)
	http.Redirect(w, r, mergePath, http.StatusFound)
}

// resolvePair はログイン中のアカウントと連携対象からメール側とWechat側のアカウントを取得する。
// Wechatでログイン中なら対象はメールID、そうでなければUnionID。
func (h *LinkHandler) resolvePair(ctx context.Context, acct model.Account, target string) (ftc, wx *model.Account, err error) {
	if acct.LoginMethod == model.LoginMethodWechat {
		if wx, err = h.service.FetchWxAccount(ctx, acct.UnionID); err != nil {
			return nil, nil, err
		}
		if ftc, err = h.service.FetchFtcAccount(ctx, target); err != nil {
			return nil, nil, err
		}
		return ftc, wx, nil
	}

	if ftc, err = h.service.FetchFtcAccount(ctx, acct.FtcID); err != nil {
		return nil, nil, err
	}
	if wx, err = h.service.FetchWxAccount(ctx, target); err != nil {
		return nil, nil, err
	}
	return ftc, wx, nil
}

// linkPair は連携APIに渡す (メールID, UnionID) の組を返す。
func linkPair(acct model.Account, target string) (ftcID, unionID string) {
	if acct.LoginMethod == model.LoginMethodWechat {
		return target, acct.UnionID
	}
	return acct.FtcID, target
}

// requireLinked は連携済みのアカウントを返す。
func (h *LinkHandler) requireLinked(w http.ResponseWriter, r *http.Request) (*model.Account, bool) {
	acct := session.MustFromContext(r.Context()).Account()
	if acct == nil || !acct.IsLinked() {
		h.NotFound(w, r)
		return nil, false
	}
	return acct, true
}

// requireWxOnly はWechatのみのアカウントを返す。メール連携の入口で使う。
func (h *LinkHandler) requireWxOnly(w http.ResponseWriter, r *http.Request) (*model.Account, bool) {
	acct := session.MustFromContext(r.Context()).Account()
	if acct == nil || !acct.IsWxOnly() {
		h.NotFound(w, r)
		return nil, false
	}
	return acct, true
}

func unbindData(m model.Membership) view.UnbindData {
	return view.UnbindData{
		Membership:   m,
		ForcedFtc:    m.Exists() && m.IsFtcChannel(),
		ChooseAnchor: m.Exists() && !m.IsFtcChannel(),
	}
}

// UnlinkForm は連携解除ページを表示する。
// GET /account/unbind
func (h *LinkHandler) UnlinkForm(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.requireLinked(w, r)
	if !ok {
		return
	}
	pg := h.page(r, "解除绑定")
	pg.Data = unbindData(acct.Membership)
	h.render(w, http.StatusOK, "unbind", pg)
}

// Unlink は連携を解除する。会員権がある場合は保持する側を検証してから送信する。
// POST /account/unbind
func (h *LinkHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.requireLinked(w, r)
	if !ok {
		return
	}
	s := session.MustFromContext(r.Context())

	var form validation.UnlinkForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}

	renderAnchorError := func(errs map[string]string) {
		pg := h.page(r, "解除绑定")
		pg.Data = unbindData(acct.Membership)
		pg.Errors = errs
		h.render(w, http.StatusBadRequest, "unbind", pg)
	}

	anchor, err := linking.SelectUnlinkAnchor(acct.Membership, form.Anchor)
	if err != nil {
		renderAnchorError(map[string]string{"anchor": h.messages.Anchor(err)})
		return
	}

	if err := h.service.UnlinkAccounts(r.Context(), acct.FtcID, acct.UnionID, anchor); err != nil {
		if _, ok := reader.AsUnprocessable(err); ok {
			renderAnchorError(map[string]string{"anchor": h.messages.Upstream(err)})
			return
		}
		h.upstreamFailure(w, r, "unlink_accounts", err)
		return
	}

	fresh, err := h.service.Refresh(r.Context(), *acct)
	if err != nil {
		h.upstreamFailure(w, r, "refresh_account", err)
		return
	}
	s.SetAccount(*fresh)
	s.SetFlag(session.FlagUnlinked)
	http.Redirect(w, r, accountPath, http.StatusFound)
}

// BindEmailForm はWechatのみのアカウントにメールを連携するための入力フォームを表示する。
// GET /account/bind/email
func (h *LinkHandler) BindEmailForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireWxOnly(w, r); !ok {
		return
	}
	pg := h.page(r, "绑定邮箱")
	pg.Form = validation.EmailForm{}
	h.render(w, http.StatusOK, "bind_email", pg)
}

// BindEmail は入力されたメールが登録済みかどうかでログインか新規登録へ振り分ける。
// POST /account/bind/email
func (h *LinkHandler) BindEmail(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireWxOnly(w, r); !ok {
		return
	}

	var form validation.EmailForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		h.renderForm(w, r, "bind_email", "绑定邮箱", form, errs)
		return
	}

	exists, err := h.service.EmailExists(r.Context(), form.Email)
	if err != nil {
		h.upstreamFailure(w, r, "email_exists", err)
		return
	}

	next := "/account/bind/signup"
	if exists {
		next = "/account/bind/login"
	}
	http.Redirect(w, r, next+"?"+url.Values{"email": {form.Email}}.Encode(), http.StatusFound)
}

// BindLoginForm は既存のメールアカウントの確認フォームを表示する。
// GET /account/bind/login?email=xxx
func (h *LinkHandler) BindLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireWxOnly(w, r); !ok {
		return
	}
	var q validation.EmailForm
	if err := validation.DecodeQuery(r, &q); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	pg := h.page(r, "验证邮箱账号")
	pg.Form = validation.LoginForm{Email: q.Email}
	h.render(w, http.StatusOK, "bind_login", pg)
}

// BindLogin は既存のメールアカウントを認証し、連携確認へ進む。
// POST /account/bind/login
func (h *LinkHandler) BindLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireWxOnly(w, r); !ok {
		return
	}
	s := session.MustFromContext(r.Context())

	var form validation.LoginForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		h.renderForm(w, r, "bind_login", "验证邮箱账号", form, errs)
		return
	}

	ftc, err := h.service.Authenticate(r.Context(), form.Credentials(), clientHeaders(r, h.clientVersion))
	if err != nil {
		h.renderCredentialError(w, r, "bind_login", "验证邮箱账号", form, err)
		return
	}

	s.SetPendingLinkTarget(ftc.FtcID)
	http.Redirect(w, r, mergePath, http.StatusFound)
}

// BindSignupForm はWechatに連携する新規メールアカウントの登録フォームを表示する。
// GET /account/bind/signup?email=xxx
func (h *LinkHandler) BindSignupForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireWxOnly(w, r); !ok {
		return
	}
	var q validation.EmailForm
	if err := validation.DecodeQuery(r, &q); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	pg := h.page(r, "创建邮箱账号")
	pg.Form = validation.SignupForm{Email: q.Email}
	h.render(w, http.StatusOK, "bind_signup", pg)
}

// BindSignup は新規メールアカウントを作成して現在のWechatに連携する。
// 上流APIが作成と連携を同時に行うため確認画面は経由しない。
// POST /account/bind/signup
func (h *LinkHandler) BindSignup(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.requireWxOnly(w, r)
	if !ok {
		return
	}
	s := session.MustFromContext(r.Context())

	var form validation.SignupForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		h.renderForm(w, r, "bind_signup", "创建邮箱账号", form, errs)
		return
	}

	if _, err := h.service.CreateWxLinkedAccount(r.Context(), form.Credentials(), acct.UnionID, clientHeaders(r, h.clientVersion)); err != nil {
		if _, ok := reader.AsUnprocessable(err); !ok {
			h.upstreamFailure(w, r, "create_wx_linked_account", err)
			return
		}
		pg := h.page(r, "创建邮箱账号")
		pg.Form = form
		pg.Errors, pg.Error = h.upstreamFieldError(err, "email", "password")
		h.render(w, http.StatusBadRequest, "bind_signup", pg)
		return
	}

	fresh, err := h.service.Refresh(r.Context(), *acct)
	if err != nil {
		h.upstreamFailure(w, r, "refresh_account", err)
		return
	}
	s.SetAccount(*fresh)
	s.SetFlag(session.FlagLinked)
	http.Redirect(w, r, mergePath, http.StatusFound)
}
