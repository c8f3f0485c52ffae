// Package handler はHTTPハンドラーを提供する。
//
// 各ハンドラーは 入力の検証 → 上流APIの呼び出し → 表示 の順に処理し、
// 表示はview.Pageを組み立ててPresenterに渡す。
package handler

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hitoshi/myftc/internal/middleware"
	"github.com/hitoshi/myftc/internal/model"
	"github.com/hitoshi/myftc/internal/reader"
	"github.com/hitoshi/myftc/internal/session"
	"github.com/hitoshi/myftc/internal/validation"
	"github.com/hitoshi/myftc/internal/view"
)

const (
	loginPath   = "/login"
	profilePath = "/profile"
	accountPath = "/account"
	mergePath   = "/account/bind/merge"
)

// Presenter はページ描画とエラー表示に共通する処理をまとめる。
type Presenter struct {
	renderer *view.Renderer
	messages *view.Messages
	now      func() time.Time
}

// NewPresenter はPresenterを生成する。
func NewPresenter(renderer *view.Renderer, messages *view.Messages) *Presenter {
	return &Presenter{renderer: renderer, messages: messages, now: time.Now}
}

// page はリクエストのセッションとCSRFトークンを埋めたPageを返す。
func (p *Presenter) page(r *http.Request, title string) view.Page {
	pg := view.Page{
		Title:     title,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}
	if s, ok := session.FromContext(r.Context()); ok {
		pg.Account = s.Account()
	}
	return pg
}

// flash はフラグが立っていれば消費してその文言を返す。
func (p *Presenter) flash(s *session.State, flags ...session.Flag) string {
	for _, f := range flags {
		if s.ConsumeFlag(f) {
			return p.messages.Flash(f)
		}
	}
	return ""
}

func (p *Presenter) render(w http.ResponseWriter, status int, name string, pg view.Page) {
	p.renderer.Render(w, status, name, pg)
}

// renderForm は検証エラーのあるフォームを再表示する。
func (p *Presenter) renderForm(w http.ResponseWriter, r *http.Request, name, title string, form any, errs validation.FieldErrors) {
	pg := p.page(r, title)
	pg.Form = form
	pg.Errors = p.messages.FieldErrors(errs)
	p.render(w, http.StatusBadRequest, name, pg)
}

// WriteError はエラーページを描画する。middleware.ErrorWriterとして使える。
func (p *Presenter) WriteError(w http.ResponseWriter, r *http.Request, status int, apiErr *model.APIError) {
	pg := p.page(r, http.StatusText(status))
	pg.Error = apiErr.Message
	pg.Data = view.ErrorData{Status: status, Action: apiErr.Action}
	p.render(w, status, "error", pg)
}

// NotFound は404ページを描画する。
func (p *Presenter) NotFound(w http.ResponseWriter, r *http.Request) {
	p.WriteError(w, r, http.StatusNotFound, model.NewNotFoundError())
}

// upstreamFailure は上流APIのエラーをエラーページとして描画する。
// 404以外の分類不能なエラーは502として扱う。
func (p *Presenter) upstreamFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	if reader.IsNotFound(err) {
		p.WriteError(w, r, http.StatusNotFound, model.NewAccountNotFoundError())
		return
	}

	slog.Error("upstream call failed",
		slog.String("operation", op),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	status := http.StatusBadGateway
	if _, ok := reader.AsUnprocessable(err); ok {
		status = http.StatusUnprocessableEntity
	}
	p.WriteError(w, r, status, model.NewUpstreamError(p.messages.Upstream(err)))
}

// upstreamFieldError は上流APIの422エラーをフォームのフィールドエラーに変換する。
// フィールドがフォームにない場合はページ全体のエラーとして返す。
func (p *Presenter) upstreamFieldError(err error, fields ...string) (map[string]string, string) {
	e, ok := reader.AsUnprocessable(err)
	if !ok {
		return nil, p.messages.Upstream(err)
	}
	for _, f := range fields {
		if e.Field == f {
			return map[string]string{f: p.messages.Upstream(err)}, ""
		}
	}
	return nil, p.messages.Upstream(err)
}

// renderCredentialError は認証失敗をフォームに表示する。
// 404と403は資格情報の誤り、422はフィールドエラー、それ以外は上流のメッセージを表示する。
func (p *Presenter) renderCredentialError(w http.ResponseWriter, r *http.Request, name, title string, form any, err error) {
	pg := p.page(r, title)
	pg.Form = form

	status := http.StatusBadRequest
	switch {
	case reader.IsNotFound(err), reader.IsForbidden(err):
		pg.Error = p.messages.Text(view.MsgCredentialsInvalid)
	default:
		pg.Errors, pg.Error = p.upstreamFieldError(err, "email", "password")
		if _, ok := reader.AsUnprocessable(err); !ok {
			status = http.StatusBadGateway
			slog.Error("authentication failed", slog.String("error", err.Error()))
		}
	}
	p.render(w, status, name, pg)
}

func (p *Presenter) today() model.Date {
	return model.DateOf(p.now())
}

// clientHeaders はブラウザの情報を上流APIに伝えるヘッダー値を組み立てる。
func clientHeaders(r *http.Request, version string) model.ClientHeaders {
	return model.ClientHeaders{
		ClientType: "web",
		Version:    version,
		UserIP:     remoteIP(r),
		UserAgent:  r.UserAgent(),
	}
}

// completeLogin はログイン後の遷移先にリダイレクトする。
// 保留中のサードパーティ認可リクエストがあれば1回だけそちらを優先する。
func completeLogin(w http.ResponseWriter, r *http.Request, s *session.State) {
	if req := s.ConsumePendingAuthorize(); req != nil {
		http.Redirect(w, r, authorizePath+"?"+req.Query().Encode(), http.StatusFound)
		return
	}
	http.Redirect(w, r, profilePath, http.StatusFound)
}

// remoteIP はRemoteAddrからポートを除いたIPを返す。
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
