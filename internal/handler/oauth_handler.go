package handler

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/hitoshi/myftc/internal/model"
	"github.com/hitoshi/myftc/internal/reader"
	"github.com/hitoshi/myftc/internal/session"
	"github.com/hitoshi/myftc/internal/validation"
)

// authorizePath はサードパーティOAuthクライアント向けの認可エンドポイント。
const authorizePath = "/oauth2/authorize"

// OAuthServiceInterface は認可コード発行に必要な上流APIの操作。
type OAuthServiceInterface interface {
	CreateOAuthCode(ctx context.Context, authReq model.AuthorizeRequest, ftcID string) (string, error)
}

var _ OAuthServiceInterface = (*reader.Client)(nil)

// OAuthHandler はサードパーティOAuthクライアントに認可コードを発行するHTTPハンドラー。
type OAuthHandler struct {
	*Presenter
	service OAuthServiceInterface
}

// NewOAuthHandler はOAuthHandlerを生成する。
func NewOAuthHandler(p *Presenter, service OAuthServiceInterface) *OAuthHandler {
	return &OAuthHandler{Presenter: p, service: service}
}

// Authorize は認可リクエストを検証し、クライアントのredirect_uriへ認可コードを返す。
// 未ログインの場合はリクエストをセッションに保存してログインへ誘導し、ログイン後に1回だけ再開する。
// GET /oauth2/authorize?response_type=code&client_id=xxx&redirect_uri=xxx&state=xxx
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	s := session.MustFromContext(r.Context())

	var q validation.AuthorizeQuery
	if err := validation.DecodeQuery(r, &q); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInvalidAuthorizeError("malformed query"))
		return
	}
	if errs := validation.Validate(q); errs != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInvalidAuthorizeError(invalidParams(errs)))
		return
	}
	req := q.Request()

	acct := s.Account()
	if acct == nil {
		s.SetPendingAuthorize(&req)
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}
	if acct.FtcID == "" {
		h.WriteError(w, r, http.StatusNotFound, model.NewEmailAccountRequiredError())
		return
	}

	code, err := h.service.CreateOAuthCode(r.Context(), req, acct.FtcID)
	if err != nil {
		h.upstreamFailure(w, r, "create_oauth_code", err)
		return
	}

	target, err := url.Parse(req.RedirectURI)
	if err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInvalidAuthorizeError("redirect_uri"))
		return
	}
	params := target.Query()
	params.Set("code", code)
	params.Set("state", req.State)
	target.RawQuery = params.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

// invalidParams は不正なパラメータ名を安定した順で連結する。
func invalidParams(errs validation.FieldErrors) string {
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
