package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/myftc/internal/metrics"
	"github.com/hitoshi/myftc/internal/model"
	"github.com/hitoshi/myftc/internal/reader"
	"github.com/hitoshi/myftc/internal/session"
	"github.com/hitoshi/myftc/internal/view"
)

var errNotMocked = errors.New("not mocked")

// --- モック定義 ---

// mockReader は上流APIクライアントのモック。各ハンドラーのサービスインターフェースをすべて満たす。
type mockReader struct {
	authenticateFn             func(ctx context.Context, creds model.Credentials, client model.ClientHeaders) (*model.Account, error)
	createFtcAccountFn         func(ctx context.Context, creds model.Credentials, client model.ClientHeaders) (string, error)
	fetchFtcAccountFn          func(ctx context.Context, ftcID string) (*model.Account, error)
	fetchWxAccountFn           func(ctx context.Context, unionID string) (*model.Account, error)
	refreshFn                  func(ctx context.Context, a model.Account) (*model.Account, error)
	exchangeOAuthCodeFn        func(ctx context.Context, code string, client model.ClientHeaders) (*model.WxSession, error)
	requestPasswordResetFn     func(ctx context.Context, email string, client model.ClientHeaders) error
	verifyPasswordResetTokenFn func(ctx context.Context, token string) (string, error)
	resetPasswordFn            func(ctx context.Context, token, password string) error
	verifyEmailFn              func(ctx context.Context, token string) error
	updateEmailFn              func(ctx context.Context, ftcID, email string) error
	updatePasswordFn           func(ctx context.Context, ftcID, oldPassword, newPassword string) error
	updateUserNameFn           func(ctx context.Context, ftcID, userName string) error
	fetchAddressFn             func(ctx context.Context, ftcID string) (*model.Address, error)
	updateAddressFn            func(ctx context.Context, ftcID string, addr model.Address) error
	requestVerificationFn      func(ctx context.Context, ftcID string) error
	emailExistsFn              func(ctx context.Context, email string) (bool, error)
	createWxLinkedAccountFn    func(ctx context.Context, creds model.Credentials, unionID string, client model.ClientHeaders) (string, error)
	linkAccountsFn             func(ctx context.Context, ftcID, unionID string) error
	unlinkAccountsFn           func(ctx context.Context, ftcID, unionID string, anchor model.UnlinkAnchor) error
	createOrderFn              func(ctx context.Context, a model.Account, plan model.Plan, method model.PayMethod, client model.ClientHeaders) (*model.PaymentIntent, error)
	createOAuthCodeFn          func(ctx context.Context, authReq model.AuthorizeRequest, ftcID string) (string, error)
}

func (m *mockReader) Authenticate(ctx context.Context, creds model.Credentials, client model.ClientHeaders) (*model.Account, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, creds, client)
	}
	return nil, errNotMocked
}

func (m *mockReader) CreateFtcAccount(ctx context.Context, creds model.Credentials, client model.ClientHeaders) (string, error) {
	if m.createFtcAccountFn != nil {
		return m.createFtcAccountFn(ctx, creds, client)
	}
	return "", errNotMocked
}

func (m *mockReader) FetchFtcAccount(ctx context.Context, ftcID string) (*model.Account, error) {
	if m.fetchFtcAccountFn != nil {
		return m.fetchFtcAccountFn(ctx, ftcID)
	}
	return nil, errNotMocked
}

func (m *mockReader) FetchWxAccount(ctx context.Context, unionID string) (*model.Account, error) {
	if m.fetchWxAccountFn != nil {
		return m.fetchWxAccountFn(ctx, unionID)
	}
	return nil, errNotMocked
}

func (m *mockReader) Refresh(ctx context.Context, a model.Account) (*model.Account, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, a)
	}
	return &a, nil
}

func (m *mockReader) ExchangeOAuthCode(ctx context.Context, code string, client model.ClientHeaders) (*model.WxSession, error) {
	if m.exchangeOAuthCodeFn != nil {
		return m.exchangeOAuthCodeFn(ctx, code, client)
	}
	return nil, errNotMocked
}

func (m *mockReader) RequestPasswordReset(ctx context.Context, email string, client model.ClientHeaders) error {
	if m.requestPasswordResetFn != nil {
		return m.requestPasswordResetFn(ctx, email, client)
	}
	return nil
}

func (m *mockReader) VerifyPasswordResetToken(ctx context.Context, token string) (string, error) {
	if m.verifyPasswordResetTokenFn != nil {
		return m.verifyPasswordResetTokenFn(ctx, token)
	}
	return "", errNotMocked
}

func (m *mockReader) ResetPassword(ctx context.Context, token, password string) error {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, token, password)
	}
	return nil
}

func (m *mockReader) VerifyEmail(ctx context.Context, token string) error {
	if m.verifyEmailFn != nil {
		return m.verifyEmailFn(ctx, token)
	}
	return nil
}

func (m *mockReader) UpdateEmail(ctx context.Context, ftcID, email string) error {
	if m.updateEmailFn != nil {
		return m.updateEmailFn(ctx, ftcID, email)
	}
	return nil
}

func (m *mockReader) UpdatePassword(ctx context.Context, ftcID, oldPassword, newPassword string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, ftcID, oldPassword, newPassword)
	}
	return nil
}

func (m *mockReader) UpdateUserName(ctx context.Context, ftcID, userName string) error {
	if m.updateUserNameFn != nil {
		return m.updateUserNameFn(ctx, ftcID, userName)
	}
	return nil
}

func (m *mockReader) FetchAddress(ctx context.Context, ftcID string) (*model.Address, error) {
	if m.fetchAddressFn != nil {
		return m.fetchAddressFn(ctx, ftcID)
	}
	return &model.Address{}, nil
}

func (m *mockReader) UpdateAddress(ctx context.Context, ftcID string, addr model.Address) error {
	if m.updateAddressFn != nil {
		return m.updateAddressFn(ctx, ftcID, addr)
	}
	return nil
}

func (m *mockReader) RequestVerification(ctx context.Context, ftcID string) error {
	if m.requestVerificationFn != nil {
		return m.requestVerificationFn(ctx, ftcID)
	}
	return nil
}

func (m *mockReader) EmailExists(ctx context.Context, email string) (bool, error) {
	if m.emailExistsFn != nil {
		return m.emailExistsFn(ctx, email)
	}
	return false, errNotMocked
}

func (m *mockReader) CreateWxLinkedAccount(ctx context.Context, creds model.Credentials, unionID string, client model.ClientHeaders) (string, error) {
	if m.createWxLinkedAccountFn != nil {
		return m.createWxLinkedAccountFn(ctx, creds, unionID, client)
	}
	return "", errNotMocked
}

func (m *mockReader) LinkAccounts(ctx context.Context, ftcID, unionID string) error {
	if m.linkAccountsFn != nil {
		return m.linkAccountsFn(ctx, ftcID, unionID)
	}
	return nil
}

func (m *mockReader) UnlinkAccounts(ctx context.Context, ftcID, unionID string, anchor model.UnlinkAnchor) error {
	if m.unlinkAccountsFn != nil {
		return m.unlinkAccountsFn(ctx, ftcID, unionID, anchor)
	}
	return nil
}

func (m *mockReader) CreateOrder(ctx context.Context, a model.Account, plan model.Plan, method model.PayMethod, client model.ClientHeaders) (*model.PaymentIntent, error) {
	if m.createOrderFn != nil {
		return m.createOrderFn(ctx, a, plan, method, client)
	}
	return nil, errNotMocked
}

func (m *mockReader) CreateOAuthCode(ctx context.Context, authReq model.AuthorizeRequest, ftcID string) (string, error) {
	if m.createOAuthCodeFn != nil {
		return m.createOAuthCodeFn(ctx, authReq, ftcID)
	}
	return "", errNotMocked
}

// mockCollector は記録されたメトリクスのラベルを保持する。
type mockCollector struct {
	mu         sync.Mutex
	logins     []string
	handshakes []string
	decisions  []string
}

func (c *mockCollector) RecordLogin(method, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logins = append(c.logins, method+":"+outcome)
}

func (c *mockCollector) RecordHandshake(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handshakes = append(c.handshakes, result)
}

func (c *mockCollector) RecordLinkDecision(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, result)
}

func (c *mockCollector) RecordUpstreamRequest(string, int, time.Duration) {}
func (c *mockCollector) RecordBreakerState(string, metrics.BreakerState)  {}
func (c *mockCollector) RecordSessionsCleaned(int64)                      {}

var _ metrics.MetricsCollector = (*mockCollector)(nil)

// --- ヘルパー ---

func newTestPresenter(t *testing.T) *Presenter {
	t.Helper()
	renderer, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	messages, err := view.LoadMessages()
	if err != nil {
		t.Fatalf("LoadMessages() error = %v", err)
	}
	p := NewPresenter(renderer, messages)
	p.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func emailAccount() model.Account {
	return model.Account{FtcID: "u1", Email: "reader@example.com", LoginMethod: model.LoginMethodEmail}
}

func wechatAccount() model.Account {
	return model.Account{
		UnionID:     "w1",
		Wechat:      model.Wechat{Nickname: "小明"},
		LoginMethod: model.LoginMethodWechat,
	}
}

func loggedInState(a model.Account) *session.State {
	s := session.NewState()
	s.SetAccount(a)
	return s
}

// newRequest はセッションを埋め込んだリクエストを生成する。
// formがnilでなければPOSTフォームとして送信する。
func newRequest(method, target string, form url.Values, s *session.State) *http.Request {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(session.NewContext(req.Context(), s))
}

// withURLParams はchiのURLパラメータをリクエストに設定する。
func withURLParams(req *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func upstreamErr(kind reader.Kind, status int) error {
	return &reader.Error{Kind: kind, Status: status, Message: "upstream says no"}
}

func unprocessable(field, code string) error {
	return &reader.Error{Kind: reader.KindUnprocessable, Status: http.StatusUnprocessableEntity, Field: field, Code: code}
}

func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, http.StatusFound, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, want, w.Body.String())
	}
}

func assertBodyContains(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("body should contain %q, got %s", want, w.Body.String())
	}
}
