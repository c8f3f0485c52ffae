package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/hitoshi/myftc/internal/model"
	"github.com/hitoshi/myftc/internal/reader"
	"github.com/hitoshi/myftc/internal/session"
)

func newTestAccountHandler(t *testing.T, svc *mockReader) *AccountHandler {
	t.Helper()
	return NewAccountHandler(newTestPresenter(t), svc)
}

func TestAccountHandler_Show_ConsumesFlash(t *testing.T) {
	h := newTestAccountHandler(t, &mockReader{})
	s := loggedInState(emailAccount())
	s.SetFlag(session.FlagUnlinked)

	w := httptest.NewRecorder()
	h.Show(w, newRequest(http.MethodGet, "/account", nil, s))

	assertStatus(t, w, http.StatusOK)
	assertBodyContains(t, w, "已解除微信绑定")
	if s.ConsumeFlag(session.FlagUnlinked) {
		t.Error("flag should be consumed by rendering")
	}
}

func TestAccountHandler_UpdateEmail_Success(t *testing.T) {
	var gotID, gotEmail string
	svc := &mockReader{
		updateEmailFn: func(_ context.Context, ftcID, email string) error {
			gotID, gotEmail = ftcID, email
			return nil
		},
	}
	h := newTestAccountHandler(t, svc)
	acct := emailAccount()
	acct.IsVerified = true
	s := loggedInState(acct)

	w := httptest.NewRecorder()
	h.UpdateEmail(w, newRequest(http.MethodPost, "/account/email", url.Values{"email": {"New@Example.com"}}, s))

	assertRedirect(t, w, accountPath)
	if gotID != "u1" || gotEmail != "new@example.com" {
		t.Errorf("UpdateEmail(%q, %q)", gotID, gotEmail)
	}
	updated := s.Account()
	if updated.Email != "new@example.com" || updated.IsVerified {
		t.Errorf("session account = %+v, want new unverified email", updated)
	}
}

func TestAccountHandler_UpdateEmail_WechatOnly_Returns404(t *testing.T) {
	h := newTestAccountHandler(t, &mockReader{})

	w := httptest.NewRecorder()
	h.UpdateEmail(w, newRequest(http.MethodPost, "/account/email", url.Values{"email": {"a@example.com"}}, loggedInState(wechatAccount())))

	assertStatus(t, w, http.StatusNotFound)
	assertBodyContains(t, w, "该功能需要邮箱账号")
}

func TestAccountHandler_UpdateEmail_Taken_ShowsFieldError(t *testing.T) {
	svc := &mockReader{
		updateEmailFn: func(context.Context, string, string) error {
			return unprocessable("email", "already_exists")
		},
	}
	h := newTestAccountHandler(t, svc)

	w := httptest.NewRecorder()
	h.UpdateEmail(w, newRequest(http.MethodPost, "/account/email", url.Values{"email": {"taken@example.com"}}, loggedInState(emailAccount())))

	assertStatus(t, w, http.StatusBadRequest)
	assertBodyContains(t, w, "该邮箱已经注册")
}

func TestAccountHandler_UpdatePassword(t *testing.T) {
	valid := url.Values{"oldPassword": {"old-secret"}, "password": {"new-secret"}, "confirmPassword": {"new-secret"}}

	tests := []struct {
		name       string
		form       url.Values
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "success", form: valid, wantStatus: http.StatusFound},
		{name: "wrong current password", form: valid, err: upstreamErr(reader.KindForbidden, 403), wantStatus: http.StatusBadRequest, wantBody: "当前密码错误"},
		{name: "too short", form: url.Values{"oldPassword": {"x"}, "password": {"short"}, "confirmPassword": {"short"}}, wantStatus: http.StatusBadRequest, wantBody: "密码长度至少8位"},
		{name: "upstream down", form: valid, err: upstreamErr(reader.KindUnknown, 503), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockReader{
				updatePasswordFn: func(_ context.Context, ftcID, oldPassword, newPassword string) error {
					if ftcID != "u1" || oldPassword != "old-secret" || newPassword != "new-secret" {
						t.Errorf("UpdatePassword(%q, %q, %q)", ftcID, oldPassword, newPassword)
					}
					return tt.err
				},
			}
			h := newTestAccountHandler(t, svc)

			w := httptest.NewRecorder()
			h.UpdatePassword(w, newRequest(http.MethodPost, "/account/password", tt.form, loggedInState(emailAccount())))

			assertStatus(t, w, tt.wantStatus)
			if tt.wantBody != "" {
				assertBodyContains(t, w, tt.wantBody)
			}
		})
	}
}

func TestAccountHandler_RequestVerification_SetsLetterSentFlag(t *testing.T) {
	called := false
	svc := &mockReader{
		requestVerificationFn: func(_ context.Context, ftcID string) error {
			called = ftcID == "u1"
			return nil
		},
	}
	h := newTestAccountHandler(t, svc)
	s := loggedInState(emailAccount())

	w := httptest.NewRecorder()
	h.RequestVerification(w, newRequest(http.MethodPost, "/account/request-verification", url.Values{}, s))

	assertRedirect(t, w, accountPath)
	if !called {
		t.Error("RequestVerification should be called with the ftc id")
	}
	if !s.ConsumeFlag(session.FlagLetterSent) {
		t.Error("letter_sent flag should be set")
	}
}

func TestAccountHandler_UpdateUserName_SanitizesAndStores(t *testing.T) {
	var gotName string
	svc := &mockReader{
		updateUserNameFn: func(_ context.Context, _ string, name string) error {
			gotName = name
			return nil
		},
	}
	h := newTestAccountHandler(t, svc)
	s := loggedInState(emailAccount())

	w := httptest.NewRecorder()
	h.UpdateUserName(w, newRequest(http.MethodPost, "/profile/name", url.Values{"userName": {"<b>小明</b>"}}, s))

	assertRedirect(t, w, profilePath)
	if gotName != "小明" {
		t.Errorf("userName = %q, want sanitized 小明", gotName)
	}
	if s.Account().UserName != "小明" {
		t.Errorf("session UserName = %q", s.Account().UserName)
	}
}

func TestAccountHandler_AddressForm_PrefillsFromUpstream(t *testing.T) {
	svc := &mockReader{
		fetchAddressFn: func(context.Context, string) (*model.Address, error) {
			return &model.Address{City: "北京", Postcode: "100000"}, nil
		},
	}
	h := newTestAccountHandler(t, svc)

	w := httptest.NewRecorder()
	h.AddressForm(w, newRequest(http.MethodGet, "/profile/address", nil, loggedInState(emailAccount())))

	assertStatus(t, w, http.StatusOK)
	assertBodyContains(t, w, `value="北京"`)
	assertBodyContains(t, w, `value="100000"`)
}

func TestAccountHandler_UpdateAddress(t *testing.T) {
	t.Run("saves address", func(t *testing.T) {
		var got model.Address
		svc := &mockReader{
			updateAddressFn: func(_ context.Context, _ string, addr model.Address) error {
				got = addr
				return nil
			},
		}
		h := newTestAccountHandler(t, svc)
		s := loggedInState(emailAccount())

		w := httptest.NewRecorder()
		h.UpdateAddress(w, newRequest(http.MethodPost, "/profile/address", url.Values{"city": {"上海"}, "postcode": {"200000"}}, s))

		assertRedirect(t, w, profilePath)
		if got.City != "上海" || got.Postcode != "200000" {
			t.Errorf("address = %+v", got)
		}
		if !s.ConsumeFlag(session.FlagSaved) {
			t.Error("saved flag should be set")
		}
	})

	t.Run("rejects non-numeric postcode", func(t *testing.T) {
		h := newTestAccountHandler(t, &mockReader{})

		w := httptest.NewRecorder()
		h.UpdateAddress(w, newRequest(http.MethodPost, "/profile/address", url.Values{"postcode": {"abc"}}, loggedInState(emailAccount())))

		assertStatus(t, w, http.StatusBadRequest)
		assertBodyContains(t, w, "只能包含数字")
	})
}

func TestAccountHandler_Membership_RefreshesAccount(t *testing.T) {
	svc := &mockReader{
		refreshFn: func(_ context.Context, a model.Account) (*model.Account, error) {
			a.Membership = model.Membership{
				Tier:       model.TierPremium,
				Cycle:      model.CycleYear,
				ExpireDate: model.NewDate(2024, 1, 11),
				PayMethod:  model.PayMethodAlipay,
			}
			return &a, nil
		},
	}
	h := newTestAccountHandler(t, svc)
	s := loggedInState(emailAccount())

	w := httptest.NewRecorder()
	h.Membership(w, newRequest(http.MethodGet, "/membership", nil, s))

	assertStatus(t, w, http.StatusOK)
	assertBodyContains(t, w, "2024-01-11")
	assertBodyContains(t, w, "剩余10天")
	if s.Account().Membership.Tier != model.TierPremium {
		t.Error("session account should be refreshed")
	}
}

func TestAccountHandler_Membership_UpstreamNotFound(t *testing.T) {
	svc := &mockReader{
		refreshFn: func(context.Context, model.Account) (*model.Account, error) {
			return nil, upstreamErr(reader.KindNotFound, 404)
		},
	}
	h := newTestAccountHandler(t, svc)

	w := httptest.NewRecorder()
	h.Membership(w, newRequest(http.MethodGet, "/membership", nil, loggedInState(emailAccount())))

	assertStatus(t, w, http.StatusNotFound)
	assertBodyContains(t, w, "账号不存在")
}
