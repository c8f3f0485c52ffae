package auth

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/myftc/internal/model"
)

// --- ヘルパー ---

func newTestTracker(now time.Time) *Tracker {
	tr := NewTracker(WechatConfig{
		AppID:       "wx-app-id",
		RedirectURL: "http://localhost:8080/login/wechat/callback",
	})
	tr.Now = func() time.Time { return now }
	return tr
}

func validSession(now time.Time, age time.Duration) *model.OAuthSession {
	return &model.OAuthSession{
		State:   "abc123xyz000",
		Created: now.Add(-age).Unix(),
		Usage:   model.OAuthUsageLogin,
	}
}

// --- CreateHandshake ---

func TestCreateHandshake_GeneratesAlphanumericState(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tr := newTestTracker(now)

	sess, _, err := tr.CreateHandshake(model.OAuthUsageLink)
	if err != nil {
		t.Fatalf("CreateHandshake() error = %v", err)
	}

	if len(sess.State) < 12 {
		t.Errorf("state length = %d, want >= 12", len(sess.State))
	}
	for _, c := range sess.State {
		if !strings.ContainsRune(statePool, c) {
			t.Errorf("state contains non-alphanumeric character %q", c)
		}
	}
	if sess.Created != now.Unix() {
		t.Errorf("Created = %d, want %d", sess.Created, now.Unix())
	}
	if sess.Usage != model.OAuthUsageLink {
		t.Errorf("Usage = %q, want %q", sess.Usage, model.OAuthUsageLink)
	}
}

func TestCreateHandshake_StateIsUniquePerAttempt(t *testing.T) {
	tr := newTestTracker(time.Now())

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sess, _, err := tr.CreateHandshake(model.OAuthUsageLogin)
		if err != nil {
			t.Fatalf("CreateHandshake() error = %v", err)
		}
		if seen[sess.State] {
			t.Fatalf("duplicate state generated: %s", sess.State)
		}
		seen[sess.State] = true
	}
}

func TestCreateHandshake_RedirectURLContainsRequiredParams(t *testing.T) {
	tr := newTestTracker(time.Now())

	sess, redirectURL, err := tr.CreateHandshake(model.OAuthUsageLogin)
	if err != nil {
		t.Fatalf("CreateHandshake() error = %v", err)
	}

	if !strings.HasPrefix(redirectURL, defaultWechatAuthURL) {
		t.Errorf("redirect URL = %q, should start with %q", redirectURL, defaultWechatAuthURL)
	}
	if !strings.HasSuffix(redirectURL, "#wechat_redirect") {
		t.Errorf("redirect URL = %q, should end with #wechat_redirect", redirectURL)
	}

	u, err := url.Parse(redirectURL)
	if err != nil {
		t.Fatalf("failed to parse redirect URL: %v", err)
	}
	q := u.Query()

	tests := []struct {
		param string
		want  string
	}{
		{"appid", "wx-app-id"},
		{"redirect_uri", "http://localhost:8080/login/wechat/callback"},
		{"response_type", "code"},
		{"scope", "snsapi_login"},
		{"state", sess.State},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			if got := q.Get(tt.param); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.param, got, tt.want)
			}
		})
	}
}

// --- ValidateCallback ---

func TestValidateCallback_Success_ReturnsCode(t *testing.T) {
	now := time.Now()
	tr := newTestTracker(now)

	code, err := tr.ValidateCallback(
		CallbackParams{Code: "xyz", State: "abc123xyz000"},
		validSession(now, 10*time.Second),
	)
	if err != nil {
		t.Fatalf("ValidateCallback() error = %v", err)
	}
	if code != "xyz" {
		t.Errorf("code = %q, want %q", code, "xyz")
	}
}

func TestValidateCallback_SessionMissing(t *testing.T) {
	tr := newTestTracker(time.Now())

	// パラメータが欠けていてもセッション不在が優先される
	_, err := tr.ValidateCallback(CallbackParams{}, nil)
	if !errors.Is(err, ErrSessionMissing) {
		t.Errorf("error = %v, want ErrSessionMissing", err)
	}
}

func TestValidateCallback_MissingCode(t *testing.T) {
	now := time.Now()
	tr := newTestTracker(now)

	_, err := tr.ValidateCallback(CallbackParams{State: "abc123xyz000"}, validSession(now, 10*time.Second))

	var pmErr *ParamMissingError
	if !errors.As(err, &pmErr) {
		t.Fatalf("error = %v, want *ParamMissingError", err)
	}
	if len(pmErr.Fields) != 1 || pmErr.Fields[0] != "code" {
		t.Errorf("Fields = %v, want [code]", pmErr.Fields)
	}
}

func TestValidateCallback_MissingBothParams_ReportsBoth(t *testing.T) {
	now := time.Now()
	tr := newTestTracker(now)

	_, err := tr.ValidateCallback(CallbackParams{}, validSession(now, 10*time.Second))

	var pmErr *ParamMissingError
	if !errors.As(err, &pmErr) {
		t.Fatalf("error = %v, want *ParamMissingError", err)
	}
	if len(pmErr.Fields) != 2 {
		t.Errorf("Fields = %v, want [code state]", pmErr.Fields)
	}
}

func TestValidateCallback_StateMismatch_OneCharacterDiffers(t *testing.T) {
	now := time.Now()
	tr := newTestTracker(now)

	_, err := tr.ValidateCallback(
		CallbackParams{Code: "xyz", State: "abc123xyz001"},
		validSession(now, 10*time.Second),
	)
	if !errors.Is(err, ErrStateMismatch) {
		t.Errorf("error = %v, want ErrStateMismatch", err)
	}
}

func TestValidateCallback_StateIsTrimmed(t *testing.T) {
	now := time.Now()
	tr := newTestTracker(now)

	_, err := tr.ValidateCallback(
		CallbackParams{Code: "xyz", State: "  abc123xyz000\n"},
		validSession(now, 10*time.Second),
	)
	if err != nil {
		t.Errorf("expected surrounding whitespace to be ignored, got %v", err)
	}
}

func TestValidateCallback_ExpiryBoundary(t *testing.T) {
	now := time.Now()
	tr := newTestTracker(now)
	params := CallbackParams{Code: "xyz", State: "abc123xyz000"}

	if _, err := tr.ValidateCallback(params, validSession(now, 299*time.Second)); err != nil {
		t.Errorf("at created+299s: error = %v, want nil", err)
	}
	if _, err := tr.ValidateCallback(params, validSession(now, 300*time.Second)); err != nil {
		t.Errorf("at created+300s: error = %v, want nil", err)
	}
	if _, err := tr.ValidateCallback(params, validSession(now, 301*time.Second)); !errors.Is(err, ErrHandshakeExpired) {
		t.Errorf("at created+301s: error = %v, want ErrHandshakeExpired", err)
	}
}

func TestValidateCallback_MismatchCheckedBeforeExpiry(t *testing.T) {
	now := time.Now()
	tr := newTestTracker(now)

	_, err := tr.ValidateCallback(
		CallbackParams{Code: "xyz", State: "wrong-state"},
		validSession(now, time.Hour),
	)
	if !errors.Is(err, ErrStateMismatch) {
		t.Errorf("error = %v, want ErrStateMismatch", err)
	}
}
