package reader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hitoshi/myftc/internal/metrics"
	"github.com/hitoshi/myftc/internal/model"
)

// --- モック定義 ---

type mockCollector struct {
	mu       sync.Mutex
	requests []string
	states   []metrics.BreakerState
}

func (m *mockCollector) RecordLogin(method, outcome string) {}
func (m *mockCollector) RecordHandshake(result string)      {}
func (m *mockCollector) RecordLinkDecision(result string)   {}
func (m *mockCollector) RecordSessionsCleaned(count int64)  {}

func (m *mockCollector) RecordUpstreamRequest(operation string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, operation)
}

func (m *mockCollector) RecordBreakerState(name string, state metrics.BreakerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
}

// --- ヘルパー ---

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *mockCollector) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	collector := &mockCollector{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(Config{
		BaseURL:          srv.URL,
		APIKey:           "test-key",
		Timeout:          5 * time.Second,
		BreakerThreshold: 3,
		BreakerTimeout:   time.Minute,
	}, collector, logger)
	return c, collector
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- テスト ---

func TestFetchFtcAccount_SendsIdentityHeaderAndAPIKey(t *testing.T) {
	c, collector := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account" {
			t.Errorf("path = %s, want /account", r.URL.Path)
		}
		if got := r.Header.Get(model.HeaderFtcID); got != "u1" {
			t.Errorf("%s = %q, want u1", model.HeaderFtcID, got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":    "u1",
			"email": "a@example.com",
			"membership": map[string]any{
				"tier": "standard", "cycle": "year", "expireDate": "2030-01-01",
			},
		})
	})

	a, err := c.FetchFtcAccount(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FetchFtcAccount() error = %v", err)
	}
	if a.FtcID != "u1" || a.Email != "a@example.com" {
		t.Errorf("account = %+v", a)
	}
	if a.LoginMethod != model.LoginMethodEmail {
		t.Errorf("LoginMethod = %q, want email", a.LoginMethod)
	}
	if !a.Membership.Exists() || a.Membership.ExpireDate.String() != "2030-01-01" {
		t.Errorf("membership = %+v", a.Membership)
	}
	if len(collector.requests) != 1 || collector.requests[0] != "fetch_ftc_account" {
		t.Errorf("recorded requests = %v", collector.requests)
	}
}

func TestFetchWxAccount_NotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(model.HeaderUnionID); got != "w1" {
			t.Errorf("%s = %q, want w1", model.HeaderUnionID, got)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
	})

	_, err := c.FetchWxAccount(context.Background(), "w1")
	if !IsNotFound(err) {
		t.Errorf("error = %v, want NotFound", err)
	}
}

func TestAuthenticate_Success_FetchesAccount(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/email/login":
			if r.Header.Get("X-Client-Type") != "web" {
				t.Errorf("X-Client-Type = %q, want web", r.Header.Get("X-Client-Type"))
			}
			var creds model.Credentials
			_ = json.NewDecoder(r.Body).Decode(&creds)
			if creds.Email != "a@example.com" || creds.Password != "12345678" {
				t.Errorf("credentials = %+v", creds)
			}
			writeJSON(w, http.StatusOK, map[string]string{"id": "u1"})
		case "/account":
			writeJSON(w, http.StatusOK, map[string]string{"id": "u1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	a, err := c.Authenticate(context.Background(),
		model.Credentials{Email: "a@example.com", Password: "12345678"},
		model.ClientHeaders{ClientType: "web", Version: "1.0.0"},
	)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if a.FtcID != "u1" {
		t.Errorf("FtcID = %q, want u1", a.FtcID)
	}
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"404", http.StatusNotFound, IsNotFound},
		{"403", http.StatusForbidden, IsForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"message": "bad credentials"})
			})
			_, err := c.Authenticate(context.Background(), model.Credentials{}, model.ClientHeaders{})
			if !tt.check(err) {
				t.Errorf("error = %v", err)
			}
		})
	}
}

func TestLinkAccounts_Unprocessable_ParsesFieldAndCode(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body linkParams
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.FtcID != "u1" || body.UnionID != "w1" {
			t.Errorf("body = %+v", body)
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Validation failed",
			"error":   map[string]string{"field": "membership", "code": "none_expired"},
		})
	})

	err := c.LinkAccounts(context.Background(), "u1", "w1")

	e, ok := AsUnprocessable(err)
	if !ok {
		t.Fatalf("error = %v, want Unprocessable", err)
	}
	if e.Field != "membership" || e.Code != "none_expired" {
		t.Errorf("Field/Code = %s/%s", e.Field, e.Code)
	}
	if e.Key() != "membership.none_expired" {
		t.Errorf("Key() = %q", e.Key())
	}
}

func TestUnlinkAccounts_SendsAnchor(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body linkParams
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Anchor != model.AnchorFtc {
			t.Errorf("anchor = %q, want ftc", body.Anchor)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.UnlinkAccounts(context.Background(), "u1", "w1", model.AnchorFtc); err != nil {
		t.Errorf("UnlinkAccounts() error = %v", err)
	}
}

func TestEmailExists(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusNoContent, true},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("v") != "a@example.com" {
				t.Errorf("query v = %q", r.URL.Query().Get("v"))
			}
			w.WriteHeader(tt.status)
		})
		got, err := c.EmailExists(context.Background(), "a@example.com")
		if err != nil {
			t.Fatalf("status %d: error = %v", tt.status, err)
		}
		if got != tt.want {
			t.Errorf("status %d: EmailExists() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestExchangeOAuthCode(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["code"] != "xyz" {
			t.Errorf("code = %q, want xyz", body["code"])
		}
		writeJSON(w, http.StatusOK, map[string]string{"sessionId": "s1", "unionId": "w1"})
	})

	sess, err := c.ExchangeOAuthCode(context.Background(), "xyz", model.ClientHeaders{})
	if err != nil {
		t.Fatalf("ExchangeOAuthCode() error = %v", err)
	}
	if sess.UnionID != "w1" || sess.ID != "s1" {
		t.Errorf("session = %+v", sess)
	}
}

func TestVerifyPasswordResetToken_UsesPathParam(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/password-reset/tokens/tok123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]string{"email": "a@example.com"})
	})

	email, err := c.VerifyPasswordResetToken(context.Background(), "tok123")
	if err != nil || email != "a@example.com" {
		t.Errorf("got (%q, %v)", email, err)
	}
}

func TestCreateOrder_ReturnsIntent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/alipay/standard/year" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{"orderId": "o1", "price": 298, "paymentUrl": "https://pay.example.com/o1"})
	})

	intent, err := c.CreateOrder(context.Background(),
		model.Account{FtcID: "u1"},
		model.Plan{Tier: model.TierStandard, Cycle: model.CycleYear},
		model.PayMethodAlipay,
		model.ClientHeaders{},
	)
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if intent.PaymentURL != "https://pay.example.com/o1" || intent.PayMethod != model.PayMethodAlipay {
		t.Errorf("intent = %+v", intent)
	}
}

func TestCall_ServerError_IsUnknownWithMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
	})

	_, err := c.FetchPaywall(context.Background())

	e, ok := As(err)
	if !ok {
		t.Fatalf("error = %v, want *Error", err)
	}
	if e.Kind != KindUnknown || e.Message != "boom" || e.Status != 500 {
		t.Errorf("error = %+v", e)
	}
}

func TestCall_NoRetry(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	})

	_ = c.LinkAccounts(context.Background(), "u1", "w1")

	if calls != 1 {
		t.Errorf("upstream called %d times, want 1", calls)
	}
}

func TestBreaker_OpensAfterConsecutiveServerErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c, collector := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 3; i++ {
		_, _ = c.FetchPaywall(context.Background())
	}
	_, err := c.FetchPaywall(context.Background())

	if calls != 3 {
		t.Errorf("upstream called %d times, want 3 (4th rejected by breaker)", calls)
	}
	e, ok := As(err)
	if !ok || e.Kind != KindUnknown {
		t.Errorf("error = %v, want KindUnknown", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error should wrap breaker open state, got %v", err)
	}
	last := collector.states[len(collector.states)-1]
	if last != metrics.BreakerOpen {
		t.Errorf("last breaker state = %v, want open", last)
	}
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 5; i++ {
		_, _ = c.FetchFtcAccount(context.Background(), "u1")
	}

	if calls != 5 {
		t.Errorf("upstream called %d times, want 5", calls)
	}
}

func TestBreaker_CallerCancellationDoesNotTrip(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c, collector := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"id": "u1"})
	})

	// ブラウザが切断した状態を再現する
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		_, err := c.FetchFtcAccount(ctx, "u1")
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
		if IsNotFound(err) {
			t.Fatalf("cancelled request should not be classified as not found")
		}
	}

	a, err := c.FetchFtcAccount(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FetchFtcAccount() after cancellations error = %v", err)
	}
	if a.FtcID != "u1" {
		t.Errorf("FtcID = %q, want u1", a.FtcID)
	}
	for _, st := range collector.states {
		if st == metrics.BreakerOpen {
			t.Error("breaker should stay closed when callers cancel")
		}
	}
}

func TestBreaker_CallerDeadlineDoesNotTrip(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "u1"})
	})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	for i := 0; i < 5; i++ {
		_, _ = c.FetchFtcAccount(ctx, "u1")
	}

	if _, err := c.FetchFtcAccount(context.Background(), "u1"); err != nil {
		t.Fatalf("FetchFtcAccount() after expired deadlines error = %v", err)
	}
}
