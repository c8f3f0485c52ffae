// Package reader は上流の読者・購読APIクライアントを提供する。
// すべての呼び出しは1回だけ試行し、リトライは行わない。
// 通信エラーと5xxが続いた場合はサーキットブレーカーが以降の呼び出しを即座に失敗させる。
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hitoshi/myftc/internal/metrics"
)

const breakerName = "reader-api"

// Config は上流APIクライアントの設定。
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// ブレーカーが開いてから半開に移行するまでの時間。0の場合は30秒。
	BreakerTimeout time.Duration
	// 連続失敗がこの回数に達するとブレーカーを開く。0の場合は5回。
	BreakerThreshold uint32
}

// Client は上流APIのクライアント。
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(cfg Config, collector metrics.MetricsCollector, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout == 0 {
		breakerTimeout = 30 * time.Second
	}
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}

	c := &Client{
		http:    httpClient,
		metrics: collector,
		logger:  logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// 4xxは上流が正常に応答した結果なので失敗として数えない。
		// 呼び出し元による中断も上流の障害ではない。
		IsSuccessful: func(err error) bool {
			if err == nil || isAborted(err) {
				return true
			}
			var e *Error
			return errors.As(err, &e) && e.Status >= 400 && e.Status < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			collector.RecordBreakerState(name, breakerState(to))
		},
	})
	collector.RecordBreakerState(breakerName, metrics.BreakerClosed)

	return c
}

// call は上流APIへのリクエストを1回実行する。
// 2xx以外はすべて*Errorとして返す。outがnilでなければレスポンスボディをデコードする。
func (c *Client) call(ctx context.Context, op string, req *resty.Request, method, path string, out any) (*resty.Response, error) {
	start := time.Now()

	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		resp, err := req.SetContext(ctx).Execute(method, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, transportError(&abortedError{err: err})
			}
			return nil, transportError(err)
		}
		if resp.IsError() || resp.StatusCode() >= http.StatusMultipleChoices {
			return resp, responseError(resp)
		}
		return resp, nil
	})

	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	c.metrics.RecordUpstreamRequest(op, status, time.Since(start))

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("upstream request rejected by circuit breaker",
				slog.String("operation", op),
			)
			return nil, &Error{Kind: KindUnknown, cause: err}
		}
		if isAborted(err) {
			c.logger.Info("upstream request aborted by caller",
				slog.String("operation", op),
				slog.String("error", err.Error()),
			)
			return resp, err
		}
		if e, ok := As(err); ok && e.Kind == KindUnknown {
			c.logger.Error("upstream request failed",
				slog.String("operation", op),
				slog.Int("http_status", status),
				slog.String("error", err.Error()),
			)
		}
		return resp, err
	}

	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return resp, transportError(fmt.Errorf("failed to decode %s response: %w", op, err))
		}
	}

	return resp, nil
}

// request は識別ヘッダーとクライアントヘッダーを設定したリクエストを生成する。
func (c *Client) request(headers ...http.Header) *resty.Request {
	req := c.http.R()
	for _, h := range headers {
		for k := range h {
			req.SetHeader(k, h.Get(k))
		}
	}
	return req
}

// responseError はエラーレスポンスを*Errorに変換する。
func responseError(resp *resty.Response) *Error {
	e := &Error{
		Kind:   kindOf(resp.StatusCode()),
		Status: resp.StatusCode(),
	}

	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		e.Message = body.Message
		if body.Error != nil {
			e.Field = body.Error.Field
			e.Code = body.Error.Code
		}
	}

	return e
}

func breakerState(s gobreaker.State) metrics.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	default:
		return metrics.BreakerClosed
	}
}
