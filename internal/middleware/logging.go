package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// requestIDHeader はレスポンスに付与するリクエストIDのヘッダー名。
const requestIDHeader = "X-Request-Id"

// requestLog は内側のミドルウェアがログに追加する値を受け渡す。
// ロギングミドルウェアが生成し、セッションミドルウェアがアカウントIDを書き込む。
type requestLog struct {
	requestID string
	accountID string
}

var requestLogContextKey = contextKey("request_log")

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、request_id、account_id（ログイン中の場合）を含む。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rl := &requestLog{requestID: uuid.NewString()}
			w.Header().Set(requestIDHeader, rl.requestID)
			ctx := context.WithValue(r.Context(), requestLogContextKey, rl)

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
				slog.String("request_id", rl.requestID),
			}
			if rl.accountID != "" {
				args = append(args, slog.String("account_id", rl.accountID))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}

// RequestIDFromContext はロギングミドルウェアが生成したリクエストIDを返す。
// ロギングミドルウェアを通っていない場合は空文字列。
func RequestIDFromContext(ctx context.Context) string {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		return rl.requestID
	}
	return ""
}

// annotateAccount はリクエストログにアカウントIDを記録する。
func annotateAccount(ctx context.Context, accountID string) {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		rl.accountID = accountID
	}
}
