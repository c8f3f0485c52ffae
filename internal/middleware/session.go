// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/myftc/internal/model"
	"github.com/hitoshi/myftc/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// SessionStore はセッション状態の読み込みと永続化に必要なインターフェース。
// session.Managerが実装する。
type SessionStore interface {
	Load(r *http.Request) (*session.State, error)
	Commit(ctx context.Context, w http.ResponseWriter, s *session.State) error
}

var _ SessionStore = (*session.Manager)(nil)

// NewSessionMiddleware はCookieからセッション状態を読み込んでコンテキストに注入し、
// レスポンスの最初の書き込みの直前に変更を永続化するミドルウェアを返す。
// 未ログインのリクエストもそのまま通す（ログイン必須のルートはRequireLoginで保護する）。
func NewSessionMiddleware(store SessionStore, writeError ErrorWriter) func(next http.Handler) http.Handler {
	writeError = writeError.orDefault()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, err := store.Load(r)
			if err != nil {
				slog.Error("failed to load session",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeError(w, r, http.StatusInternalServerError, model.NewInternalError())
				return
			}

			if a := state.Account(); a != nil {
				annotateAccount(r.Context(), accountLogID(a))
			}

			ctx := session.NewContext(r.Context(), state)
			cw := &commitWriter{
				ResponseWriter: w,
				ctx:            ctx,
				store:          store,
				state:          state,
			}

			next.ServeHTTP(cw, r.WithContext(ctx))

			// 何も書き込まなかったハンドラーの変更も保存する
			cw.commit()
		})
	}
}

// commitWriter はヘッダー送出の直前に1回だけセッションを保存する。
// Set-Cookieはヘッダー送出後には追加できないため。
type commitWriter struct {
	http.ResponseWriter
	ctx       context.Context
	store     SessionStore
	state     *session.State
	committed bool
}

func (cw *commitWriter) commit() {
	if cw.committed {
		return
	}
	cw.committed = true
	if err := cw.store.Commit(cw.ctx, cw.ResponseWriter, cw.state); err != nil {
		slog.Error("failed to save session",
			slog.String("request_id", RequestIDFromContext(cw.ctx)),
			slog.String("error", err.Error()),
		)
	}
}

// WriteHeader はセッションを保存してからステータスコードを書き込む。
func (cw *commitWriter) WriteHeader(code int) {
	cw.commit()
	cw.ResponseWriter.WriteHeader(code)
}

// Write はセッションを保存してからボディを書き込む。
func (cw *commitWriter) Write(b []byte) (int, error) {
	cw.commit()
	return cw.ResponseWriter.Write(b)
}

// NewRequireLoginMiddleware は未ログインのリクエストをログインページにリダイレクトする
// ミドルウェアを返す。NewSessionMiddlewareの内側に配置する。
func NewRequireLoginMiddleware(loginPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := session.MustFromContext(r.Context())
			if !state.LoggedIn() {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accountLogID はログに記録するアカウントIDを返す。メールIDを優先する。
func accountLogID(a *model.Account) string {
	if a.FtcID != "" {
		return a.FtcID
	}
	return a.UnionID
}
