package middleware

import (
	"fmt"
	"net/http"

	"github.com/hitoshi/myftc/internal/model"
)

// ErrorWriter はミドルウェアが中断したリクエストにエラーページを書き込む関数。
// handlerパッケージがテンプレートで描画する実装を渡す。
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, apiErr *model.APIError)

// WriteErrorResponse はテキスト形式のエラーレスポンスを書き込む。
// ErrorWriterが設定されていない場合に使われる。
func WriteErrorResponse(w http.ResponseWriter, _ *http.Request, status int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	fmt.Fprintf(w, "%s\n%s\n", apiErr.Message, apiErr.Action)
}

// orDefault はnilの場合にWriteErrorResponseを返す。
func (ew ErrorWriter) orDefault() ErrorWriter {
	if ew == nil {
		return WriteErrorResponse
	}
	return ew
}
