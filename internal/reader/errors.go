package reader

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind は上流APIエラーの分類。
type Kind int

const (
	// KindUnknown は分類できないエラー。通信エラー、5xx、ブレーカー遮断を含む。
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindUnprocessable
)

// String はKindの名前を返す。
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnprocessable:
		return "unprocessable"
	default:
		return "unknown"
	}
}

// Error は上流APIクライアントが返す唯一のエラー型。
// Unprocessableの場合はFieldとCodeに検証エラーの詳細が入る。
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Field   string
	Code    string

	cause error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Kind == KindUnprocessable {
		return fmt.Sprintf("upstream %s (%d): %s.%s: %s", e.Kind, e.Status, e.Field, e.Code, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("upstream %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("upstream %s (%d): %s", e.Kind, e.Status, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error {
	return e.cause
}

// Key はメッセージテーブルの検索キー "field.code" を返す。
func (e *Error) Key() string {
	return e.Field + "." + e.Code
}

// errorBody は上流APIのエラーレスポンスボディ。
type errorBody struct {
	Message string `json:"message"`
	Error   *struct {
		Field string `json:"field"`
		Code  string `json:"code"`
	} `json:"error,omitempty"`
}

// kindOf はHTTPステータスコードをKindに変換する。
func kindOf(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusUnprocessableEntity:
		return KindUnprocessable
	default:
		return KindUnknown
	}
}

// transportError は通信エラーをKindUnknownのErrorに包む。
func transportError(err error) *Error {
	return &Error{Kind: KindUnknown, cause: err}
}

// abortedError は呼び出し元のコンテキストが終了したために失敗した通信エラー。
// ブラウザの切断などで発生する。
type abortedError struct {
	err error
}

func (e *abortedError) Error() string { return "aborted by caller: " + e.err.Error() }
func (e *abortedError) Unwrap() error { return e.err }

func isAborted(err error) bool {
	var a *abortedError
	return errors.As(err, &a)
}

// As はerrをErrorとして取り出す。
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsNotFound はerrが404由来かどうかを返す。
func IsNotFound(err error) bool {
	e, ok := As(err)
	return ok && e.Kind == KindNotFound
}

// IsForbidden はerrが403由来かどうかを返す。
func IsForbidden(err error) bool {
	e, ok := As(err)
	return ok && e.Kind == KindForbidden
}

// AsUnprocessable はerrが422由来の場合にそのErrorを返す。
func AsUnprocessable(err error) (*Error, bool) {
	e, ok := As(err)
	if !ok || e.Kind != KindUnprocessable {
		return nil, false
	}
	return e, true
}
