package session

import (
	"context"
)

type contextKey struct{}

// NewContext はセッション状態を格納したコンテキストを返す。
func NewContext(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext はコンテキストからセッション状態を取得する。
func FromContext(ctx context.Context) (*State, bool) {
	s, ok := ctx.Value(contextKey{}).(*State)
	return s, ok && s != nil
}

// MustFromContext はコンテキストからセッション状態を取得する。
// セッションミドルウェアを通らないルートで呼ばれた場合はルーティングの誤りなのでpanicする。
func MustFromContext(ctx context.Context) *State {
	s, ok := FromContext(ctx)
	if !ok {
		panic("session: state not found in context")
	}
	return s
}
