// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザー名や住所などの自由入力からマークアップを除去する。
// bluemondayのStrictPolicyで全タグを落とし、プレーンテキストとして保存する。
// 表示時のエスケープはテンプレート側で行う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由入力テキストのサニタイザー。
// bluemondayのポリシーはスレッドセーフなので1つを共有する。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去し、前後の空白を取り除いたテキストを返す。
// StrictPolicyがエスケープした文字実体は元の文字に戻す。
// 同一入力に対して常に同一出力を返す。
func (s *TextSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
