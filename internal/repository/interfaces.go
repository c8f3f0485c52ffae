// Package repository はセッションデータの永続化インターフェースと実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/myftc/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
// セッションの内容はエンコード済みのバイト列として扱い、構造は関知しない。
type SessionRepository interface {
	// Find は指定IDのセッションを取得する。存在しない場合と期限切れの場合はnilを返す。
	Find(ctx context.Context, id string) (*model.SessionRecord, error)
	// Save はセッションを保存する。同じIDが存在する場合は上書きする。
	Save(ctx context.Context, rec *model.SessionRecord) error
	// Delete は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, id string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
