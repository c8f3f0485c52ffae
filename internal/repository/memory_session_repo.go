package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/myftc/internal/model"
)

// MemorySessionRepo はプロセス内メモリを使用したセッションリポジトリ。
// 開発環境とテストで使用する。再起動でセッションは失われる。
type MemorySessionRepo struct {
	mu      sync.Mutex
	records map[string]model.SessionRecord
	now     func() time.Time
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		records: make(map[string]model.SessionRecord),
		now:     time.Now,
	}
}

// Find は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) Find(ctx context.Context, id string) (*model.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || !rec.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	// 呼び出し側の変更が保存済みデータに影響しないようコピーを返す
	rec.Data = append([]byte(nil), rec.Data...)
	return &rec, nil
}

// Save はセッションを保存する。
func (r *MemorySessionRepo) Save(ctx context.Context, rec *model.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rec
	cp.Data = append([]byte(nil), rec.Data...)
	r.records[rec.ID] = cp
	return nil
}

// Delete は指定IDのセッションを削除する。
func (r *MemorySessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, id)
	return nil
}

// DeleteExpired は期限切れのセッションを削除する。
func (r *MemorySessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var n int64
	for id, rec := range r.records {
		if !rec.ExpiresAt.After(now) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionRepo)(nil)
