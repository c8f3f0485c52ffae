package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/hitoshi/myftc/internal/model"
)

const sessionKeyPrefix = "session:"

// BadgerSessionRepo はBadgerDBを使用したセッションリポジトリ。
// PostgreSQLを用意しない単一インスタンス構成で、再起動後もセッションを保持する。
// 各エントリはTTL付きで書き込まれ、期限切れはBadger側で不可視になる。
type BadgerSessionRepo struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerSessionRepo はBadgerSessionRepoを生成する。
func NewBadgerSessionRepo(db *badger.DB) *BadgerSessionRepo {
	return &BadgerSessionRepo{db: db, now: time.Now}
}

// OpenBadger はpathにBadgerDBを開く。pathが空の場合はインメモリで開く。
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return db, nil
}

// ErrStoreClosed はクローズ済みのストアに対する操作で返される。
var ErrStoreClosed = errors.New("session store closed")

// PingContext はBadgerDBが利用可能かどうかを返す。
func (r *BadgerSessionRepo) PingContext(ctx context.Context) error {
	if r.db.IsClosed() {
		return ErrStoreClosed
	}
	return nil
}

// Find は指定IDのセッションを取得する。存在しない場合と期限切れの場合はnilを返す。
func (r *BadgerSessionRepo) Find(ctx context.Context, id string) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	found := false

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	// TTLは秒単位のため、保存された期限でも判定する
	if !found || !rec.ExpiresAt.After(r.now()) {
		return nil, nil
	}

	return &rec, nil
}

// Save はセッションを期限までのTTL付きで保存する。
func (r *BadgerSessionRepo) Save(ctx context.Context, rec *model.SessionRecord) error {
	ttl := rec.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.Delete(ctx, rec.ID)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(sessionKeyPrefix+rec.ID), data).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete は指定IDのセッションを削除する。
func (r *BadgerSessionRepo) Delete(ctx context.Context, id string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(sessionKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は保存された期限を過ぎたセッションを削除し、削除件数を返す。
// TTLで既に不可視になったエントリは件数に含まれない。
// ディスク上のDBではその後value logを回収する。
func (r *BadgerSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	now := r.now()
	var expired [][]byte

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var rec model.SessionRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if !rec.ExpiresAt.After(now) {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan sessions: %w", err)
	}

	if len(expired) > 0 {
		wb := r.db.NewWriteBatch()
		defer wb.Cancel()
		for _, key := range expired {
			if err := wb.Delete(key); err != nil {
				return 0, fmt.Errorf("failed to delete expired session: %w", err)
			}
		}
		if err := wb.Flush(); err != nil {
			return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
		}
	}

	if !r.db.Opts().InMemory {
		err := r.db.RunValueLogGC(0.5)
		if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			return 0, fmt.Errorf("failed to run value log gc: %w", err)
		}
	}
	return int64(len(expired)), nil
}

// compile-time interface check
var _ SessionRepository = (*BadgerSessionRepo)(nil)
