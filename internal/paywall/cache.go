// Package paywall は購読ページの商品一覧をTTL付きでキャッシュする。
package paywall

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/myftc/internal/model"
)

// Fetcher は商品一覧を上流から取得する。
type Fetcher interface {
	FetchPaywall(ctx context.Context) (*model.Paywall, error)
}

// Cache は商品一覧をttlの間保持する。
// 取得に失敗した場合は古い値を返さずエラーを返す。
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	value     *model.Paywall
	fetchedAt time.Time
}

// NewCache はCacheを生成する。
func NewCache(fetcher Fetcher, ttl time.Duration) *Cache {
	return &Cache{fetcher: fetcher, ttl: ttl, now: time.Now}
}

// Get はキャッシュされた商品一覧を返す。期限切れの場合は上流から再取得する。
// 同時に期限切れを検出したリクエストは1回の取得を共有する。
func (c *Cache) Get(ctx context.Context) (*model.Paywall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.value, nil
	}

	pw, err := c.fetcher.FetchPaywall(ctx)
	if err != nil {
		c.value = nil
		return nil, err
	}

	c.value = pw
	c.fetchedAt = c.now()
	return pw, nil
}

// Invalidate はキャッシュを破棄する。
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
}
