// Package chatstore 弹性客户端
//
// 在 Store 之上提供：
//   - 自动重试：最多 MaxRetries 次，首次之后每次重试前先 Reconnect，
//     重试间隔线性递增（RetryBaseDelay * 尝试序号）
//   - 查询结果缓存：按 (user, type, limit) 记忆化
//   - 写失效：任何确认成功的写入之后无条件清除该用户全部缓存条目，
//     保证写后读不会命中旧数据（正确性优先于命中率）
package chatstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"regexp"
	"time"

	"entropy-gateway/internal/shared/model"
	"entropy-gateway/internal/shared/opcache"
)

// Options 客户端可调参数，零值使用默认值
type Options struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	CacheSize      int
	CacheTTL       time.Duration
}

// Client 重试 + 缓存的远端存储门面
type Client struct {
	store Store
	cache *opcache.Cache[[]*model.ChatRecord]

	maxRetries int
	baseDelay  time.Duration
	cacheTTL   time.Duration
}

// NewClient 创建弹性客户端
func NewClient(store Store, opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = MaxRetries
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = RetryBaseDelay
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = ResultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = ResultCacheTTL
	}
	return &Client{
		store:      store,
		cache:      opcache.New[[]*model.ChatRecord](opts.CacheSize),
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.RetryBaseDelay,
		cacheTTL:   opts.CacheTTL,
	}
}

// Store 返回底层存储（供健康检查等低层用途）
func (c *Client) Store() Store {
	return c.store
}

// ============================================================================
// 重试状态机
//
// Idle -> Attempting(n) -> {Success | Attempting(n+1) | Exhausted}
// Exhausted 为终态，上抛最后一次的原始错误。
// ============================================================================

// retry 执行 op，失败自动重试
func (c *Client) retry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		// 首次之后，先尝试恢复连接再重试
		if attempt > 1 {
			if err := c.store.Reconnect(ctx); err != nil {
				log.Printf("[ChatStore] Reconnect before retry failed: %v", err)
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		// Permanent 错误立即上抛，不重试
		if !Retriable(err) {
			return err
		}
		log.Printf("[ChatStore] %s failed (attempt %d/%d): %v", name, attempt, c.maxRetries, err)

		// 线性递增延迟后进入下一次尝试
		if attempt < c.maxRetries {
			select {
			case <-time.After(c.baseDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// ============================================================================
// 写操作（成功后失效该用户缓存）
// ============================================================================

// SaveChat 写入一条对话记录，返回记录 ID
//
// 缓存失效严格发生在写入被确认之后，避免失效与旧读竞争
// 把比写入更旧的数据重新填回缓存。
func (c *Client) SaveChat(ctx context.Context, userID string, typ model.ChatType, content, response string) (string, error) {
	rec := &model.ChatRecord{
		ID:        generateChatID(),
		UserID:    userID,
		Type:      typ,
		Content:   content,
		Response:  response,
		Timestamp: time.Now().UTC(),
	}

	err := c.retry(ctx, "SaveChat", func(ctx context.Context) error {
		return c.store.Insert(ctx, rec)
	})
	if err != nil {
		return "", err
	}

	c.InvalidateUser(userID)
	return rec.ID, nil
}

// DeleteChat 删除单条记录并失效该用户缓存
func (c *Client) DeleteChat(ctx context.Context, chatID, userID string) error {
	err := c.retry(ctx, "DeleteChat", func(ctx context.Context) error {
		return c.store.Delete(ctx, chatID)
	})
	if err != nil {
		return err
	}
	c.InvalidateUser(userID)
	return nil
}

// BatchDeleteChats 批量删除
//
// 按 MaxBatchSize 拆分为多个批次顺序提交（远端单批硬上限 500），
// 批内顺序与 chatIDs 原始顺序一致，批与批之间绝不并发。
func (c *Client) BatchDeleteChats(ctx context.Context, chatIDs []string, userID string) error {
	for start := 0; start < len(chatIDs); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(chatIDs) {
			end = len(chatIDs)
		}
		batch := chatIDs[start:end]

		err := c.retry(ctx, "BatchDeleteChats", func(ctx context.Context) error {
			return c.store.BatchDelete(ctx, batch)
		})
		if err != nil {
			return err
		}
	}
	c.InvalidateUser(userID)
	return nil
}

// ============================================================================
// 读操作（命中缓存直接返回，未命中查远端并回填）
// ============================================================================

// History 查询用户全部类型的历史，timestamp 降序
func (c *Client) History(ctx context.Context, userID string, limit int) ([]*model.ChatRecord, error) {
	return c.query(ctx, QueryFilter{UserID: userID, Limit: normalizeLimit(limit)})
}

// HistoryByType 查询用户指定类型的历史，timestamp 降序
func (c *Client) HistoryByType(ctx context.Context, userID string, typ model.ChatType, limit int) ([]*model.ChatRecord, error) {
	return c.query(ctx, QueryFilter{UserID: userID, Type: typ, Limit: normalizeLimit(limit)})
}

func (c *Client) query(ctx context.Context, f QueryFilter) ([]*model.ChatRecord, error) {
	// 机会式清理过期缓存条目
	c.cache.Sweep(cacheSweepInterval)

	key := cacheKey(f)
	if records, ok := c.cache.Get(key); ok {
		return records, nil
	}

	var records []*model.ChatRecord
	err := c.retry(ctx, "Query", func(ctx context.Context) error {
		var err error
		records, err = c.store.Query(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, records, c.cacheTTL)
	return records, nil
}

// InvalidateUser 清除指定用户的全部查询缓存（所有类型、所有条数窗口）
func (c *Client) InvalidateUser(userID string) {
	if err := c.cache.Clear("^" + regexp.QuoteMeta(userID) + ":"); err != nil {
		log.Printf("[ChatStore] Invalidate cache for %s: %v", userID, err)
	}
}

// CacheStats 返回结果缓存统计
func (c *Client) CacheStats() opcache.Stats {
	return c.cache.Stats()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return limit
}

// generateChatID 生成记录 ID
// 格式：chat-xxxxxxxxxxxxxxxx（16 字符 hex）
func generateChatID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "chat-" + hex.EncodeToString(b)
}
