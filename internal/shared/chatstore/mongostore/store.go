// Package mongostore 实现基于 MongoDB 的 chatstore.Store
//
// 使用 mongo-go-driver v2，通过 bson tag 实现 model 结构体的序列化/反序列化。
// Collection 名称和索引在 ensureIndexes 中统一管理。
package mongostore

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection 名称常量
const (
	ColChatHistory = "chat_history"
)

// Store 实现 chatstore.Store 接口的 MongoDB 驱动
type Store struct {
	// mu 保护 client/db 对：Reconnect 换连接时可能与
	// 正在处理请求的 col() 并发
	mu     sync.RWMutex
	client *mongo.Client
	db     *mongo.Database
	uri    string
}

// NewStore 创建 MongoDB 存储实例
//
// uri: MongoDB 连接 URI，如 "mongodb://localhost:27017"
// dbName: 数据库名称，如 "entropy"
func NewStore(uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}

	// 验证连接
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{client: client, db: db, uri: uri}

	// 创建索引
	if err := s.ensureIndexes(ctx); err != nil {
		log.Printf("WARNING: mongostore: ensure indexes failed: %v", err)
	}

	return s, nil
}

// Close 关闭 MongoDB 连接
func (s *Store) Close() error {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}

// Reconnect 重建连接：先 Ping 探活，失败则重新 Connect
func (s *Store) Reconnect(ctx context.Context) error {
	s.mu.RLock()
	current := s.client
	s.mu.RUnlock()

	if err := current.Ping(ctx, nil); err == nil {
		return nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(s.uri))
	if err != nil {
		return fmt.Errorf("mongostore: reconnect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongostore: reconnect ping failed: %w", err)
	}

	s.mu.Lock()
	old := s.client
	s.client = client
	s.db = client.Database(s.db.Name())
	s.mu.Unlock()

	// 旧连接尽力关闭，不影响新连接生效
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		old.Disconnect(ctx)
	}()

	return nil
}

// col 获取指定 Collection
func (s *Store) col(name string) *mongo.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Collection(name)
}

// ensureIndexes 创建所有必要的索引
func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "type", Value: 1}, {Key: "timestamp", Value: -1}}},
	}

	for _, idx := range indexes {
		if _, err := s.col(ColChatHistory).Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("create index on %s: %w", ColChatHistory, err)
		}
	}
	return nil
}
