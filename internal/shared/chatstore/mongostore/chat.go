package mongostore

import (
	"context"

	"entropy-gateway/internal/shared/chatstore"
	"entropy-gateway/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// chatstore.Store
// ============================================================================

func (s *Store) Insert(ctx context.Context, rec *model.ChatRecord) error {
	_, err := s.col(ColChatHistory).InsertOne(ctx, rec)
	return wrapError(err)
}

func (s *Store) Query(ctx context.Context, f chatstore.QueryFilter) ([]*model.ChatRecord, error) {
	filter := bson.D{{Key: "user_id", Value: f.UserID}}
	if f.Type != "" {
		filter = append(filter, bson.E{Key: "type", Value: f.Type})
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	return findMany[model.ChatRecord](ctx, s.col(ColChatHistory), filter, opts)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.col(ColChatHistory).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return wrapError(err)
	}
	if res.DeletedCount == 0 {
		return chatstore.ErrNotFound
	}
	return nil
}

// BatchDelete 单批原子删除
//
// 使用有序 BulkWrite 保持批内顺序；调用方（弹性客户端）保证
// len(ids) 不超过 chatstore.MaxBatchSize。
func (s *Store) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(ids))
	for _, id := range ids {
		models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.D{{Key: "_id", Value: id}}))
	}

	_, err := s.col(ColChatHistory).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return wrapError(err)
}

// 确保 Store 实现了 chatstore.Store 接口
var _ chatstore.Store = (*Store)(nil)
