package mongostore

import (
	"context"
	"errors"
	"net"

	"entropy-gateway/internal/shared/chatstore"

	"github.com/containerd/errdefs"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// wrapError 将 MongoDB 错误转换为领域错误
//
// 网络/超时类错误附加 errdefs.ErrUnavailable 标记，供上层的
// Retriable 判定走自动重试；其余错误原样返回。
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chatstore.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return chatstore.ErrDuplicate
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return errors.Join(errdefs.ErrUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Join(errdefs.ErrUnavailable, err)
	}
	return err
}

// findMany 查找多个文档
func findMany[T any](ctx context.Context, col *mongo.Collection, filter bson.D, opts ...options.Lister[options.FindOptions]) ([]*T, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	var results []*T
	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, err
		}
		results = append(results, &item)
	}
	if err := cursor.Err(); err != nil {
		return nil, wrapError(err)
	}
	if results == nil {
		results = []*T{}
	}
	return results, nil
}
