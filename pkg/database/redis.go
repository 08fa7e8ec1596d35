package database

import (
	"context"
	"fmt"
	"time"

	"video_clip_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NewRedisClient creates a redis connection with retry. The queue is
// the only redis consumer in this service, so a single-node client is
// enough.
func NewRedisClient(d RedisConnection) (*redis.Client, error) {
	var rdb *redis.Client
	var err error

	for i := 0; i < d.RetryCount; i++ {
		rdb = redis.NewClient(&redis.Options{
			Addr:     d.Addr,
			Password: d.Password,
			DB:       d.DB,
		})

		err = rdb.Ping(context.Background()).Err()
		if err == nil {
			return rdb, nil
		}

		logger.Log.Warn(
			"Failed to connect to redis, retrying...",
			zap.Int("attempt", i+1),
			zap.String("address", fmt.Sprintf("[%s]", d.Addr)),
			zap.Error(err),
		)
		time.Sleep(d.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to redis [%s]: %w", d.Addr, err)
}
