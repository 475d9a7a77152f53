package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/core-coin/solvere/pkg/logger"
)

const (
	merchantWalletKeyPrefix = "solvere:merchant_wallet:"

	// the wallet -> id mapping never changes, the TTL only bounds memory
	merchantCacheTTL = 24 * time.Hour
)

// RedisMerchantCache implements models.MerchantCache on top of Redis.
type RedisMerchantCache struct {
	client *redis.Client
	logger *logger.Logger
}

func NewRedisMerchantCache(addr, password string, db int, logger *logger.Logger) (*RedisMerchantCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infow("Connected to Redis", "addr", addr)
	return &RedisMerchantCache{client: client, logger: logger}, nil
}

func (r *RedisMerchantCache) Close() error {
	return r.client.Close()
}

func (r *RedisMerchantCache) GetMerchantID(ctx context.Context, wallet string) (string, error) {
	id, err := r.client.Get(ctx, merchantWalletKeyPrefix+wallet).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get merchant id from cache: %w", err)
	}
	return id, nil
}

func (r *RedisMerchantCache) SetMerchantID(ctx context.Context, wallet, merchantID string) error {
	if err := r.client.Set(ctx, merchantWalletKeyPrefix+wallet, merchantID, merchantCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache merchant id: %w", err)
	}
	r.logger.Debugw("Merchant id cached", "wallet", wallet, "merchant_id", merchantID)
	return nil
}
