package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/domain/cart"

	"github.com/redis/go-redis/v9"
)

const guestCartKeyPrefix = "guest_cart:"

// ゲストカートをRedisに保存する。
// 値は {id,name,price,image,quantity} のJSON配列。localStorage時代と同じ形。
type GuestCartRedisRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// DI
func NewGuestCartRedisRepository(rdb *redis.Client, ttl time.Duration) *GuestCartRedisRepository {
	return &GuestCartRedisRepository{rdb: rdb, ttl: ttl}
}

func guestCartKey(token string) string {
	return guestCartKeyPrefix + token
}

// キーが無ければ空リスト
func (r *GuestCartRedisRepository) Load(ctx context.Context, token string) ([]cart.Item, error) {
	val, err := r.rdb.Get(ctx, guestCartKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return []cart.Item{}, nil
	}
	if err != nil {
		return []cart.Item{}, err
	}

	items := []cart.Item{}
	if err := json.Unmarshal([]byte(val), &items); err != nil {
		return []cart.Item{}, err
	}
	return items, nil
}

// 空リストの保存はキー削除と同じ扱い
func (r *GuestCartRedisRepository) Save(ctx context.Context, token string, items []cart.Item) error {
	if len(items) == 0 {
		return r.Delete(ctx, token)
	}

	data, err := json.Marshal(items)
	if err != nil {
		return err
	}

	return r.rdb.Set(ctx, guestCartKey(token), data, r.ttl).Err()
}

func (r *GuestCartRedisRepository) Delete(ctx context.Context, token string) error {
	return r.rdb.Del(ctx, guestCartKey(token)).Err()
}
