package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/pkg/cache"
)

type productRedisRepository struct {
	cache  *cache.RedisCache
	prefix string
	ttl    time.Duration
}

// NewProductRedisRepository 创建商品读缓存
func NewProductRedisRepository(c *cache.RedisCache, ttl time.Duration) domain.ProductReadRepository {
	return &productRedisRepository{
		cache:  c,
		prefix: "catalog:product:",
		ttl:    ttl,
	}
}

func (r *productRedisRepository) Save(ctx context.Context, product *domain.Product) error {
	if product == nil {
		return nil
	}
	return r.cache.SetJSON(ctx, r.key(product.ID), product, r.ttl)
}

// Get 未命中时返回 nil, nil
func (r *productRedisRepository) Get(ctx context.Context, id uint) (*domain.Product, error) {
	var p domain.Product
	err := r.cache.GetJSON(ctx, r.key(id), &p)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRedisRepository) Delete(ctx context.Context, id uint) error {
	return r.cache.Delete(ctx, r.key(id))
}

func (r *productRedisRepository) key(id uint) string {
	return r.prefix + strconv.FormatUint(uint64(id), 10)
}
