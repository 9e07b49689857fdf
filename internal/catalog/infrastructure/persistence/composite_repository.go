package persistence

import (
	"context"

	"github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/pkg/logger"
)

// compositeProductRepository 读走缓存，写与加锁读走主库
type compositeProductRepository struct {
	mysql domain.ProductRepository
	redis domain.ProductReadRepository
}

// NewCompositeProductRepository 组合主库与读缓存
func NewCompositeProductRepository(mysql domain.ProductRepository, redis domain.ProductReadRepository) domain.ProductRepository {
	return &compositeProductRepository{mysql: mysql, redis: redis}
}

// Save 写主库后失效缓存；事务回滚时缓存不会残留新值
func (r *compositeProductRepository) Save(ctx context.Context, product *domain.Product) error {
	if err := r.mysql.Save(ctx, product); err != nil {
		return err
	}
	r.evict(ctx, product.ID)
	return nil
}

func (r *compositeProductRepository) GetByID(ctx context.Context, id uint) (*domain.Product, error) {
	if p, err := r.redis.Get(ctx, id); err == nil && p != nil {
		return p, nil
	}

	p, err := r.mysql.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.redis.Save(ctx, p); err != nil {
		logger.Warn(ctx, "Product cache backfill failed", "product_id", id, "error", err)
	}
	return p, nil
}

func (r *compositeProductRepository) GetForUpdate(ctx context.Context, id uint) (*domain.Product, error) {
	return r.mysql.GetForUpdate(ctx, id)
}

func (r *compositeProductRepository) List(ctx context.Context, filter domain.ProductFilter, offset, limit int) ([]*domain.Product, int64, error) {
	return r.mysql.List(ctx, filter, offset, limit)
}

func (r *compositeProductRepository) Delete(ctx context.Context, id uint) error {
	if err := r.mysql.Delete(ctx, id); err != nil {
		return err
	}
	r.evict(ctx, id)
	return nil
}

func (r *compositeProductRepository) IsReferenced(ctx context.Context, id uint) (bool, error) {
	return r.mysql.IsReferenced(ctx, id)
}

func (r *compositeProductRepository) evict(ctx context.Context, id uint) {
	if err := r.redis.Delete(ctx, id); err != nil {
		logger.Warn(ctx, "Product cache eviction failed", "product_id", id, "error", err)
	}
}
