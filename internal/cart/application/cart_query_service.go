package application

import (
	"context"

	"github.com/wyfcoding/shopcart/internal/cart/domain"
)

// CartQueryService 购物车查询服务
type CartQueryService struct {
	repo domain.CartRepository
}

// NewCartQueryService 创建购物车查询服务实例
func NewCartQueryService(repo domain.CartRepository) *CartQueryService {
	return &CartQueryService{repo: repo}
}

// GetCart 加载购物车及明细，不存在返回 ErrCartNotFound
func (s *CartQueryService) GetCart(ctx context.Context, id uint) (*domain.Cart, error) {
	return s.repo.GetByID(ctx, id)
}
