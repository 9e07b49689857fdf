package application

import (
	"context"
	"errors"

	"github.com/wyfcoding/shopcart/internal/cart/domain"
	"github.com/wyfcoding/shopcart/pkg/logger"
)

// CartApplicationService 购物车服务门面，整合命令服务和查询服务
type CartApplicationService struct {
	commandService *CartCommandService
	queryService   *CartQueryService
}

// NewCartApplicationService 创建购物车服务门面实例
func NewCartApplicationService(commandService *CartCommandService, queryService *CartQueryService) *CartApplicationService {
	return &CartApplicationService{
		commandService: commandService,
		queryService:   queryService,
	}
}

// CreateCart 总是创建新购物车
func (s *CartApplicationService) CreateCart(ctx context.Context) (*domain.Cart, error) {
	return s.commandService.CreateCart(ctx)
}

// FindOrCreate 加载会话中的购物车；id 为 0 或已失效时新建，不视为错误
func (s *CartApplicationService) FindOrCreate(ctx context.Context, id uint) (*domain.Cart, error) {
	if id != 0 {
		cart, err := s.GetCart(ctx, id)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, domain.ErrCartNotFound) {
			return nil, err
		}
		logger.Debug(ctx, "Stale cart id, creating a new cart", "cart_id", id)
	}
	return s.commandService.CreateCart(ctx)
}

// GetCart 根据ID获取购物车及明细
func (s *CartApplicationService) GetCart(ctx context.Context, id uint) (*domain.Cart, error) {
	return s.queryService.GetCart(ctx, id)
}

// AddItem 处理添加商品到购物车
func (s *CartApplicationService) AddItem(ctx context.Context, cartID, productID uint, quantity int) (*domain.Cart, error) {
	return s.commandService.AddItem(ctx, AddItemCommand{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
	})
}

// UpdateQuantity 处理修改商品数量
func (s *CartApplicationService) UpdateQuantity(ctx context.Context, cartID, productID uint, quantity int) (*domain.Cart, error) {
	return s.commandService.UpdateQuantity(ctx, UpdateQuantityCommand{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
	})
}

// RemoveItem 处理从购物车移除商品
func (s *CartApplicationService) RemoveItem(ctx context.Context, cartID, productID uint) (*domain.Cart, error) {
	return s.commandService.RemoveItem(ctx, RemoveItemCommand{
		CartID:    cartID,
		ProductID: productID,
	})
}

// ClearCart 处理清空购物车
func (s *CartApplicationService) ClearCart(ctx context.Context, cartID uint) (*domain.Cart, error) {
	return s.commandService.Clear(ctx, cartID)
}
