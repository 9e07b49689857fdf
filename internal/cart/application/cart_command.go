package application

import (
	"context"
	"strconv"
	"time"

	"github.com/wyfcoding/shopcart/internal/cart/domain"
	catalog "github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/pkg/apperr"
	"github.com/wyfcoding/shopcart/pkg/db"
	"github.com/wyfcoding/shopcart/pkg/logger"
	"github.com/wyfcoding/shopcart/pkg/metrics"
)

const (
	opAddItem        = "add_item"
	opUpdateQuantity = "update_quantity"
	opRemoveItem     = "remove_item"
	opClear          = "clear"

	resultLockTimeout = "LockTimeout"

	defaultOperationTimeout = 5 * time.Second
)

// Transactor 在单个数据库事务中执行 fn
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AddItemCommand 添加商品到购物车命令
type AddItemCommand struct {
	CartID    uint
	ProductID uint
	Quantity  int
}

// UpdateQuantityCommand 修改行数量命令
type UpdateQuantityCommand struct {
	CartID    uint
	ProductID uint
	Quantity  int
}

// RemoveItemCommand 从购物车移除商品命令
type RemoveItemCommand struct {
	CartID    uint
	ProductID uint
}

// Option 命令服务可选配置
type Option func(*CartCommandService)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(s *CartCommandService) { s.now = now }
}

// WithMetrics 注入指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *CartCommandService) { s.metrics = m }
}

// WithOperationTimeout 设置单个操作的事务超时
func WithOperationTimeout(d time.Duration) Option {
	return func(s *CartCommandService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// CartCommandService 购物车命令服务：每个操作是一个事务，加锁顺序固定为购物车行、商品行
type CartCommandService struct {
	carts     domain.CartRepository
	products  catalog.ProductRepository
	ledger    catalog.StockLedger
	tm        Transactor
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	timeout   time.Duration
	now       func() time.Time
}

// NewCartCommandService 创建购物车命令服务实例
func NewCartCommandService(
	carts domain.CartRepository,
	products catalog.ProductRepository,
	ledger catalog.StockLedger,
	tm Transactor,
	publisher domain.EventPublisher,
	opts ...Option,
) *CartCommandService {
	s := &CartCommandService{
		carts:     carts,
		products:  products,
		ledger:    ledger,
		tm:        tm,
		publisher: publisher,
		timeout:   defaultOperationTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCart 创建新的空购物车
func (s *CartCommandService) CreateCart(ctx context.Context) (*domain.Cart, error) {
	cart := domain.NewCart(s.now())
	if err := s.carts.Create(ctx, cart); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.TopicCartCreated, cart.ID, domain.CartCreatedEvent{CartID: cart.ID, Timestamp: cart.CreatedAt})
	return cart, nil
}

// AddItem 处理添加商品到购物车，只占用本次新增的数量
func (s *CartCommandService) AddItem(ctx context.Context, cmd AddItemCommand) (*domain.Cart, error) {
	if cmd.Quantity <= 0 {
		s.observe(opAddItem, domain.ErrInvalidQuantity)
		return nil, domain.ErrInvalidQuantity
	}

	cart, err := s.execute(ctx, opAddItem, func(ctx context.Context) (*domain.Cart, error) {
		cart, product, err := s.lock(ctx, cmd.CartID, cmd.ProductID)
		if err != nil {
			return nil, err
		}
		if err := product.CheckReservable(); err != nil {
			return nil, err
		}
		if err := s.ledger.Reserve(ctx, product.ID, cmd.Quantity); err != nil {
			return nil, err
		}
		if err := s.carts.UpsertItem(ctx, cart.ID, product.ID, cmd.Quantity); err != nil {
			return nil, err
		}
		return cart, s.refresh(ctx, cart)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveStock(cmd.Quantity)
	s.publishItemChanged(ctx, domain.TopicCartItemAdded, cart, cmd.ProductID, cmd.Quantity)
	return cart, nil
}

// UpdateQuantity 将行数量设为目标值，按差额占用或归还库存
func (s *CartCommandService) UpdateQuantity(ctx context.Context, cmd UpdateQuantityCommand) (*domain.Cart, error) {
	if cmd.Quantity <= 0 {
		s.observe(opUpdateQuantity, domain.ErrInvalidQuantity)
		return nil, domain.ErrInvalidQuantity
	}

	var delta int
	cart, err := s.execute(ctx, opUpdateQuantity, func(ctx context.Context) (*domain.Cart, error) {
		cart, err := s.carts.GetForUpdate(ctx, cmd.CartID)
		if err != nil {
			return nil, err
		}
		item, err := s.carts.GetItem(ctx, cart.ID, cmd.ProductID)
		if err != nil {
			return nil, err
		}
		product, err := s.products.GetForUpdate(ctx, cmd.ProductID)
		if err != nil {
			return nil, err
		}
		if err := product.CheckReservable(); err != nil {
			return nil, err
		}

		delta = cmd.Quantity - item.Quantity
		switch {
		case delta > 0:
			err = s.ledger.Reserve(ctx, product.ID, delta)
		case delta < 0:
			err = s.ledger.Release(ctx, product.ID, -delta)
		}
		if err != nil {
			return nil, err
		}
		if delta != 0 {
			if err := s.carts.SetItemQuantity(ctx, cart.ID, product.ID, cmd.Quantity); err != nil {
				return nil, err
			}
		}
		return cart, s.refresh(ctx, cart)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveStock(delta)
	s.publishItemChanged(ctx, domain.TopicCartItemUpdated, cart, cmd.ProductID, delta)
	return cart, nil
}

// RemoveItem 删除行并归还全部数量，不检查商品状态
func (s *CartCommandService) RemoveItem(ctx context.Context, cmd RemoveItemCommand) (*domain.Cart, error) {
	var released int
	cart, err := s.execute(ctx, opRemoveItem, func(ctx context.Context) (*domain.Cart, error) {
		cart, err := s.carts.GetForUpdate(ctx, cmd.CartID)
		if err != nil {
			return nil, err
		}
		item, err := s.carts.GetItem(ctx, cart.ID, cmd.ProductID)
		if err != nil {
			return nil, err
		}
		if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
		if err := s.carts.DeleteItem(ctx, cart.ID, item.ProductID); err != nil {
			return nil, err
		}
		released = item.Quantity
		return cart, s.refresh(ctx, cart)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveStock(-released)
	s.publishItemChanged(ctx, domain.TopicCartItemRemoved, cart, cmd.ProductID, -released)
	return cart, nil
}

// Clear 删除全部行并归还它们占用的库存
func (s *CartCommandService) Clear(ctx context.Context, cartID uint) (*domain.Cart, error) {
	var released int
	cart, err := s.execute(ctx, opClear, func(ctx context.Context) (*domain.Cart, error) {
		cart, err := s.carts.GetForUpdate(ctx, cartID)
		if err != nil {
			return nil, err
		}
		if released, err = s.carts.ClearItems(ctx, cart.ID); err != nil {
			return nil, err
		}
		return cart, s.refresh(ctx, cart)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveStock(-released)
	s.publish(ctx, domain.TopicCartCleared, cart.ID, domain.CartClearedEvent{
		CartID:        cart.ID,
		ReleasedUnits: released,
		Timestamp:     cart.UpdatedAt,
	})
	return cart, nil
}

// execute 以超时上下文在事务中执行 fn，并统一错误分类
func (s *CartCommandService) execute(ctx context.Context, op string, fn func(ctx context.Context) (*domain.Cart, error)) (*domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()

	var cart *domain.Cart
	err := s.tm.Transaction(ctx, func(ctx context.Context) error {
		c, err := fn(ctx)
		if err != nil {
			return err
		}
		cart = c
		return nil
	})
	s.metrics.ObserveCartDuration(op, time.Since(start))
	if err != nil {
		// 锁等待超时与死锁单独计数，调用方可以直接重试
		if db.IsLockTimeout(err) {
			err = apperr.Wrap(apperr.KindInfrastructure, op+" lock wait timed out", err)
			s.metrics.ObserveCartOperation(op, resultLockTimeout)
			logger.Warn(ctx, "Cart operation lock wait timed out", "operation", op, "error", err)
			return nil, err
		}
		err = apperr.Infrastructure(op+" failed", err)
		s.observe(op, err)
		if apperr.Is(err, apperr.KindInfrastructure) {
			logger.Error(ctx, "Cart operation failed", "operation", op, "error", err)
		}
		return nil, err
	}
	s.observe(op, nil)
	return cart, nil
}

// lock 按固定顺序锁定购物车行与商品行
func (s *CartCommandService) lock(ctx context.Context, cartID, productID uint) (*domain.Cart, *catalog.Product, error) {
	cart, err := s.carts.GetForUpdate(ctx, cartID)
	if err != nil {
		return nil, nil, err
	}
	product, err := s.products.GetForUpdate(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	return cart, product, nil
}

// refresh 重新加载行、计算总价并刷新活动时间
func (s *CartCommandService) refresh(ctx context.Context, cart *domain.Cart) error {
	items, err := s.carts.ListItems(ctx, cart.ID)
	if err != nil {
		return err
	}
	total := domain.CalculateTotal(items)
	now := s.now()
	if err := s.carts.Touch(ctx, cart.ID, total, now); err != nil {
		return err
	}
	cart.Items = items
	cart.TotalPrice = total
	cart.UpdatedAt = now
	cart.Abandoned = false
	return nil
}

func (s *CartCommandService) observe(op string, err error) {
	if err == nil {
		s.metrics.ObserveCartOperation(op, "ok")
		return
	}
	s.metrics.ObserveCartOperation(op, apperr.KindOf(err).String())
}

func (s *CartCommandService) publishItemChanged(ctx context.Context, topic string, cart *domain.Cart, productID uint, delta int) {
	quantity := 0
	if item, ok := cart.Item(productID); ok {
		quantity = item.Quantity
	}
	s.publish(ctx, topic, cart.ID, domain.CartItemChangedEvent{
		CartID:     cart.ID,
		ProductID:  productID,
		Quantity:   quantity,
		Delta:      delta,
		TotalPrice: cart.TotalPrice,
		Timestamp:  cart.UpdatedAt,
	})
}

func (s *CartCommandService) publish(ctx context.Context, topic string, cartID uint, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, strconv.FormatUint(uint64(cartID), 10), event); err != nil {
		logger.Warn(ctx, "Failed to publish cart event", "topic", topic, "cart_id", cartID, "error", err)
	}
}
