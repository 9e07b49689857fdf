package application

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/pkg/logger"
)

// Transactor 在单个数据库事务中执行 fn
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CreateProductCommand 创建商品命令
type CreateProductCommand struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
}

// UpdateProductCommand 更新商品命令，nil 字段保持不变
type UpdateProductCommand struct {
	ID          uint
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	Category    *string
}

const defaultOperationTimeout = 5 * time.Second

// Option 命令服务可选配置
type Option func(*CatalogCommandService)

// WithOperationTimeout 设置单个事务的超时，行锁等待不会超过该值
func WithOperationTimeout(d time.Duration) Option {
	return func(s *CatalogCommandService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// CatalogCommandService 商品目录命令服务
type CatalogCommandService struct {
	repo      domain.ProductRepository
	tm        Transactor
	publisher domain.EventPublisher
	timeout   time.Duration
	now       func() time.Time
}

// NewCatalogCommandService 创建商品目录命令服务实例
func NewCatalogCommandService(
	repo domain.ProductRepository,
	tm Transactor,
	publisher domain.EventPublisher,
	opts ...Option,
) *CatalogCommandService {
	s := &CatalogCommandService{
		repo:      repo,
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

// CreateProduct 处理创建商品
func (s *CatalogCommandService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (*domain.Product, error) {
	product, err := domain.NewProduct(cmd.Name, cmd.Description, cmd.Price, cmd.Stock, domain.Category(cmd.Category))
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, product); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.TopicProductCreated, product.ID, domain.ProductCreatedEvent{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Stock:     product.StockQuantity,
		Category:  product.Category,
		Timestamp: s.now(),
	})
	return product, nil
}

// UpdateProduct 在行锁下更新商品属性；库存覆盖写不会与购物车的并发扣减交错
func (s *CatalogCommandService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (*domain.Product, error) {
	var (
		product  *domain.Product
		oldStock int
	)
	err := s.transaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetForUpdate(ctx, cmd.ID)
		if err != nil {
			return err
		}
		oldStock = p.StockQuantity

		if cmd.Name != nil {
			p.Name = *cmd.Name
		}
		if cmd.Description != nil {
			p.Description = *cmd.Description
		}
		if cmd.Price != nil {
			p.Price = *cmd.Price
		}
		if cmd.Stock != nil {
			p.StockQuantity = *cmd.Stock
		}
		if cmd.Category != nil {
			p.Category = domain.Category(*cmd.Category)
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, p); err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.TopicProductUpdated, product.ID, domain.ProductUpdatedEvent{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		OldStock:  oldStock,
		NewStock:  product.StockQuantity,
		Category:  product.Category,
		Timestamp: s.now(),
	})
	return product, nil
}

// DeleteProduct 删除商品；仍被购物车引用时拒绝
func (s *CatalogCommandService) DeleteProduct(ctx context.Context, id uint) error {
	err := s.transaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		referenced, err := s.repo.IsReferenced(ctx, id)
		if err != nil {
			return err
		}
		if referenced {
			return domain.ErrProductReferenced
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, domain.TopicProductDeleted, id, domain.ProductDeletedEvent{ProductID: id, Timestamp: s.now()})
	return nil
}

// ChangeStatus 触发商品状态机事件并持久化
func (s *CatalogCommandService) ChangeStatus(ctx context.Context, id uint, ev domain.Event) (*domain.Product, error) {
	var (
		product *domain.Product
		from    domain.Status
	)
	err := s.transaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = p.Status
		if err := p.Fire(ctx, ev); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, p); err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.TopicProductStatusChanged, id, domain.ProductStatusChangedEvent{
		ProductID: id,
		Event:     ev,
		From:      from,
		To:        product.Status,
		Timestamp: s.now(),
	})
	return product, nil
}

// transaction 以超时上下文开启事务
func (s *CatalogCommandService) transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.tm.Transaction(ctx, fn)
}

func (s *CatalogCommandService) publish(ctx context.Context, topic string, id uint, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, strconv.FormatUint(uint64(id), 10), event); err != nil {
		logger.Warn(ctx, "Failed to publish product event", "topic", topic, "product_id", id, "error", err)
	}
}
