package domain

import "context"

// ProductFilter 商品列表过滤条件
type ProductFilter struct {
	Category Category
	Status   Status
}

// ProductRepository 商品仓储；context 中带有事务时在事务内执行
type ProductRepository interface {
	Save(ctx context.Context, product *Product) error
	GetByID(ctx context.Context, id uint) (*Product, error)
	// GetForUpdate 在当前事务中锁定商品行
	GetForUpdate(ctx context.Context, id uint) (*Product, error)
	List(ctx context.Context, filter ProductFilter, offset, limit int) ([]*Product, int64, error)
	Delete(ctx context.Context, id uint) error
	// IsReferenced 商品是否仍被购物车行引用
	IsReferenced(ctx context.Context, id uint) (bool, error)
}

// ProductReadRepository 商品读缓存
type ProductReadRepository interface {
	Save(ctx context.Context, product *Product) error
	Get(ctx context.Context, id uint) (*Product, error)
	Delete(ctx context.Context, id uint) error
}

// StockLedger 库存账本：原子增减商品库存，库存永不为负
type StockLedger interface {
	// Reserve 扣减库存，库存不足返回 ErrInsufficientStock
	Reserve(ctx context.Context, productID uint, delta int) error
	// Release 归还库存，无上限
	Release(ctx context.Context, productID uint, delta int) error
}
