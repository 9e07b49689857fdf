package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CartRepository 购物车仓储；context 中带有事务时在事务内执行
type CartRepository interface {
	Create(ctx context.Context, cart *Cart) error
	// GetByID 加载购物车及其行与商品
	GetByID(ctx context.Context, id uint) (*Cart, error)
	// GetForUpdate 锁定购物车行，不加载明细
	GetForUpdate(ctx context.Context, id uint) (*Cart, error)

	GetItem(ctx context.Context, cartID, productID uint) (*CartItem, error)
	// ListItems 加载全部行及其商品
	ListItems(ctx context.Context, cartID uint) ([]CartItem, error)
	// UpsertItem 不存在时插入，存在时数量累加
	UpsertItem(ctx context.Context, cartID, productID uint, quantity int) error
	SetItemQuantity(ctx context.Context, cartID, productID uint, quantity int) error
	DeleteItem(ctx context.Context, cartID, productID uint) error
	// ClearItems 归还全部行占用的库存并删除行，返回归还的件数
	ClearItems(ctx context.Context, cartID uint) (int, error)
	// Touch 写入总价，刷新活动时间并清除放弃标记
	Touch(ctx context.Context, cartID uint, total decimal.Decimal, now time.Time) error
}

// LifecycleRepository 生命周期清理所需的批量操作
type LifecycleRepository interface {
	// MarkAbandoned 单条 UPDATE 标记 cutoff 之前无活动的购物车
	MarkAbandoned(ctx context.Context, cutoff, now time.Time) (int64, error)
	// LockAbandoned 锁定一批 cutoff 之前已放弃的购物车
	LockAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]uint, error)
	// PurgeCarts 归还库存并删除购物车与行
	PurgeCarts(ctx context.Context, cartIDs []uint) (int64, error)
}
