package mysql

import (
	"context"

	"github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/pkg/apperr"
	"github.com/wyfcoding/shopcart/pkg/db"
	"gorm.io/gorm"
)

type stockLedger struct {
	db *gorm.DB
}

// NewStockLedger 创建基于条件更新的库存账本
func NewStockLedger(db *gorm.DB) domain.StockLedger {
	return &stockLedger{db: db}
}

// Reserve 单条条件 UPDATE 完成检查与扣减，并发下不会超卖
func (l *stockLedger) Reserve(ctx context.Context, productID uint, delta int) error {
	if delta <= 0 {
		return domain.ErrInvalidStockDelta
	}

	res := db.Conn(ctx, l.db).Model(&domain.Product{}).
		Where("id = ? AND stock_quantity >= ?", productID, delta).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", delta))
	if res.Error != nil {
		return apperr.Infrastructure("reserve stock", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return l.missOrShort(ctx, productID)
}

func (l *stockLedger) Release(ctx context.Context, productID uint, delta int) error {
	if delta <= 0 {
		return domain.ErrInvalidStockDelta
	}

	res := db.Conn(ctx, l.db).Model(&domain.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
	if res.Error != nil {
		return apperr.Infrastructure("release stock", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (l *stockLedger) missOrShort(ctx context.Context, productID uint) error {
	var count int64
	if err := db.Conn(ctx, l.db).Model(&domain.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return apperr.Infrastructure("check product", err)
	}
	if count == 0 {
		return domain.ErrProductNotFound
	}
	return domain.ErrInsufficientStock
}
