package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/shopcart/internal/cart/domain"
	catalog "github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/pkg/apperr"
	"github.com/wyfcoding/shopcart/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// releaseStockSQL 按购物车集合归还各商品被占用的数量
const releaseStockSQL = "stock_quantity + (SELECT COALESCE(SUM(cart_items.quantity), 0) FROM cart_items " +
	"WHERE cart_items.product_id = products.id AND cart_items.cart_id IN ?)"

// Migrate 建表与索引
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&catalog.Product{}, &domain.Cart{}, &domain.CartItem{})
}

// CartRepository 基于 GORM 的购物车仓储，同时提供生命周期批量操作
type CartRepository struct {
	db *gorm.DB
}

// NewCartRepository 创建购物车仓储
func NewCartRepository(db *gorm.DB) *CartRepository {
	return &CartRepository{db: db}
}

var (
	_ domain.CartRepository      = (*CartRepository)(nil)
	_ domain.LifecycleRepository = (*CartRepository)(nil)
)

func (r *CartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	if err := db.Conn(ctx, r.db).Omit("Items").Create(cart).Error; err != nil {
		return apperr.Infrastructure("create cart", err)
	}
	return nil
}

func (r *CartRepository) GetByID(ctx context.Context, id uint) (*domain.Cart, error) {
	var cart domain.Cart
	err := db.Conn(ctx, r.db).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("cart_items.id ASC") }).
		Preload("Items.Product").
		First(&cart, id).Error
	if err != nil {
		return nil, translate("get cart", err, domain.ErrCartNotFound)
	}
	return &cart, nil
}

func (r *CartRepository) GetForUpdate(ctx context.Context, id uint) (*domain.Cart, error) {
	var cart domain.Cart
	err := db.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&cart, id).Error
	if err != nil {
		return nil, translate("lock cart", err, domain.ErrCartNotFound)
	}
	return &cart, nil
}

func (r *CartRepository) GetItem(ctx context.Context, cartID, productID uint) (*domain.CartItem, error) {
	var item domain.CartItem
	err := db.Conn(ctx, r.db).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error
	if err != nil {
		return nil, translate("get cart item", err, domain.ErrItemNotFound)
	}
	return &item, nil
}

func (r *CartRepository) ListItems(ctx context.Context, cartID uint) ([]domain.CartItem, error) {
	var items []domain.CartItem
	err := db.Conn(ctx, r.db).
		Preload("Product").
		Where("cart_id = ?", cartID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, apperr.Infrastructure("list cart items", err)
	}
	return items, nil
}

func (r *CartRepository) UpsertItem(ctx context.Context, cartID, productID uint, quantity int) error {
	item := domain.CartItem{CartID: cartID, ProductID: productID, Quantity: quantity}
	err := db.Conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("cart_items.quantity + ?", quantity),
				"updated_at": time.Now(),
			}),
		}).
		Create(&item).Error
	if err != nil {
		return apperr.Infrastructure("upsert cart item", err)
	}
	return nil
}

func (r *CartRepository) SetItemQuantity(ctx context.Context, cartID, productID uint, quantity int) error {
	err := db.Conn(ctx, r.db).Model(&domain.CartItem{}).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Update("quantity", quantity).Error
	if err != nil {
		return apperr.Infrastructure("update cart item", err)
	}
	return nil
}

func (r *CartRepository) DeleteItem(ctx context.Context, cartID, productID uint) error {
	res := db.Conn(ctx, r.db).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&domain.CartItem{})
	if res.Error != nil {
		return apperr.Infrastructure("delete cart item", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (r *CartRepository) ClearItems(ctx context.Context, cartID uint) (int, error) {
	conn := db.Conn(ctx, r.db)
	ids := []uint{cartID}

	var units int
	err := conn.Model(&domain.CartItem{}).
		Where("cart_id = ?", cartID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&units).Error
	if err != nil {
		return 0, apperr.Infrastructure("sum cart items", err)
	}
	if units == 0 {
		return 0, nil
	}

	if err := r.releaseStock(ctx, ids); err != nil {
		return 0, err
	}
	if err := db.Conn(ctx, r.db).Where("cart_id = ?", cartID).Delete(&domain.CartItem{}).Error; err != nil {
		return 0, apperr.Infrastructure("delete cart items", err)
	}
	return units, nil
}

func (r *CartRepository) Touch(ctx context.Context, cartID uint, total decimal.Decimal, now time.Time) error {
	res := db.Conn(ctx, r.db).Model(&domain.Cart{}).
		Where("id = ?", cartID).
		UpdateColumns(map[string]any{
			"total_price": total,
			"updated_at":  now,
			"abandoned":   false,
		})
	if res.Error != nil {
		return apperr.Infrastructure("touch cart", res.Error)
	}
	return nil
}

func (r *CartRepository) MarkAbandoned(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res := db.Conn(ctx, r.db).Model(&domain.Cart{}).
		Where("abandoned = ? AND updated_at < ?", false, cutoff).
		UpdateColumns(map[string]any{
			"abandoned":  true,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, apperr.Infrastructure("mark abandoned carts", res.Error)
	}
	return res.RowsAffected, nil
}

// LockAbandoned 跳过正被其他事务锁定的购物车，下次清理再处理
func (r *CartRepository) LockAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := db.Conn(ctx, r.db).Model(&domain.Cart{}).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("abandoned = ? AND updated_at < ?", true, cutoff).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apperr.Infrastructure("lock abandoned carts", err)
	}
	return ids, nil
}

func (r *CartRepository) PurgeCarts(ctx context.Context, cartIDs []uint) (int64, error) {
	if len(cartIDs) == 0 {
		return 0, nil
	}
	if err := r.releaseStock(ctx, cartIDs); err != nil {
		return 0, err
	}
	if err := db.Conn(ctx, r.db).Where("cart_id IN ?", cartIDs).Delete(&domain.CartItem{}).Error; err != nil {
		return 0, apperr.Infrastructure("delete abandoned cart items", err)
	}
	res := db.Conn(ctx, r.db).Where("id IN ?", cartIDs).Delete(&domain.Cart{})
	if res.Error != nil {
		return 0, apperr.Infrastructure("delete abandoned carts", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *CartRepository) releaseStock(ctx context.Context, cartIDs []uint) error {
	err := db.Conn(ctx, r.db).Model(&catalog.Product{}).
		Where("id IN (SELECT product_id FROM cart_items WHERE cart_id IN ?)", cartIDs).
		UpdateColumn("stock_quantity", gorm.Expr(releaseStockSQL, cartIDs)).Error
	if err != nil {
		return apperr.Infrastructure("release cart stock", err)
	}
	return nil
}

func translate(op string, err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return apperr.Infrastructure(op, err)
}
