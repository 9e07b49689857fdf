package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/pkg/apperr"
	"github.com/wyfcoding/shopcart/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) domain.ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Save(ctx context.Context, product *domain.Product) error {
	if err := db.Conn(ctx, r.db).Save(product).Error; err != nil {
		return apperr.Infrastructure("save product", err)
	}
	return nil
}

func (r *productRepository) GetByID(ctx context.Context, id uint) (*domain.Product, error) {
	var p domain.Product
	if err := db.Conn(ctx, r.db).First(&p, id).Error; err != nil {
		return nil, translate("get product", err)
	}
	return &p, nil
}

func (r *productRepository) GetForUpdate(ctx context.Context, id uint) (*domain.Product, error) {
	var p domain.Product
	err := db.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, id).Error
	if err != nil {
		return nil, translate("lock product", err)
	}
	return &p, nil
}

func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter, offset, limit int) ([]*domain.Product, int64, error) {
	q := db.Conn(ctx, r.db).Model(&domain.Product{})
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Infrastructure("count products", err)
	}

	var products []*domain.Product
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		return nil, 0, apperr.Infrastructure("list products", err)
	}
	return products, total, nil
}

func (r *productRepository) Delete(ctx context.Context, id uint) error {
	res := db.Conn(ctx, r.db).Delete(&domain.Product{}, id)
	if res.Error != nil {
		return apperr.Infrastructure("delete product", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *productRepository) IsReferenced(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := db.Conn(ctx, r.db).Table("cart_items").Where("product_id = ?", id).Count(&count).Error
	if err != nil {
		return false, apperr.Infrastructure("check product references", err)
	}
	return count > 0, nil
}

func translate(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrProductNotFound
	}
	return apperr.Infrastructure(op, err)
}
