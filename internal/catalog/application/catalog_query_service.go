package application

import (
	"context"
	"fmt"

	"github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/pkg/apperr"
	"github.com/wyfcoding/shopcart/pkg/utils"
)

// ListProductsQuery 商品列表查询
type ListProductsQuery struct {
	Category string
	Status   string
	Page     int
	PageSize int
}

// CatalogQueryService 商品目录查询服务
type CatalogQueryService struct {
	repo domain.ProductRepository
}

// NewCatalogQueryService 创建商品目录查询服务实例
func NewCatalogQueryService(repo domain.ProductRepository) *CatalogQueryService {
	return &CatalogQueryService{repo: repo}
}

// GetProduct 根据ID获取商品信息
func (s *CatalogQueryService) GetProduct(ctx context.Context, id uint) (*domain.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// ListProducts 按分类、状态分页列出商品
func (s *CatalogQueryService) ListProducts(ctx context.Context, q ListProductsQuery) ([]*domain.Product, *utils.Pagination, error) {
	filter := domain.ProductFilter{Category: domain.Category(q.Category), Status: domain.Status(q.Status)}
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, nil, apperr.New(apperr.KindInvalidArgument, fmt.Sprintf("unknown product category %q", q.Category))
	}

	page := utils.NewPagination(q.Page, q.PageSize)
	products, total, err := s.repo.List(ctx, filter, page.Offset(), page.Limit())
	if err != nil {
		return nil, nil, err
	}
	page.SetTotal(total)
	return products, page, nil
}
