package application

import (
	"context"

	"github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/pkg/utils"
)

// CatalogApplicationService 商品目录服务门面，整合命令服务和查询服务
type CatalogApplicationService struct {
	commandService *CatalogCommandService
	queryService   *CatalogQueryService
}

// NewCatalogApplicationService 创建商品目录服务门面实例
func NewCatalogApplicationService(
	repo domain.ProductRepository,
	tm Transactor,
	publisher domain.EventPublisher,
	opts ...Option,
) *CatalogApplicationService {
	return &CatalogApplicationService{
		commandService: NewCatalogCommandService(repo, tm, publisher, opts...),
		queryService:   NewCatalogQueryService(repo),
	}
}

func (s *CatalogApplicationService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (*domain.Product, error) {
	return s.commandService.CreateProduct(ctx, cmd)
}

func (s *CatalogApplicationService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (*domain.Product, error) {
	return s.commandService.UpdateProduct(ctx, cmd)
}

func (s *CatalogApplicationService) DeleteProduct(ctx context.Context, id uint) error {
	return s.commandService.DeleteProduct(ctx, id)
}

// ChangeStatus 触发 activate / deactivate / mark_out_of_stock / restock
func (s *CatalogApplicationService) ChangeStatus(ctx context.Context, id uint, ev domain.Event) (*domain.Product, error) {
	return s.commandService.ChangeStatus(ctx, id, ev)
}

func (s *CatalogApplicationService) GetProduct(ctx context.Context, id uint) (*domain.Product, error) {
	return s.queryService.GetProduct(ctx, id)
}

func (s *CatalogApplicationService) ListProducts(ctx context.Context, q ListProductsQuery) ([]*domain.Product, *utils.Pagination, error) {
	return s.queryService.ListProducts(ctx, q)
}
