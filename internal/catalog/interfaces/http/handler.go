package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/shopcart/internal/catalog/application"
	"github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/pkg/apperr"
	"github.com/wyfcoding/shopcart/pkg/logger"
	"github.com/wyfcoding/shopcart/pkg/utils"
)

// CatalogHandler HTTP 处理器
type CatalogHandler struct {
	app *application.CatalogApplicationService
}

// NewCatalogHandler 创建 HTTP 处理器
func NewCatalogHandler(app *application.CatalogApplicationService) *CatalogHandler {
	return &CatalogHandler{app: app}
}

// RegisterRoutes 注册路由
func (h *CatalogHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/products")
	{
		api.GET("", h.ListProducts)
		api.POST("", h.CreateProduct)
		api.GET("/:id", h.GetProduct)
		api.PUT("/:id", h.UpdateProduct)
		api.DELETE("/:id", h.DeleteProduct)
		api.POST("/:id/:event", h.ChangeStatus)
	}
}

// CreateProductRequest 创建商品请求
type CreateProductRequest struct {
	Name          string          `json:"name" binding:"required"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Category      string          `json:"category" binding:"required"`
}

// UpdateProductRequest 更新商品请求，缺省字段保持不变
type UpdateProductRequest struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity *int             `json:"stock_quantity"`
	Category      *string          `json:"category"`
}

// ListProducts 商品列表
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	products, page, err := h.app.ListProducts(c.Request.Context(), application.ListProductsQuery{
		Category: c.Query("category"),
		Status:   c.Query("status"),
		Page:     utils.AtoiDefault(c.Query("page"), 1),
		PageSize: utils.AtoiDefault(c.Query("page_size"), 0),
	})
	if err != nil {
		h.fail(c, "Failed to list products", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "pagination": page})
}

// CreateProduct 创建商品
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.app.CreateProduct(c.Request.Context(), application.CreateProductCommand{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.StockQuantity,
		Category:    req.Category,
	})
	if err != nil {
		h.fail(c, "Failed to create product", err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// GetProduct 获取商品
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	product, err := h.app.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get product", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// UpdateProduct 更新商品
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	var req UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.app.UpdateProduct(c.Request.Context(), application.UpdateProductCommand{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.StockQuantity,
		Category:    req.Category,
	})
	if err != nil {
		h.fail(c, "Failed to update product", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// DeleteProduct 删除商品
func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	if err := h.app.DeleteProduct(c.Request.Context(), id); err != nil {
		h.fail(c, "Failed to delete product", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChangeStatus 触发状态迁移：activate, deactivate, mark_out_of_stock, restock
func (h *CatalogHandler) ChangeStatus(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	ev, valid := domain.ParseEvent(c.Param("event"))
	if !valid {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown product action"})
		return
	}

	product, err := h.app.ChangeStatus(c.Request.Context(), id, ev)
	if err != nil {
		h.fail(c, "Failed to change product status", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *CatalogHandler) fail(c *gin.Context, msg string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": apperr.KindOf(err).String()})
}

func productID(c *gin.Context) (uint, bool) {
	id := utils.ParseID(c.Param("id"))
	if id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return 0, false
	}
	return id, true
}
