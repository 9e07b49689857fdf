package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/shopcart/internal/cart/application"
	"github.com/wyfcoding/shopcart/internal/cart/domain"
	"github.com/wyfcoding/shopcart/pkg/apperr"
	"github.com/wyfcoding/shopcart/pkg/logger"
	"github.com/wyfcoding/shopcart/pkg/utils"
)

// HeaderCartID 客户端会话携带的购物车 ID
const HeaderCartID = "X-Cart-ID"

// CartHandler HTTP 处理器
type CartHandler struct {
	app *application.CartApplicationService
}

// NewCartHandler 创建 HTTP 处理器
func NewCartHandler(app *application.CartApplicationService) *CartHandler {
	return &CartHandler{app: app}
}

// RegisterRoutes 注册路由
func (h *CartHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/cart")
	{
		api.GET("", h.GetCart)
		api.POST("", h.CreateCart)
		api.POST("/add_item", h.AddItem)
		api.PUT("/:product_id", h.UpdateQuantity)
		api.DELETE("/:product_id", h.RemoveItem)
		api.DELETE("", h.ClearCart)
	}
}

// AddItemRequest 添加商品请求，quantity 缺省为 1
type AddItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  *int `json:"quantity"`
}

// UpdateQuantityRequest 修改数量请求
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// CartLine 购物车行视图
type CartLine struct {
	ID         uint            `json:"id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// CartResponse 购物车视图
type CartResponse struct {
	ID         uint            `json:"id"`
	Products   []CartLine      `json:"products"`
	TotalPrice decimal.Decimal `json:"total_price"`
	ItemsCount int             `json:"items_count"`
	Abandoned  bool            `json:"abandoned"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toResponse(cart *domain.Cart) CartResponse {
	lines := make([]CartLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		line := CartLine{ID: item.ProductID, Quantity: item.Quantity, TotalPrice: item.Subtotal()}
		if item.Product != nil {
			line.Name = item.Product.Name
			line.UnitPrice = item.Product.Price
		}
		lines = append(lines, line)
	}
	return CartResponse{
		ID:         cart.ID,
		Products:   lines,
		TotalPrice: cart.TotalPrice,
		ItemsCount: cart.ItemsCount(),
		Abandoned:  cart.Abandoned,
		CreatedAt:  cart.CreatedAt,
		UpdatedAt:  cart.UpdatedAt,
	}
}

// GetCart 获取当前会话的购物车，不存在时新建
func (h *CartHandler) GetCart(c *gin.Context) {
	cart, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, cart)
}

// CreateCart 总是创建新购物车
func (h *CartHandler) CreateCart(c *gin.Context) {
	cart, err := h.app.CreateCart(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to create cart", err)
		return
	}
	h.respond(c, http.StatusCreated, cart)
}

// AddItem 添加商品到购物车
func (h *CartHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, ok := h.session(c)
	if !ok {
		return
	}
	cart, err := h.app.AddItem(c.Request.Context(), cart.ID, req.ProductID, quantity)
	if err != nil {
		h.fail(c, "Failed to add item", err)
		return
	}
	h.respond(c, http.StatusOK, cart)
}

// UpdateQuantity 修改购物车中商品数量
func (h *CartHandler) UpdateQuantity(c *gin.Context) {
	productID, ok := productID(c)
	if !ok {
		return
	}
	var req UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, ok := h.session(c)
	if !ok {
		return
	}
	cart, err := h.app.UpdateQuantity(c.Request.Context(), cart.ID, productID, *req.Quantity)
	if err != nil {
		h.fail(c, "Failed to update quantity", err)
		return
	}
	h.respond(c, http.StatusOK, cart)
}

// RemoveItem 从购物车移除商品
func (h *CartHandler) RemoveItem(c *gin.Context) {
	productID, ok := productID(c)
	if !ok {
		return
	}
	cart, ok := h.session(c)
	if !ok {
		return
	}
	cart, err := h.app.RemoveItem(c.Request.Context(), cart.ID, productID)
	if err != nil {
		h.fail(c, "Failed to remove item", err)
		return
	}
	h.respond(c, http.StatusOK, cart)
}

// ClearCart 清空购物车
func (h *CartHandler) ClearCart(c *gin.Context) {
	cart, ok := h.session(c)
	if !ok {
		return
	}
	cart, err := h.app.ClearCart(c.Request.Context(), cart.ID)
	if err != nil {
		h.fail(c, "Failed to clear cart", err)
		return
	}
	h.respond(c, http.StatusOK, cart)
}

// session 解析请求头或查询参数中的购物车 ID，失效时新建
func (h *CartHandler) session(c *gin.Context) (*domain.Cart, bool) {
	raw := c.GetHeader(HeaderCartID)
	if raw == "" {
		raw = c.Query("cart_id")
	}
	cart, err := h.app.FindOrCreate(c.Request.Context(), utils.ParseID(raw))
	if err != nil {
		h.fail(c, "Failed to resolve cart", err)
		return nil, false
	}
	return cart, true
}

func (h *CartHandler) respond(c *gin.Context, status int, cart *domain.Cart) {
	c.Header(HeaderCartID, strconv.FormatUint(uint64(cart.ID), 10))
	c.JSON(status, toResponse(cart))
}

func (h *CartHandler) fail(c *gin.Context, msg string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": apperr.KindOf(err).String()})
}

func productID(c *gin.Context) (uint, bool) {
	id := utils.ParseID(c.Param("product_id"))
	if id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return 0, false
	}
	return id, true
}
