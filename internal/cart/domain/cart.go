package domain

import (
	"time"

	"github.com/shopspring/decimal"
	catalog "github.com/wyfcoding/shopcart/internal/catalog/domain"
)

// Cart 购物车聚合根；UpdatedAt 即最近活动时间
type Cart struct {
	ID         uint            `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `gorm:"index" json:"updated_at"`
	TotalPrice decimal.Decimal `gorm:"column:total_price;type:decimal(20,2);not null" json:"total_price"`
	Abandoned  bool            `gorm:"column:abandoned;not null;index" json:"abandoned"`
	Items      []CartItem      `gorm:"foreignKey:CartID" json:"items"`
}

func (Cart) TableName() string { return "carts" }

// CartItem 购物车行，(cart_id, product_id) 唯一
type CartItem struct {
	ID        uint             `gorm:"primarykey" json:"-"`
	CreatedAt time.Time        `json:"-"`
	UpdatedAt time.Time        `json:"-"`
	CartID    uint             `gorm:"column:cart_id;not null;uniqueIndex:idx_cart_items_cart_product" json:"cart_id"`
	ProductID uint             `gorm:"column:product_id;not null;uniqueIndex:idx_cart_items_cart_product;index" json:"product_id"`
	Quantity  int              `gorm:"column:quantity;not null" json:"quantity"`
	Product   *catalog.Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (CartItem) TableName() string { return "cart_items" }

// NewCart 创建空购物车
func NewCart(now time.Time) *Cart {
	return &Cart{
		CreatedAt:  now,
		UpdatedAt:  now,
		TotalPrice: decimal.Zero,
	}
}

// Subtotal 行小计；商品未加载时为 0
func (i CartItem) Subtotal() decimal.Decimal {
	if i.Product == nil {
		return decimal.Zero
	}
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CalculateTotal 按当前商品单价求和
func CalculateTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Item 查找指定商品的行
func (c *Cart) Item(productID uint) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// ItemsCount 全部行数量之和
func (c *Cart) ItemsCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}
