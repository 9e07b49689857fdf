package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/shopcart/pkg/apperr"
	"github.com/wyfcoding/shopcart/pkg/fsm"
)

// Category 商品分类
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryAutomotive  Category = "automotive"
	CategoryFood        Category = "food"
	CategoryHealth      Category = "health"
)

// Categories 全部合法分类
var Categories = []Category{CategoryElectronics, CategoryClothing, CategoryAutomotive, CategoryFood, CategoryHealth}

// Valid 判断分类是否合法
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Status 商品可售状态
type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusOutOfStock Status = "out_of_stock"
)

// Event 状态机事件
type Event string

const (
	EventActivate       Event = "activate"
	EventDeactivate     Event = "deactivate"
	EventMarkOutOfStock Event = "mark_out_of_stock"
	EventRestock        Event = "restock"
)

// ParseEvent 解析外部传入的事件名
func ParseEvent(s string) (Event, bool) {
	switch ev := Event(s); ev {
	case EventActivate, EventDeactivate, EventMarkOutOfStock, EventRestock:
		return ev, true
	}
	return "", false
}

// Product 商品实体；库存计数与可售状态相互独立
type Product struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Name          string          `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description   string          `gorm:"column:description;type:text" json:"description"`
	Price         decimal.Decimal `gorm:"column:price;type:decimal(20,2);not null" json:"price"`
	StockQuantity int             `gorm:"column:stock_quantity;not null" json:"stock_quantity"`
	Category      Category        `gorm:"column:category;type:varchar(32);index" json:"category"`
	Status        Status          `gorm:"column:status;type:varchar(32);index;not null" json:"status"`
}

func (Product) TableName() string { return "products" }

// NewProduct 创建商品，初始状态为 active
func NewProduct(name, description string, price decimal.Decimal, stock int, category Category) (*Product, error) {
	p := &Product{
		Name:          strings.TrimSpace(name),
		Description:   description,
		Price:         price,
		StockQuantity: stock,
		Category:      category,
		Status:        StatusActive,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate 校验商品字段
func (p *Product) Validate() error {
	switch {
	case p.Name == "":
		return apperr.New(apperr.KindInvalidArgument, "product name is required")
	case p.Price.IsNegative():
		return apperr.New(apperr.KindInvalidArgument, "product price must not be negative")
	case p.StockQuantity < 0:
		return apperr.New(apperr.KindInvalidArgument, "product stock must not be negative")
	case !p.Category.Valid():
		return apperr.New(apperr.KindInvalidArgument, fmt.Sprintf("unknown product category %q", p.Category))
	}
	return nil
}

// CheckReservable 只有 active 商品可以占用库存
func (p *Product) CheckReservable() error {
	switch p.Status {
	case StatusActive:
		return nil
	case StatusOutOfStock:
		return ErrProductOutOfStock
	default:
		return ErrProductInactive
	}
}

func (p *Product) machine() *fsm.Machine[Status, Event] {
	m := fsm.NewMachine[Status, Event](p.Status)
	m.AddTransition(StatusInactive, EventActivate, StatusActive)
	m.AddTransition(StatusOutOfStock, EventActivate, StatusActive)
	m.AddTransition(StatusActive, EventDeactivate, StatusInactive)
	m.AddTransition(StatusActive, EventMarkOutOfStock, StatusOutOfStock)
	m.AddGuardedTransition(StatusOutOfStock, EventRestock, StatusActive, func(context.Context) bool {
		return p.StockQuantity > 0
	})
	return m
}

// Fire 触发状态迁移，失败时状态不变
func (p *Product) Fire(ctx context.Context, ev Event) error {
	m := p.machine()
	if err := m.Trigger(ctx, ev); err != nil {
		return apperr.Wrap(apperr.KindInvalidTransition,
			fmt.Sprintf("cannot %s product %d in status %s", ev, p.ID, p.Status), err)
	}
	p.Status = m.Current()
	return nil
}

// Activate inactive|out_of_stock -> active
func (p *Product) Activate(ctx context.Context) error { return p.Fire(ctx, EventActivate) }

// Deactivate active -> inactive
func (p *Product) Deactivate(ctx context.Context) error { return p.Fire(ctx, EventDeactivate) }

// MarkOutOfStock active -> out_of_stock，仅由管理操作触发
func (p *Product) MarkOutOfStock(ctx context.Context) error { return p.Fire(ctx, EventMarkOutOfStock) }

// Restock out_of_stock -> active，要求库存大于 0
func (p *Product) Restock(ctx context.Context) error { return p.Fire(ctx, EventRestock) }
