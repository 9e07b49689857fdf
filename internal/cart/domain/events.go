package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicCartCreated     = "cart.created"
	TopicCartItemAdded   = "cart.item.added"
	TopicCartItemUpdated = "cart.item.updated"
	TopicCartItemRemoved = "cart.item.removed"
	TopicCartCleared     = "cart.cleared"
	TopicCartAbandoned   = "cart.abandoned"
	TopicCartPurged      = "cart.purged"
)

// EventPublisher 领域事件发布接口
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}

// CartCreatedEvent 购物车创建事件
type CartCreatedEvent struct {
	CartID    uint      `json:"cart_id"`
	Timestamp time.Time `json:"timestamp"`
}

// CartItemChangedEvent 购物车行变更事件，Delta 为库存占用变化量
type CartItemChangedEvent struct {
	CartID     uint            `json:"cart_id"`
	ProductID  uint            `json:"product_id"`
	Quantity   int             `json:"quantity"`
	Delta      int             `json:"delta"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Timestamp  time.Time       `json:"timestamp"`
}

// CartClearedEvent 购物车清空事件
type CartClearedEvent struct {
	CartID        uint      `json:"cart_id"`
	ReleasedUnits int       `json:"released_units"`
	Timestamp     time.Time `json:"timestamp"`
}

// CartsSweptEvent 生命周期清理事件
type CartsSweptEvent struct {
	Count     int64     `json:"count"`
	Cutoff    time.Time `json:"cutoff"`
	Timestamp time.Time `json:"timestamp"`
}
