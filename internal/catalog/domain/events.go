package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicProductCreated       = "product.created"
	TopicProductUpdated       = "product.updated"
	TopicProductStatusChanged = "product.status.changed"
	TopicProductDeleted       = "product.deleted"
)

// EventPublisher 领域事件发布接口
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}

// ProductCreatedEvent 商品创建事件
type ProductCreatedEvent struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Category  Category        `json:"category"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProductUpdatedEvent 商品更新事件
type ProductUpdatedEvent struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	OldStock  int             `json:"old_stock"`
	NewStock  int             `json:"new_stock"`
	Category  Category        `json:"category"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProductStatusChangedEvent 商品状态变更事件
type ProductStatusChangedEvent struct {
	ProductID uint      `json:"product_id"`
	Event     Event     `json:"event"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// ProductDeletedEvent 商品删除事件
type ProductDeletedEvent struct {
	ProductID uint      `json:"product_id"`
	Timestamp time.Time `json:"timestamp"`
}
