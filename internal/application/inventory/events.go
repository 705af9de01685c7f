package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
)

const (
	// RoutingKeyMovementPrefix 变动事件路由键前缀，后接小写的变动类型
	RoutingKeyMovementPrefix = "inventory.movement."
	// RoutingKeyLowStock 库存进入预警状态
	RoutingKeyLowStock = "inventory.low_stock"
)

// EventPublisher 领域事件发布者（由pkg/mq.Publisher实现）
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
}

// MovementEvent 库存变动事件
type MovementEvent struct {
	EventID          string    `json:"event_id"`
	MovementID       uint      `json:"movement_id"`
	InventoryID      uint      `json:"inventory_id"`
	BookID           uint      `json:"book_id"`
	MovementType     string    `json:"movement_type"`
	QuantityBefore   int       `json:"quantity_before"`
	QuantityAfter    int       `json:"quantity_after"`
	AffectedQuantity int       `json:"affected_quantity"`
	QuantityReserved int       `json:"quantity_reserved"`
	Actor            string    `json:"actor"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// LowStockEvent 低库存预警事件
type LowStockEvent struct {
	EventID           string    `json:"event_id"`
	InventoryID       uint      `json:"inventory_id"`
	BookID            uint      `json:"book_id"`
	QuantityAvailable int       `json:"quantity_available"`
	StockMin          int       `json:"stock_min"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// MovementRoutingKey 变动事件的路由键，如 inventory.movement.exit
func MovementRoutingKey(t inventory.MovementType) string {
	return RoutingKeyMovementPrefix + strings.ToLower(string(t))
}

func newMovementEvent(inv *inventory.Inventory, m *inventory.Movement) MovementEvent {
	return MovementEvent{
		EventID:          uuid.NewString(),
		MovementID:       m.ID,
		InventoryID:      inv.ID,
		BookID:           inv.BookID,
		MovementType:     string(m.Type),
		QuantityBefore:   m.QuantityBefore,
		QuantityAfter:    m.QuantityAfter,
		AffectedQuantity: m.AffectedQuantity,
		QuantityReserved: inv.QuantityReserved,
		Actor:            m.Actor,
		OccurredAt:       m.CreatedAt,
	}
}

func newLowStockEvent(inv *inventory.Inventory) LowStockEvent {
	return LowStockEvent{
		EventID:           uuid.NewString(),
		InventoryID:       inv.ID,
		BookID:            inv.BookID,
		QuantityAvailable: inv.QuantityAvailable,
		StockMin:          inv.StockMin,
		OccurredAt:        inv.LastUpdate,
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }
