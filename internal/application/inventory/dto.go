package inventory

import (
	"time"

	"github.com/xiebiao/bookstore-ledger/internal/domain/book"
	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
)

const timeLayout = "2006-01-02 15:04:05"

// CreateInventoryRequest 创建库存记录请求
type CreateInventoryRequest struct {
	BookID            uint
	QuantityAvailable int
	StockMin          int
	StockMax          int
	Actor             string
}

// StockChangeRequest 出库/入库/退货/盘点调整请求
type StockChangeRequest struct {
	BookID      uint
	Quantity    int
	Actor       string
	Description string
}

// OrderSaleRequest 订单明细出库/撤销请求
type OrderSaleRequest struct {
	OrderNo     string
	BookID      uint
	Quantity    int
	Actor       string
	Description string
}

// ReservationRequest 预留/释放请求
type ReservationRequest struct {
	BookID      uint
	Quantity    int
	Actor       string
	Description string
}

// ThresholdRequest 阈值更新请求
type ThresholdRequest struct {
	BookID   uint
	StockMin int
	StockMax int
	Actor    string
}

// PageQuery 分页查询参数
// Size为0时使用配置的默认值，Sort为空时按创建时间倒序
type PageQuery struct {
	Page int
	Size int
	Sort string
}

// InventorySummary 库存摘要
type InventorySummary struct {
	ID                uint   `json:"id"`
	BookID            uint   `json:"book_id"`
	QuantityAvailable int    `json:"quantity_available"`
	QuantityReserved  int    `json:"quantity_reserved"`
	StockMin          int    `json:"stock_min"`
	StockMax          int    `json:"stock_max"`
	AlertLowStock     bool   `json:"alert_low_stock"`
	Active            bool   `json:"active"`
	LastUpdate        string `json:"last_update"`
}

// InventoryDetail 库存详情（含图书信息）
type InventoryDetail struct {
	InventorySummary
	BookTitle          string `json:"book_title"`
	BookISBN           string `json:"book_isbn"`
	BookAuthor         string `json:"book_author"`
	RealStockAvailable int    `json:"real_stock_available"`
	Status             string `json:"status"`
	StatusLabel        string `json:"status_label"`
}

// AvailabilityView 可售状态
type AvailabilityView struct {
	BookID            uint   `json:"book_id"`
	IsAvailable       bool   `json:"is_available"`
	Status            string `json:"status"`
	StatusLabel       string `json:"status_label"`
	QuantityAvailable int    `json:"quantity_available"`
}

// MovementView 库存变动记录
type MovementView struct {
	ID               uint   `json:"id"`
	InventoryID      uint   `json:"inventory_id"`
	MovementType     string `json:"movement_type"`
	MovementLabel    string `json:"movement_label"`
	QuantityBefore   int    `json:"quantity_before"`
	QuantityAfter    int    `json:"quantity_after"`
	AffectedQuantity int    `json:"affected_quantity"`
	Description      string `json:"description"`
	Actor            string `json:"actor"`
	CreatedAt        string `json:"created_at"`
}

// MovementPage 变动记录分页结果
type MovementPage struct {
	List  []MovementView
	Total int64
	Page  int
	Size  int
}

func toSummary(inv *inventory.Inventory) InventorySummary {
	return InventorySummary{
		ID:                inv.ID,
		BookID:            inv.BookID,
		QuantityAvailable: inv.QuantityAvailable,
		QuantityReserved:  inv.QuantityReserved,
		StockMin:          inv.StockMin,
		StockMax:          inv.StockMax,
		AlertLowStock:     inv.AlertLowStock,
		Active:            inv.Active,
		LastUpdate:        formatTime(inv.LastUpdate),
	}
}

func toSummaries(list []*inventory.Inventory) []InventorySummary {
	out := make([]InventorySummary, 0, len(list))
	for _, inv := range list {
		out = append(out, toSummary(inv))
	}
	return out
}

// toDetail 图书已从目录中移除时b为nil
func toDetail(inv *inventory.Inventory, b *book.Book) *InventoryDetail {
	status := inv.Availability()
	detail := &InventoryDetail{
		InventorySummary:   toSummary(inv),
		RealStockAvailable: inv.RealStockAvailable(),
		Status:             string(status),
		StatusLabel:        status.Label(),
	}
	if b != nil {
		detail.BookTitle = b.Title
		detail.BookISBN = b.ISBN
		detail.BookAuthor = b.Author
	}
	return detail
}

func toAvailability(snap inventory.AvailabilitySnapshot) *AvailabilityView {
	status := snap.Status()
	return &AvailabilityView{
		BookID:            snap.BookID,
		IsAvailable:       snap.QuantityAvailable > 0,
		Status:            string(status),
		StatusLabel:       status.Label(),
		QuantityAvailable: snap.QuantityAvailable,
	}
}

func toMovementView(m *inventory.Movement) MovementView {
	return MovementView{
		ID:               m.ID,
		InventoryID:      m.InventoryID,
		MovementType:     string(m.Type),
		MovementLabel:    m.Type.Label(),
		QuantityBefore:   m.QuantityBefore,
		QuantityAfter:    m.QuantityAfter,
		AffectedQuantity: m.AffectedQuantity,
		Description:      m.Description,
		Actor:            m.Actor,
		CreatedAt:        formatTime(m.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
