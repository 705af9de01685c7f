package inventory

// AvailabilityStatus 可售状态
type AvailabilityStatus string

const (
	StatusAvailable   AvailabilityStatus = "AVAILABLE"   // 有货
	StatusFewUnits    AvailabilityStatus = "FEW_UNITS"   // 库存紧张
	StatusUnavailable AvailabilityStatus = "UNAVAILABLE" // 无货
)

var availabilityLabels = map[AvailabilityStatus]string{
	StatusAvailable:   "有货",
	StatusFewUnits:    "库存紧张",
	StatusUnavailable: "无货",
}

// Label 显示名称
func (s AvailabilityStatus) Label() string {
	return availabilityLabels[s]
}

// Classify 根据可用数量和最小库存判断可售状态
//
// 规则：
// - quantity <= 0           → UNAVAILABLE
// - 0 < quantity <= stockMin → FEW_UNITS
// - quantity > stockMin      → AVAILABLE
func Classify(quantity, stockMin int) AvailabilityStatus {
	switch {
	case quantity <= 0:
		return StatusUnavailable
	case quantity <= stockMin:
		return StatusFewUnits
	default:
		return StatusAvailable
	}
}

// IsLowStock 低库存预警规则
func IsLowStock(quantity, stockMin int) bool {
	return quantity <= stockMin
}

// AvailabilitySnapshot 判断可售状态所需的最小数据（用于缓存）
type AvailabilitySnapshot struct {
	BookID            uint  `json:"book_id"`
	QuantityAvailable int   `json:"quantity_available"`
	StockMin          int   `json:"stock_min"`
	Version           int64 `json:"version"`
}

// Status 可售状态
func (s AvailabilitySnapshot) Status() AvailabilityStatus {
	return Classify(s.QuantityAvailable, s.StockMin)
}

// Snapshot 生成可售状态快照
func (i *Inventory) Snapshot() AvailabilitySnapshot {
	return AvailabilitySnapshot{
		BookID:            i.BookID,
		QuantityAvailable: i.QuantityAvailable,
		StockMin:          i.StockMin,
		Version:           i.Version,
	}
}
